package jsenv

import "github.com/rs/zerolog"

// consolePrinter routes script console output to the instance logger.
type consolePrinter struct {
	logger zerolog.Logger
}

func (p consolePrinter) Log(s string) {
	p.logger.Info().Str("source", "js").Msg(s)
}

func (p consolePrinter) Warn(s string) {
	p.logger.Warn().Str("source", "js").Msg(s)
}

func (p consolePrinter) Error(s string) {
	p.logger.Error().Str("source", "js").Msg(s)
}
