package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the zerolog logger with the specified debug mode and output format.
func InitLogger(debug, human bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano                 // always initialize base logger with timestamp.
	base := zerolog.New(os.Stdout).With().Timestamp().Logger() // initialize base logger.
	if human {
		log.Logger = base.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339Nano,
		}) // select output format.
	} else {
		log.Logger = base // use JSON logger.
	}
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel) // set debug level.
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel) // set info level.
	}
}

// InitFromConfig normalizes level and format strings and initializes the logger.
// Unknown or empty levels fall back to info.
func InitFromConfig(level, format string) {
	format = strings.TrimSpace(strings.ToLower(format))
	InitLogger(false, format == "human")

	lvl, err := zerolog.ParseLevel(strings.TrimSpace(strings.ToLower(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// LogCheckout logs an engine instance leaving the pool.
func LogCheckout(port int, inUse, size int) {
	log.Debug().
		Str("event", "env_checkout").
		Int("port", port).
		Int("in_use", inUse).
		Int("pool_size", size).
		Msg("checked out engine instance")
}

// LogCheckin logs an engine instance returning to the pool.
func LogCheckin(port int, inUse, size int) {
	log.Debug().
		Str("event", "env_checkin").
		Int("port", port).
		Int("in_use", inUse).
		Int("pool_size", size).
		Msg("checked in engine instance")
}

// LogReload logs the outcome of a reload sweep with structured fields.
func LogReload(
	home string,
	mainScript string,
	modules int,
	skipped int,
	instances int,
	failed int,
	elapsed time.Duration,
) {
	ev := log.Info()
	if failed > 0 || skipped > 0 {
		ev = log.Warn()
	}
	ev.Str("event", "reload_finished").
		Str("home", home).
		Str("main", mainScript).
		Int("modules", modules).
		Int("skipped", skipped).
		Int("instances", instances).
		Int("failed", failed).
		Str("duration", elapsed.String()).
		Msg("reloaded scripts")
}
