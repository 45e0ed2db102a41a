// Package pool provides the fixed-size engine instance pool, the script
// launcher and the reload coordinator that live-patches every pool member.
package pool

import "github.com/andrei-cloud/go_reactor/internal/jsenv"

// Engine is a script engine instance as the pool sees it.
type Engine interface {
	Start(script string, args jsenv.Arguments) error
	ReloadModule(name string, source []byte)
	ForceReloadFile(path string)
	Release()
	DebugPort() int
	Close() error
}

// Factory builds the instance bound to debugPort.
type Factory func(debugPort int) (Engine, error)

var _ Engine = (*jsenv.Env)(nil)
