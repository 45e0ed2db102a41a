// Package widget hosts script-driven widgets: it checks an instance out of the
// pool, runs the widget's launch script and renders through its bridge caller.
package widget

import (
	"errors"
	"fmt"
	"sync"

	"github.com/andrei-cloud/go_reactor/internal/bridge"
	"github.com/andrei-cloud/go_reactor/internal/jsenv"
	"github.com/andrei-cloud/go_reactor/internal/pool"
	"github.com/rs/zerolog/log"
)

// Argument names a launch script reads through argv.getByName.
const (
	ArgBridgeCaller = "BridgeCaller"
	ArgCoreWidget   = "CoreWidget"
)

// Deps are the shared runtime pieces a widget drives.
type Deps struct {
	Pool        *pool.Pool
	Launcher    *pool.Launcher
	Coordinator *pool.Coordinator
	Bridges     *bridge.Registry
	OutputRoot  string
}

// Widget is a named surface rendered by a launch script.
type Widget struct {
	Name         string
	LaunchScript string
	HomeDir      string

	deps Deps

	mu   sync.Mutex
	env  pool.Engine
	root any
}

// New returns an unmounted widget.
func New(name, launchScript, homeDir string, deps Deps) *Widget {
	return &Widget{Name: name, LaunchScript: launchScript, HomeDir: homeDir, deps: deps}
}

// Init starts the launch script when the widget has no caller yet and renders it.
func (w *Widget) Init() error {
	if w.Name != "" && !w.deps.Bridges.Exists(w.Name) {
		caller := w.deps.Bridges.Add(w.Name)
		args, err := w.arguments(caller)
		if err != nil {
			w.deps.Bridges.Remove(w.Name)
			return err
		}

		env, err := w.deps.Pool.Checkout()
		if err != nil {
			w.deps.Bridges.Remove(w.Name)
			log.Error().
				Str("event", "widget_no_env").
				Str("widget", w.Name).
				Err(err).
				Msg("no engine instance available for widget")
			return err
		}
		w.setEnv(env)

		if err := w.deps.Launcher.Start(env, w.LaunchScript, args); err != nil {
			w.deps.Bridges.Remove(w.Name)
			w.ReleaseJsEnv()
			log.Warn().
				Str("event", "widget_start_failed").
				Str("widget", w.Name).
				Str("script", w.LaunchScript).
				Err(err).
				Msg("failed to start launch script")
			return err
		}
	}

	return w.render()
}

// ReleaseJsEnv returns the widget's instance to the pool. Scripts call it once
// their entry point is bound.
func (w *Widget) ReleaseJsEnv() {
	w.mu.Lock()
	env := w.env
	w.env = nil
	w.mu.Unlock()

	if env != nil {
		w.deps.Pool.Checkin(env)
	}
}

// RestartJsScript reloads the widget's script home into every instance,
// restarts the launch script and renders again.
func (w *Widget) RestartJsScript() (pool.Report, error) {
	if w.Name == "" {
		return pool.Report{}, errors.New("widget has no name")
	}

	caller := w.deps.Bridges.Add(w.Name)
	args, err := w.arguments(caller)
	if err != nil {
		return pool.Report{}, err
	}

	report, err := w.deps.Coordinator.RestartAll(w.deps.OutputRoot, w.HomeDir, w.LaunchScript, args)
	if err != nil {
		return report, err
	}

	return report, w.render()
}

// Close releases the instance and drops the widget's caller.
func (w *Widget) Close() {
	w.ReleaseJsEnv()
	if w.Name != "" {
		w.deps.Bridges.Remove(w.Name)
	}
}

// Root returns the value the script rendered last.
func (w *Widget) Root() any {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.root
}

// Env returns the instance the widget currently holds, if any.
func (w *Widget) Env() pool.Engine {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.env
}

func (w *Widget) render() error {
	root, err := w.deps.Bridges.ExecuteMain(w.Name, w)
	if err != nil {
		w.deps.Bridges.Remove(w.Name)
		w.ReleaseJsEnv()
		log.Warn().
			Str("event", "widget_render_failed").
			Str("widget", w.Name).
			Err(err).
			Msg("failed to execute main caller")
		return fmt.Errorf("render %s: %w", w.Name, err)
	}

	w.mu.Lock()
	w.root = root
	w.mu.Unlock()

	log.Info().Str("event", "widget_rendered").Str("widget", w.Name).Msg("widget rendered")

	return nil
}

func (w *Widget) arguments(caller *bridge.Caller) (jsenv.Arguments, error) {
	return jsenv.NewArguments(
		jsenv.Argument{Name: ArgBridgeCaller, Value: caller},
		jsenv.Argument{Name: ArgCoreWidget, Value: w},
	)
}

func (w *Widget) setEnv(env pool.Engine) {
	w.mu.Lock()
	w.env = env
	w.mu.Unlock()
}
