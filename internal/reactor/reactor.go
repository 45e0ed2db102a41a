// Package reactor assembles the script runtime from configuration: the
// instance pool, the script launcher, the reload coordinator, bridge callers,
// mounted widgets, debug ports and the file watcher.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/go_reactor/internal/bridge"
	"github.com/andrei-cloud/go_reactor/internal/config"
	"github.com/andrei-cloud/go_reactor/internal/debugsrv"
	"github.com/andrei-cloud/go_reactor/internal/jsenv"
	"github.com/andrei-cloud/go_reactor/internal/pool"
	"github.com/andrei-cloud/go_reactor/internal/watcher"
	"github.com/andrei-cloud/go_reactor/internal/widget"
)

// Runtime owns every long-lived piece of a running reactor.
type Runtime struct {
	cfg        *config.Config
	outputRoot string

	pool        *pool.Pool
	launcher    *pool.Launcher
	coordinator *pool.Coordinator
	bridges     *bridge.Registry

	// ops serializes whole-pool operations.
	ops sync.Mutex

	mu      sync.Mutex
	widgets []*widget.Widget
	debug   *debugsrv.Manager
}

// New builds the pool and its collaborators from cfg.
func New(cfg *config.Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.Scripts.OutputRoot)
	if err != nil {
		return nil, err
	}

	r := &Runtime{cfg: cfg, outputRoot: root, bridges: bridge.NewRegistry()}

	p, err := pool.New(cfg.Pool.Size, cfg.Pool.DebugPort, r.newEngine)
	if err != nil {
		return nil, err
	}
	r.pool = p
	r.launcher = pool.NewLauncher(root)
	r.coordinator = pool.NewCoordinator(p, r.launcher, cfg.Scripts.RootSegment)

	log.Info().
		Str("event", "runtime_ready").
		Str("output_root", root).
		Int("size", cfg.Pool.Size).
		Ints("ports", p.Ports()).
		Msg("script runtime ready")

	return r, nil
}

func (r *Runtime) newEngine(port int) (pool.Engine, error) {
	logger := log.Logger.With().Int("port", port).Logger()
	env, err := jsenv.New(
		jsenv.NewFileLoader(filepath.Join(r.outputRoot, r.cfg.Scripts.RootSegment)),
		logger,
		port,
		jsenv.WithNaming(r.outputRoot, r.cfg.Scripts.RootSegment),
		jsenv.WithCacheSize(r.cfg.Pool.CacheSize),
		jsenv.WithTimeout(r.cfg.Pool.Timeout),
	)
	if err != nil {
		return nil, err
	}

	return env, nil
}

// Pool returns the instance pool.
func (r *Runtime) Pool() *pool.Pool { return r.pool }

// OutputRoot returns the absolute scripts output root.
func (r *Runtime) OutputRoot() string { return r.outputRoot }

// Mount creates a widget from wc and initializes it.
func (r *Runtime) Mount(wc config.Widget) (*widget.Widget, error) {
	r.ops.Lock()
	defer r.ops.Unlock()

	home := wc.Home
	if home == "" {
		home = r.cfg.Scripts.HomeDir
	}

	w := widget.New(wc.Name, wc.Launch, home, widget.Deps{
		Pool:        r.pool,
		Launcher:    r.launcher,
		Coordinator: r.coordinator,
		Bridges:     r.bridges,
		OutputRoot:  r.outputRoot,
	})
	if err := w.Init(); err != nil {
		return nil, fmt.Errorf("mount %s: %w", wc.Name, err)
	}

	r.mu.Lock()
	r.widgets = append(r.widgets, w)
	r.mu.Unlock()

	return w, nil
}

// Widgets returns the mounted widgets in mount order.
func (r *Runtime) Widgets() []*widget.Widget {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*widget.Widget(nil), r.widgets...)
}

// Run checks an instance out, starts script on it with args and checks it back in.
func (r *Runtime) Run(script string, args jsenv.Arguments) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	eng, err := r.pool.Checkout()
	if err != nil {
		return err
	}
	defer r.pool.Checkin(eng)

	return r.launcher.Start(eng, script, args)
}

// RestartAll reloads the scripts home into every instance. With widgets
// mounted each widget restarts its launch script; otherwise the configured
// main script is restarted.
func (r *Runtime) RestartAll() (pool.Report, error) {
	r.ops.Lock()
	defer r.ops.Unlock()

	widgets := r.Widgets()
	if len(widgets) == 0 {
		return r.coordinator.RestartAll(r.outputRoot, r.cfg.Scripts.HomeDir, r.cfg.Scripts.Main, jsenv.Arguments{})
	}

	var (
		report pool.Report
		errs   []error
	)
	for _, w := range widgets {
		rep, err := w.RestartJsScript()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report = rep
	}

	return report, errors.Join(errs...)
}

// Rebuild replaces every instance and remounts the widgets on the new set.
func (r *Runtime) Rebuild() error {
	r.ops.Lock()
	defer r.ops.Unlock()

	if err := r.pool.Rebuild(); err != nil {
		return err
	}

	var errs []error
	for _, w := range r.Widgets() {
		w.Close()
		if err := w.Init(); err != nil {
			errs = append(errs, fmt.Errorf("remount %s: %w", w.Name, err))
		}
	}

	return errors.Join(errs...)
}

// StartDebug starts one debug server per instance port. It is a no-op when
// already started.
func (r *Runtime) StartDebug() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.debug == nil {
		m, err := debugsrv.StartAll(r.cfg.Pool.DebugHost, r.pool.Ports(), r.pool)
		if err != nil {
			return nil, err
		}
		r.debug = m
	}

	return r.debug.Addresses(), nil
}

// Watch restarts all scripts whenever the scripts home changes, until ctx is done.
func (r *Runtime) Watch(ctx context.Context) error {
	home := filepath.Join(r.outputRoot, r.cfg.Scripts.HomeDir)
	w := watcher.New(home, r.cfg.Watch.Debounce, func(changed []string) {
		report, err := r.RestartAll()
		if err != nil {
			log.Error().Err(err).Str("event", "watch_reload_failed").Msg("reload after change failed")
			return
		}
		log.Debug().
			Int("changed", len(changed)).
			Int("modules", report.Modules).
			Msg("reload after change done")
	})

	return w.Run(ctx)
}

// Close stops the debug servers, unmounts widgets and closes every instance.
func (r *Runtime) Close() error {
	r.ops.Lock()
	defer r.ops.Unlock()

	r.mu.Lock()
	debug := r.debug
	r.debug = nil
	widgets := r.widgets
	r.widgets = nil
	r.mu.Unlock()

	if debug != nil {
		debug.Stop()
	}
	for _, w := range widgets {
		w.Close()
	}

	return r.pool.Close()
}
