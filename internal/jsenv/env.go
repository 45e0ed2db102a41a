// Package jsenv provides a goja-backed script engine instance with a host
// module system, live module reload and a per-instance event loop.
package jsenv

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andrei-cloud/go_reactor/internal/errorcodes"
	"github.com/andrei-cloud/go_reactor/internal/goroutineid"
	"github.com/andrei-cloud/go_reactor/pkg/modname"
	"github.com/cespare/xxhash/v2"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
)

// HostModule is the native module exposing argv and instance details to scripts.
const HostModule = "host"

// DefaultTimeout bounds every synchronous operation on the event loop.
const DefaultTimeout = 5 * time.Second

// runtimes maps live goja runtimes back to their owning instance.
var runtimes sync.Map

// FromRuntime returns the instance whose event loop owns vm.
func FromRuntime(vm *goja.Runtime) (*Env, bool) {
	v, ok := runtimes.Load(vm)
	if !ok {
		return nil, false
	}

	return v.(*Env), true
}

type options struct {
	cacheSize int
	timeout   time.Duration
	root      string
	segment   string
}

// Option configures an Env.
type Option func(*options)

// WithCacheSize bounds the compiled program cache.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithTimeout bounds synchronous loop operations. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithNaming sets the output root and root segment used to derive module names.
func WithNaming(root, segment string) Option {
	return func(o *options) {
		o.root = root
		o.segment = segment
	}
}

type overlay struct {
	code []byte
	sum  uint64
}

// Status is a point-in-time description of an instance.
type Status struct {
	ID      string `json:"id"`
	Port    int    `json:"port"`
	Script  string `json:"script"`
	RunID   string `json:"run_id"`
	Running bool   `json:"running"`
	Modules int    `json:"modules"`
	Cached  int    `json:"cached"`
}

// Env is one script engine instance.
type Env struct {
	id      string
	port    int
	loader  ModuleLoader
	logger  zerolog.Logger
	root    string
	segment string
	timeout time.Duration

	loop          *eventloop.EventLoop
	loopID        atomic.Int64
	vm            atomic.Pointer[goja.Runtime]
	nativeRequire goja.Callable
	args          *argv

	mu       sync.Mutex
	sources  map[string]overlay
	programs *lru.Cache
	modules  map[string]*goja.Object
	script   string
	runID    string
	running  bool
	closed   bool
}

// New constructs an instance listening for debug clients on debugPort.
func New(loader ModuleLoader, logger zerolog.Logger, debugPort int, opts ...Option) (*Env, error) {
	o := options{cacheSize: 256, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	programs, err := lru.New(o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errorcodes.ErrEngineConstruction, err)
	}

	id := uuid.NewString()
	e := &Env{
		id:       id,
		port:     debugPort,
		loader:   loader,
		logger:   logger.With().Str("env_id", id).Int("port", debugPort).Logger(),
		root:     o.root,
		segment:  o.segment,
		timeout:  o.timeout,
		args:     &argv{},
		sources:  make(map[string]overlay),
		programs: programs,
		modules:  make(map[string]*goja.Object),
	}

	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(consolePrinter{e.logger}))
	registry.RegisterNativeModule(HostModule, e.hostModule)

	e.loop = eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(true),
	)
	e.loop.Start()

	err = e.run(func(vm *goja.Runtime) error {
		e.loopID.Store(goroutineid.Get())
		vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
		req, ok := goja.AssertFunction(vm.Get("require"))
		if !ok {
			return errors.New("require is not enabled")
		}
		e.nativeRequire = req
		if err := vm.Set("require", e.requireFrom(vm, "")); err != nil {
			return err
		}
		if err := vm.Set("argv", e.args); err != nil {
			return err
		}
		e.vm.Store(vm)
		runtimes.Store(vm, e)

		return nil
	})
	if err != nil {
		e.loop.Stop()
		return nil, fmt.Errorf("%w: %v", errorcodes.ErrEngineConstruction, err)
	}

	e.logger.Debug().Str("event", "env_created").Msg("engine instance created")

	return e, nil
}

// ID returns the instance identifier.
func (e *Env) ID() string {
	return e.id
}

// DebugPort returns the port assigned at construction.
func (e *Env) DebugPort() int {
	return e.port
}

// Start loads and evaluates script with args bound as argv.
func (e *Env) Start(script string, args Arguments) error {
	path, err := filepath.Abs(script)
	if err != nil {
		return &ScriptError{Script: script, Err: err}
	}
	name := modname.Derive(e.root, e.segment, path)
	runID := uuid.NewString()

	err = e.run(func(vm *goja.Runtime) error {
		e.args.reset(args)
		_, err := e.evaluate(vm, name, path, true)
		return err
	})
	if err != nil {
		e.logger.Warn().
			Str("event", "script_failed").
			Str("script", path).
			Err(err).
			Msg("script start failed")
		return &ScriptError{Script: path, Err: err}
	}

	e.mu.Lock()
	e.script = path
	e.runID = runID
	e.running = true
	e.mu.Unlock()

	e.logger.Info().
		Str("event", "script_started").
		Str("script", path).
		Str("run_id", runID).
		Strs("args", args.Names()).
		Msg("script started")

	return nil
}

// ReloadModule replaces the source the named module is loaded from.
// Pushing identical contents is a no-op.
func (e *Env) ReloadModule(name string, source []byte) {
	sum := xxhash.Sum64(source)

	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.sources[name]; ok && cur.sum == sum {
		return
	}
	e.sources[name] = overlay{code: bytes.Clone(source), sum: sum}
	e.programs.Remove(name)
	delete(e.modules, name)

	e.logger.Debug().Str("event", "module_reloaded").Str("module", name).Msg("module source replaced")
}

// ForceReloadFile drops the compiled form and instance of the module at path.
func (e *Env) ForceReloadFile(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	name := modname.Derive(e.root, e.segment, path)

	e.mu.Lock()
	e.programs.Remove(name)
	delete(e.modules, name)
	e.mu.Unlock()
}

// Release drops the host objects bound for the current run.
// Script state survives; callbacks the script registered keep working.
func (e *Env) Release() {
	e.args.clear()

	e.mu.Lock()
	e.running = false
	e.runID = ""
	e.mu.Unlock()

	e.logger.Debug().Str("event", "env_released").Msg("engine instance released")
}

// Execute runs fn on the instance event loop and waits for it.
func (e *Env) Execute(fn func(*goja.Runtime) error) error {
	return e.run(fn)
}

// Eval evaluates an expression and returns its string form.
func (e *Env) Eval(code string) (string, error) {
	var out string
	err := e.run(func(vm *goja.Runtime) error {
		v, err := vm.RunString(code)
		if err != nil {
			return err
		}
		out = v.String()
		return nil
	})

	return out, err
}

// ModuleSource returns the overlay source pushed for name.
func (e *Env) ModuleSource(name string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	src, ok := e.sources[name]

	return src.code, ok
}

// Modules returns the names of overlay and loaded modules, sorted.
func (e *Env) Modules() []string {
	e.mu.Lock()
	seen := make(map[string]struct{}, len(e.sources)+len(e.modules))
	for name := range e.sources {
		seen[name] = struct{}{}
	}
	for name := range e.modules {
		seen[name] = struct{}{}
	}
	e.mu.Unlock()

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Status describes the instance.
func (e *Env) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Status{
		ID:      e.id,
		Port:    e.port,
		Script:  e.script,
		RunID:   e.runID,
		Running: e.running,
		Modules: len(e.modules),
		Cached:  e.programs.Len(),
	}
}

// Close stops the event loop. The instance cannot be used afterwards.
func (e *Env) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	vm := e.vm.Load()
	if vm != nil {
		vm.Interrupt(errEnvClosed)
		runtimes.Delete(vm)
	}
	e.loop.Stop()
	e.args.clear()

	e.logger.Debug().Str("event", "env_closed").Msg("engine instance closed")

	return nil
}

// run schedules fn on the loop and waits up to the instance timeout.
// Calls made from the loop itself, such as host methods invoked by a script,
// run fn directly.
func (e *Env) run(fn func(*goja.Runtime) error) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return errEnvClosed
	}

	if id := e.loopID.Load(); id != 0 && id == goroutineid.Get() {
		return fn(e.vm.Load())
	}

	errCh := make(chan error, 1)
	if !e.loop.RunOnLoop(func(vm *goja.Runtime) { errCh <- fn(vm) }) {
		return errors.New("event loop not running")
	}

	if e.timeout <= 0 {
		return <-errCh
	}

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-timer.C:
		if vm := e.vm.Load(); vm != nil {
			vm.Interrupt("timeout")
			e.loop.RunOnLoop(func(vm *goja.Runtime) { vm.ClearInterrupt() })
		}
		return fmt.Errorf("operation timed out after %v", e.timeout)
	}
}

func (e *Env) hostModule(_ *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)
	_ = exports.Set("argv", e.args)
	_ = exports.Set("port", e.port)
	_ = exports.Set("id", e.id)
}
