// Package bridge keeps the named callers scripts use to hand a render
// function back to the host.
//
// A launch script receives its caller as argv "BridgeCaller" and binds its
// entry point:
//
//	const caller = argv.getByName("BridgeCaller");
//	caller.mainCaller.bind(Launch);
//
// The host later runs that function on the instance that bound it.
package bridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/andrei-cloud/go_reactor/internal/jsenv"
	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"
)

// ErrNotBound is returned when a caller has no bound function.
var ErrNotBound = errors.New("main caller not bound")

// Delegate holds a script function and the instance that owns it.
type Delegate struct {
	mu  sync.Mutex
	fn  goja.Callable
	env *jsenv.Env
}

// Bind stores the function passed from script code.
func (d *Delegate) Bind(call goja.FunctionCall, vm *goja.Runtime) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(vm.NewTypeError("bind expects a function"))
	}
	env, ok := jsenv.FromRuntime(vm)
	if !ok {
		panic(vm.NewTypeError("bind called outside a pooled instance"))
	}

	d.mu.Lock()
	d.fn = fn
	d.env = env
	d.mu.Unlock()

	return goja.Undefined()
}

// IsBound reports whether a function has been bound.
func (d *Delegate) IsBound() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.fn != nil
}

// Unbind drops the bound function.
func (d *Delegate) Unbind() {
	d.mu.Lock()
	d.fn = nil
	d.env = nil
	d.mu.Unlock()
}

// Call runs the bound function on its instance loop with arg and exports the result.
func (d *Delegate) Call(arg any) (any, error) {
	d.mu.Lock()
	fn, env := d.fn, d.env
	d.mu.Unlock()
	if fn == nil {
		return nil, ErrNotBound
	}

	var out any
	err := env.Execute(func(vm *goja.Runtime) error {
		v, err := fn(goja.Undefined(), vm.ToValue(arg))
		if err != nil {
			return err
		}
		if v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			out = v.Export()
		}
		return nil
	})

	return out, err
}

// Caller is the host object handed to a launch script.
type Caller struct {
	Name       string
	MainCaller *Delegate
}

// Registry tracks callers by widget name.
type Registry struct {
	mu      sync.Mutex
	callers map[string]*Caller
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{callers: make(map[string]*Caller)}
}

// Add registers a fresh caller for name, replacing any existing one.
func (r *Registry) Add(name string) *Caller {
	c := &Caller{Name: name, MainCaller: &Delegate{}}

	r.mu.Lock()
	r.callers[name] = c
	r.mu.Unlock()

	log.Debug().Str("event", "bridge_added").Str("widget", name).Msg("bridge caller added")

	return c
}

// Get returns the caller registered for name.
func (r *Registry) Get(name string) (*Caller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.callers[name]

	return c, ok
}

// Exists reports whether name has a caller.
func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Remove drops the caller for name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	c, ok := r.callers[name]
	delete(r.callers, name)
	r.mu.Unlock()

	if ok {
		c.MainCaller.Unbind()
		log.Debug().Str("event", "bridge_removed").Str("widget", name).Msg("bridge caller removed")
	}
}

// Names returns registered widget names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.callers))
	for name := range r.callers {
		names = append(names, name)
	}

	return names
}

// ExecuteMain runs the main function bound for name with arg.
func (r *Registry) ExecuteMain(name string, arg any) (any, error) {
	c, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("no bridge caller for %q", name)
	}

	return c.MainCaller.Call(arg)
}
