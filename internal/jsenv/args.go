package jsenv

import (
	"fmt"
	"sync"

	"github.com/andrei-cloud/go_reactor/internal/errorcodes"
)

// Argument is a named host object handed to a script run.
type Argument struct {
	Name  string
	Value any
}

// Arguments is an ordered list of uniquely named host objects.
type Arguments struct {
	items []Argument
}

// NewArguments builds an argument list, rejecting duplicate names.
func NewArguments(items ...Argument) (Arguments, error) {
	var a Arguments
	for _, it := range items {
		if err := a.Add(it.Name, it.Value); err != nil {
			return Arguments{}, err
		}
	}

	return a, nil
}

// Add appends a named value.
func (a *Arguments) Add(name string, value any) error {
	if _, ok := a.Get(name); ok {
		return fmt.Errorf("%w: %q", errorcodes.ErrDuplicateArgument, name)
	}
	a.items = append(a.items, Argument{Name: name, Value: value})

	return nil
}

// Get returns the value bound to name.
func (a Arguments) Get(name string) (any, bool) {
	for _, it := range a.items {
		if it.Name == name {
			return it.Value, true
		}
	}

	return nil, false
}

// Names returns argument names in insertion order.
func (a Arguments) Names() []string {
	names := make([]string, len(a.items))
	for i, it := range a.items {
		names[i] = it.Name
	}

	return names
}

// Len returns the number of arguments.
func (a Arguments) Len() int {
	return len(a.items)
}

// argv is the host object scripts see as `argv`.
// It is cleared on release so the prior run's host objects are no longer reachable.
type argv struct {
	mu   sync.RWMutex
	args Arguments
}

// GetByName returns the host object bound under name, or nil.
func (a *argv) GetByName(name string) any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, _ := a.args.Get(name)

	return v
}

func (a *argv) reset(args Arguments) {
	a.mu.Lock()
	a.args = args
	a.mu.Unlock()
}

func (a *argv) clear() {
	a.reset(Arguments{})
}
