package pool

import (
	"fmt"
	"sync"

	"github.com/andrei-cloud/go_reactor/internal/errorcodes"
	"github.com/andrei-cloud/go_reactor/internal/logging"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultSize is the pool size used when none is configured.
	DefaultSize = 1
	// DefaultBasePort is the first debug port.
	DefaultBasePort = 8086
)

type entry struct {
	engine Engine
	busy   bool
}

// EntryStatus describes one pool slot.
type EntryStatus struct {
	Port int  `json:"port"`
	Busy bool `json:"busy"`
}

// Pool owns a fixed, ordered set of engine instances.
type Pool struct {
	mu         sync.Mutex
	entries    []*entry
	size       int
	basePort   int
	factory    Factory
	generation int
}

// New builds size instances on ports basePort..basePort+size-1.
func New(size, basePort int, factory Factory) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: %d", errorcodes.ErrInvalidPoolSize, size)
	}

	p := &Pool{size: size, basePort: basePort, factory: factory}
	entries, err := p.build()
	if err != nil {
		return nil, err
	}
	p.entries = entries
	p.generation = 1

	log.Info().
		Str("event", "pool_created").
		Int("pool_size", size).
		Int("base_port", basePort).
		Msg("engine pool created")

	return p, nil
}

// build constructs a full set of entries, closing partial results on failure.
func (p *Pool) build() ([]*entry, error) {
	entries := make([]*entry, 0, p.size)
	for i := 0; i < p.size; i++ {
		port := p.basePort + i
		eng, err := p.factory(port)
		if err != nil {
			for _, built := range entries {
				_ = built.engine.Close()
			}
			return nil, fmt.Errorf("%w: port %d: %v", errorcodes.ErrEngineConstruction, port, err)
		}
		entries = append(entries, &entry{engine: eng})
	}

	return entries, nil
}

// Checkout marks the first free instance busy and returns it.
func (p *Pool) Checkout() (Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if !e.busy {
			e.busy = true
			logging.LogCheckout(e.engine.DebugPort(), p.inUseLocked(), len(p.entries))
			return e.engine, nil
		}
	}

	log.Warn().
		Str("event", "env_exhausted").
		Int("pool_size", len(p.entries)).
		Msg("no free engine instance")

	return nil, errorcodes.ErrResourceExhausted
}

// Checkin releases eng and returns it to the free set.
// Unknown or already free instances are ignored.
func (p *Pool) Checkin(eng Engine) {
	if eng == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.engine != eng {
			continue
		}
		if !e.busy {
			log.Debug().
				Str("event", "env_checkin_ignored").
				Int("port", eng.DebugPort()).
				Msg("engine instance already free")
			return
		}
		e.engine.Release()
		e.busy = false
		logging.LogCheckin(eng.DebugPort(), p.inUseLocked(), len(p.entries))
		return
	}

	log.Warn().
		Str("event", "env_checkin_unknown").
		Int("port", eng.DebugPort()).
		Msg("checkin of instance not owned by pool")
}

// Rebuild replaces every instance with a freshly built one.
// Handles obtained before the rebuild become unknown to the pool.
func (p *Pool) Rebuild() error {
	fresh, err := p.build()
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.entries
	p.entries = fresh
	p.generation++
	gen := p.generation
	p.mu.Unlock()

	for _, e := range old {
		e.engine.Release()
		if err := e.engine.Close(); err != nil {
			log.Error().Err(err).Int("port", e.engine.DebugPort()).Msg("failed to close engine instance")
		}
	}

	log.Info().
		Str("event", "pool_rebuilt").
		Int("pool_size", len(fresh)).
		Int("generation", gen).
		Msg("engine pool rebuilt")

	return nil
}

// Broadcast calls fn for every instance, busy or free, in pool order.
// It bypasses checkout accounting and is reserved for module reload.
func (p *Pool) Broadcast(fn func(Engine)) {
	for _, eng := range p.Engines() {
		fn(eng)
	}
}

// Engines returns a snapshot of all instances in pool order.
func (p *Pool) Engines() []Engine {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Engine, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.engine
	}

	return out
}

// Lookup returns the current instance bound to port and whether it is busy.
func (p *Pool) Lookup(port int) (Engine, bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.engine.DebugPort() == port {
			return e.engine, e.busy, true
		}
	}

	return nil, false, false
}

// Status returns the state of every slot in pool order.
func (p *Pool) Status() []EntryStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]EntryStatus, len(p.entries))
	for i, e := range p.entries {
		out[i] = EntryStatus{Port: e.engine.DebugPort(), Busy: e.busy}
	}

	return out
}

// Ports returns the debug ports in pool order.
func (p *Pool) Ports() []int {
	ports := make([]int, p.size)
	for i := range ports {
		ports[i] = p.basePort + i
	}

	return ports
}

// Size returns the number of instances.
func (p *Pool) Size() int {
	return p.size
}

// Generation counts constructions: 1 after New, incremented by each Rebuild.
func (p *Pool) Generation() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.generation
}

// Close releases and closes every instance.
func (p *Pool) Close() error {
	p.mu.Lock()
	entries := p.entries
	p.entries = nil
	p.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		e.engine.Release()
		if err := e.engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (p *Pool) inUseLocked() int {
	n := 0
	for _, e := range p.entries {
		if e.busy {
			n++
		}
	}

	return n
}
