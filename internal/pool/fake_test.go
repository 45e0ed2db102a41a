package pool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/andrei-cloud/go_reactor/internal/jsenv"
)

// callLog records engine calls across all fakes in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, a ...any) {
	l.mu.Lock()
	l.calls = append(l.calls, fmt.Sprintf(format, a...))
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.calls...)
}

type fakeEngine struct {
	port     int
	log      *callLog
	startErr error

	mu       sync.Mutex
	modules  map[string]string
	released int
	closed   bool
	started  []string
}

func (f *fakeEngine) Start(script string, args jsenv.Arguments) error {
	f.log.add("%d:start:%s", f.port, script)
	f.mu.Lock()
	f.started = append(f.started, script)
	f.mu.Unlock()

	return f.startErr
}

func (f *fakeEngine) ReloadModule(name string, source []byte) {
	f.log.add("%d:reload:%s", f.port, name)
	f.mu.Lock()
	f.modules[name] = string(source)
	f.mu.Unlock()
}

func (f *fakeEngine) ForceReloadFile(path string) {
	f.log.add("%d:force:%s", f.port, path)
}

func (f *fakeEngine) Release() {
	f.log.add("%d:release", f.port)
	f.mu.Lock()
	f.released++
	f.mu.Unlock()
}

func (f *fakeEngine) DebugPort() int {
	return f.port
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	return nil
}

// fakeFactory builds fakeEngines and remembers them.
type fakeFactory struct {
	log     *callLog
	built   []*fakeEngine
	failOn  int
	created int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{log: &callLog{}, failOn: -1}
}

func (ff *fakeFactory) build(port int) (Engine, error) {
	defer func() { ff.created++ }()
	if ff.created == ff.failOn {
		return nil, errors.New("engine construction failed")
	}
	eng := &fakeEngine{port: port, log: ff.log, modules: make(map[string]string)}
	ff.built = append(ff.built, eng)

	return eng, nil
}
