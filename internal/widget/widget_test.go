package widget

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andrei-cloud/go_reactor/internal/bridge"
	"github.com/andrei-cloud/go_reactor/internal/errorcodes"
	"github.com/andrei-cloud/go_reactor/internal/jsenv"
	"github.com/andrei-cloud/go_reactor/internal/pool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const launch = `
const caller = argv.getByName("BridgeCaller");
const widget = argv.getByName("CoreWidget");
caller.mainCaller.bind(function (w) {
	return "rendered:" + w.name + ":" + require("./version").v;
});
widget.releaseJsEnv();
`

const launchSelfRestart = `
const caller = argv.getByName("BridgeCaller");
const widget = argv.getByName("CoreWidget");
globalThis.launches = (globalThis.launches || 0) + 1;
caller.mainCaller.bind(function (w) {
	if (!globalThis.restarted) {
		globalThis.restarted = true;
		w.restartJsScript();
	}
	return "launch:" + globalThis.launches;
});
widget.releaseJsEnv();
`

const launchHolding = `
argv.getByName("BridgeCaller").mainCaller.bind(function (w) { return w.name; });
`

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newDeps(t *testing.T, size int, opts ...jsenv.Option) (Deps, string) {
	t.Helper()
	root := t.TempDir()
	js := filepath.Join(root, "JavaScript")
	write(t, filepath.Join(js, "launch.js"), launch)
	write(t, filepath.Join(js, "holding.js"), launchHolding)
	write(t, filepath.Join(js, "selfrestart.js"), launchSelfRestart)
	write(t, filepath.Join(js, "version.js"), `module.exports = { v: 1 };`)

	p, err := pool.New(size, 9100, func(port int) (pool.Engine, error) {
		return jsenv.New(
			jsenv.NewFileLoader(js),
			zerolog.Nop(),
			port,
			append([]jsenv.Option{jsenv.WithNaming(root, "JavaScript")}, opts...)...,
		)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	l := pool.NewLauncher(root)

	return Deps{
		Pool:        p,
		Launcher:    l,
		Coordinator: pool.NewCoordinator(p, l, "JavaScript"),
		Bridges:     bridge.NewRegistry(),
		OutputRoot:  root,
	}, root
}

func TestInitRendersAndReleases(t *testing.T) {
	deps, _ := newDeps(t, 1)
	w := New("Main", "JavaScript/launch", "JavaScript", deps)

	require.NoError(t, w.Init())
	assert.Equal(t, "rendered:Main:1", w.Root())
	assert.Nil(t, w.Env())
	assert.Equal(t, []pool.EntryStatus{{Port: 9100, Busy: false}}, deps.Pool.Status())
	assert.True(t, deps.Bridges.Exists("Main"))
}

func TestInitTwiceRendersWithoutRestart(t *testing.T) {
	deps, _ := newDeps(t, 1)
	w := New("Main", "JavaScript/launch", "JavaScript", deps)

	require.NoError(t, w.Init())
	require.NoError(t, w.Init())
	assert.Equal(t, "rendered:Main:1", w.Root())
}

func TestInitExhaustedPool(t *testing.T) {
	deps, _ := newDeps(t, 1)
	holder := New("Holder", "JavaScript/holding", "JavaScript", deps)
	require.NoError(t, holder.Init())
	require.NotNil(t, holder.Env())

	other := New("Other", "JavaScript/launch", "JavaScript", deps)
	err := other.Init()
	assert.ErrorIs(t, err, errorcodes.ErrResourceExhausted)
	assert.False(t, deps.Bridges.Exists("Other"))

	holder.Close()
	require.NoError(t, other.Init())
}

func TestInitMissingScriptReturnsEnv(t *testing.T) {
	deps, _ := newDeps(t, 1)
	w := New("Main", "JavaScript/absent", "JavaScript", deps)

	err := w.Init()
	assert.ErrorIs(t, err, errorcodes.ErrScriptNotFound)
	assert.False(t, deps.Bridges.Exists("Main"))
	assert.Equal(t, []pool.EntryStatus{{Port: 9100, Busy: false}}, deps.Pool.Status())
}

func TestRestartPicksUpChangedModules(t *testing.T) {
	deps, root := newDeps(t, 2)
	w := New("Main", "JavaScript/launch", "JavaScript", deps)
	require.NoError(t, w.Init())

	write(t, filepath.Join(root, "JavaScript", "version.js"), `module.exports = { v: 2 };`)

	report, err := w.RestartJsScript()
	require.NoError(t, err)
	assert.Equal(t, 2, report.Instances)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, "rendered:Main:2", w.Root())

	for _, eng := range deps.Pool.Engines() {
		src, ok := eng.(*jsenv.Env).ModuleSource("version")
		require.True(t, ok)
		assert.Contains(t, string(src), "v: 2")
	}
}

func TestRestartWithoutName(t *testing.T) {
	deps, _ := newDeps(t, 1)
	_, err := New("", "JavaScript/launch", "JavaScript", deps).RestartJsScript()
	assert.Error(t, err)
}

func TestScriptInitiatedRestart(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{"bounded loop", time.Second},
		{"unbounded loop", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, _ := newDeps(t, 1, jsenv.WithTimeout(tt.timeout))
			w := New("Main", "JavaScript/selfrestart", "JavaScript", deps)

			done := make(chan error, 1)
			go func() { done <- w.Init() }()

			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(3 * time.Second):
				t.Fatal("restart from script did not return")
			}
			assert.Equal(t, "launch:2", w.Root())
			assert.True(t, deps.Bridges.Exists("Main"))
			assert.Equal(t, []pool.EntryStatus{{Port: 9100, Busy: false}}, deps.Pool.Status())
		})
	}
}
