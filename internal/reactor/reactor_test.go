package reactor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrei-cloud/go_reactor/internal/config"
	"github.com/andrei-cloud/go_reactor/internal/debugsrv"
	"github.com/andrei-cloud/go_reactor/internal/errorcodes"
	"github.com/andrei-cloud/go_reactor/internal/jsenv"
)

const mainScript = `globalThis.version = require("./version").v;`

const launchScript = `
argv.getByName("BridgeCaller").mainCaller.bind(function (w) {
	return w.name + "@" + require("./version").v;
});
argv.getByName("CoreWidget").releaseJsEnv();
`

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func testConfig(t *testing.T, size, port int) *config.Config {
	t.Helper()
	root := t.TempDir()
	js := filepath.Join(root, "JavaScript")
	write(t, filepath.Join(js, "main.js"), mainScript)
	write(t, filepath.Join(js, "launch.js"), launchScript)
	write(t, filepath.Join(js, "version.js"), `module.exports = { v: 1 };`)

	cfg := &config.Config{}
	cfg.Pool.Size = size
	cfg.Pool.DebugPort = port
	cfg.Pool.DebugHost = "127.0.0.1"
	cfg.Pool.CacheSize = 16
	cfg.Pool.Timeout = 2 * time.Second
	cfg.Scripts.OutputRoot = root
	cfg.Scripts.RootSegment = "JavaScript"
	cfg.Scripts.HomeDir = "JavaScript"
	cfg.Scripts.Main = "JavaScript/main.js"
	cfg.Watch.Debounce = 50 * time.Millisecond

	return cfg
}

func newRuntime(t *testing.T, size, port int) *Runtime {
	t.Helper()
	r, err := New(testConfig(t, size, port))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	return r
}

func evalAll(t *testing.T, r *Runtime, expr string) []string {
	t.Helper()
	var out []string
	for _, eng := range r.Pool().Engines() {
		v, err := eng.(*jsenv.Env).Eval(expr)
		require.NoError(t, err)
		out = append(out, v)
	}

	return out
}

func TestNewRejectsInvalidSize(t *testing.T) {
	cfg := testConfig(t, 0, 9200)
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestRunOneShot(t *testing.T) {
	r := newRuntime(t, 1, 9201)

	require.NoError(t, r.Run("JavaScript/main", jsenv.Arguments{}))
	assert.Equal(t, []string{"1"}, evalAll(t, r, "version"))

	err := r.Run("JavaScript/missing", jsenv.Arguments{})
	assert.ErrorIs(t, err, errorcodes.ErrScriptNotFound)
	assert.False(t, r.Pool().Status()[0].Busy)
}

func TestRestartAllWithoutWidgets(t *testing.T) {
	r := newRuntime(t, 2, 9203)
	write(t, filepath.Join(r.OutputRoot(), "JavaScript", "version.js"), `module.exports = { v: 7 };`)

	report, err := r.RestartAll()
	require.NoError(t, err)
	assert.Equal(t, 2, report.Instances)
	assert.Equal(t, 3, report.Modules)
	assert.Equal(t, []string{"7", "7"}, evalAll(t, r, "version"))
}

func TestMountAndRestart(t *testing.T) {
	r := newRuntime(t, 1, 9205)

	w, err := r.Mount(config.Widget{Name: "Main", Launch: "JavaScript/launch"})
	require.NoError(t, err)
	assert.Equal(t, "Main@1", w.Root())
	assert.Equal(t, "JavaScript", w.HomeDir)
	assert.Len(t, r.Widgets(), 1)

	write(t, filepath.Join(r.OutputRoot(), "JavaScript", "version.js"), `module.exports = { v: 2 };`)
	_, err = r.RestartAll()
	require.NoError(t, err)
	assert.Equal(t, "Main@2", w.Root())
}

func TestMountFailure(t *testing.T) {
	r := newRuntime(t, 1, 9206)

	_, err := r.Mount(config.Widget{Name: "Bad", Launch: "JavaScript/absent"})
	assert.ErrorIs(t, err, errorcodes.ErrScriptNotFound)
	assert.Empty(t, r.Widgets())
}

func TestRebuildRemountsWidgets(t *testing.T) {
	r := newRuntime(t, 1, 9207)
	w, err := r.Mount(config.Widget{Name: "Main", Launch: "JavaScript/launch"})
	require.NoError(t, err)
	before := r.Pool().Engines()[0]

	require.NoError(t, r.Rebuild())
	assert.Equal(t, 2, r.Pool().Generation())
	assert.NotSame(t, before, r.Pool().Engines()[0])
	assert.Equal(t, "Main@1", w.Root())
	assert.False(t, r.Pool().Status()[0].Busy)
}

func TestStartDebugSurvivesRebuild(t *testing.T) {
	r := newRuntime(t, 1, 9209)
	require.NoError(t, r.Run("JavaScript/main", jsenv.Arguments{}))

	addrs, err := r.StartDebug()
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1:9209"}, addrs)

	again, err := r.StartDebug()
	require.NoError(t, err)
	assert.Equal(t, addrs, again)

	c := debugsrv.Dial(addrs[0], 2*time.Second)
	defer c.Close()

	st, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Generation)

	require.NoError(t, r.Rebuild())
	st, err = c.Status()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Generation)
}

func TestWatchReloadsOnChange(t *testing.T) {
	r := newRuntime(t, 1, 9211)
	require.NoError(t, r.Run("JavaScript/main", jsenv.Arguments{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()
	time.Sleep(100 * time.Millisecond)

	write(t, filepath.Join(r.OutputRoot(), "JavaScript", "version.js"), `module.exports = { v: 3 };`)

	env := r.Pool().Engines()[0].(*jsenv.Env)
	assert.Eventually(t, func() bool {
		v, err := env.Eval("version")
		return err == nil && v == "3"
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRestartAndRebuildDoNotInterleave(t *testing.T) {
	r := newRuntime(t, 1, 9213)
	w, err := r.Mount(config.Widget{Name: "Main", Launch: "JavaScript/launch"})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := r.RestartAll()
			record(err)
		}()
		go func() {
			defer wg.Done()
			record(r.Rebuild())
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, "Main@1", w.Root())
	assert.Equal(t, 11, r.Pool().Generation())
	assert.False(t, r.Pool().Status()[0].Busy)
	assert.True(t, r.bridges.Exists("Main"))
}
