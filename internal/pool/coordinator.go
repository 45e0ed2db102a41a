package pool

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/andrei-cloud/go_reactor/internal/errorcodes"
	"github.com/andrei-cloud/go_reactor/internal/jsenv"
	"github.com/andrei-cloud/go_reactor/internal/logging"
	"github.com/andrei-cloud/go_reactor/pkg/modname"
	"github.com/rs/zerolog/log"
)

// Report summarizes one reload sweep.
type Report struct {
	Modules   int      `json:"modules"`
	Skipped   []string `json:"skipped,omitempty"`
	Instances int      `json:"instances"`
	Failed    int      `json:"failed"`
}

// Coordinator pushes changed modules into every pool member and restarts the main script.
type Coordinator struct {
	pool     *Pool
	launcher *Launcher
	segment  string
}

// NewCoordinator returns a coordinator stripping segment from module names.
func NewCoordinator(p *Pool, l *Launcher, segment string) *Coordinator {
	return &Coordinator{pool: p, launcher: l, segment: segment}
}

type module struct {
	name string
	path string
}

// RestartAll reloads every module under outputRoot/homeDir into all instances,
// busy ones included, then releases each instance and restarts mainScript on it.
func (c *Coordinator) RestartAll(
	outputRoot string,
	homeDir string,
	mainScript string,
	args jsenv.Arguments,
) (Report, error) {
	start := time.Now()
	home := filepath.Join(outputRoot, homeDir)

	if fi, err := os.Stat(home); err != nil || !fi.IsDir() {
		log.Warn().
			Str("event", "reload_skipped").
			Str("home", home).
			Msg("script home directory does not exist")
		return Report{}, fmt.Errorf("%w: %s", errorcodes.ErrDirectoryMissing, home)
	}

	log.Info().
		Str("event", "reload_started").
		Str("home", home).
		Str("main", mainScript).
		Msg("reloading scripts")

	modules, err := c.collect(outputRoot, home)
	if err != nil {
		return Report{}, err
	}

	engines := c.pool.Engines()
	report := Report{Instances: len(engines)}

	for _, m := range modules {
		source, err := os.ReadFile(m.path)
		if err != nil {
			log.Error().
				Str("event", "reload_read_failed").
				Str("file", m.path).
				Err(err).
				Msg("failed to read script")
			report.Skipped = append(report.Skipped, m.path)
			continue
		}
		c.pool.Broadcast(func(eng Engine) {
			eng.ReloadModule(m.name, source)
			eng.ForceReloadFile(m.path)
		})
		report.Modules++
	}

	main := c.launcher.Resolve(mainScript)
	c.pool.Broadcast(func(eng Engine) {
		eng.Release()
		eng.ForceReloadFile(main)
		if err := eng.Start(main, args); err != nil {
			report.Failed++
			log.Error().
				Str("event", "reload_start_failed").
				Int("port", eng.DebugPort()).
				Err(err).
				Msg("failed to restart main script")
		}
	})

	logging.LogReload(home, main, report.Modules, len(report.Skipped), report.Instances, report.Failed, time.Since(start))

	return report, nil
}

// collect maps logical names to files in walk order; later paths win on collision.
func (c *Coordinator) collect(outputRoot, home string) ([]module, error) {
	index := make(map[string]int)
	var modules []module

	err := filepath.WalkDir(home, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Str("path", path).Err(err).Msg("skipping unreadable path")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || modname.IsSourceMap(path) {
			return nil
		}

		name := modname.Derive(outputRoot, c.segment, path)
		if i, ok := index[name]; ok {
			modules[i].path = path
			return nil
		}
		index[name] = len(modules)
		modules = append(modules, module{name: name, path: path})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", home, err)
	}

	return modules, nil
}
