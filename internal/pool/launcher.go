package pool

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/andrei-cloud/go_reactor/internal/errorcodes"
	"github.com/andrei-cloud/go_reactor/internal/jsenv"
	"github.com/andrei-cloud/go_reactor/pkg/modname"
	"github.com/rs/zerolog/log"
)

// Launcher validates script paths and starts them on checked-out instances.
type Launcher struct {
	root string
}

// NewLauncher returns a launcher resolving relative script paths against root.
// An empty root resolves against the working directory.
func NewLauncher(root string) *Launcher {
	return &Launcher{root: root}
}

// Resolve normalizes a script path: ".js" is appended when missing and
// relative paths are anchored at the launcher root.
func (l *Launcher) Resolve(script string) string {
	script = modname.NormalizeScript(script)
	if l.root != "" && !filepath.IsAbs(script) {
		script = filepath.Join(l.root, script)
	}

	return script
}

// CheckScriptLegal reports whether the script file exists.
func (l *Launcher) CheckScriptLegal(script string) bool {
	path := l.Resolve(script)
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		log.Error().
			Str("event", "script_missing").
			Str("script", path).
			Msg("script file does not exist")
		return false
	}

	return true
}

// Start validates script and starts it on eng with args.
func (l *Launcher) Start(eng Engine, script string, args jsenv.Arguments) error {
	if eng == nil {
		return errorcodes.ErrInvalidInstance
	}
	if !l.CheckScriptLegal(script) {
		return fmt.Errorf("%w: %s", errorcodes.ErrScriptNotFound, l.Resolve(script))
	}

	return eng.Start(l.Resolve(script), args)
}
