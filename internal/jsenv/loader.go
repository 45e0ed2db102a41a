package jsenv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andrei-cloud/go_reactor/internal/errorcodes"
)

// ModuleLoader resolves require() ids to files and reads them.
type ModuleLoader interface {
	Resolve(referrer, id string) (string, error)
	ReadFile(path string) ([]byte, error)
}

// FileLoader resolves modules from a scripts directory on disk.
// Relative ids resolve against the requiring file, bare ids against the
// root and then root/node_modules.
type FileLoader struct {
	root string
}

// NewFileLoader returns a loader rooted at dir.
func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{root: dir}
}

// Root returns the directory bare ids resolve against.
func (l *FileLoader) Root() string {
	return l.root
}

// Resolve maps a require id to an existing file.
func (l *FileLoader) Resolve(referrer, id string) (string, error) {
	var candidates []string
	switch {
	case filepath.IsAbs(id):
		candidates = []string{id}
	case isRelative(id):
		dir := l.root
		if referrer != "" {
			dir = filepath.Dir(referrer)
		}
		candidates = []string{filepath.Join(dir, id)}
	default:
		candidates = []string{
			filepath.Join(l.root, id),
			filepath.Join(l.root, "node_modules", id),
		}
	}

	for _, base := range candidates {
		if p, ok := lookupFile(base); ok {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: %s", errorcodes.ErrModuleNotFound, id)
}

// ReadFile reads a resolved module file.
func (l *FileLoader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func isRelative(id string) bool {
	return id == "." || id == ".." || strings.HasPrefix(id, "./") || strings.HasPrefix(id, "../")
}

func lookupFile(base string) (string, bool) {
	for _, c := range []string{base, base + ".js", filepath.Join(base, "index.js")} {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return c, true
		}
	}

	return "", false
}
