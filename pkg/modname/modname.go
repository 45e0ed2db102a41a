// Package modname derives stable logical module names from compiled script paths.
//
// A module name is the path relative to the scripts output root, with the
// configured root segment and the file extension removed:
//
//	Derive("/content", "JavaScript", "/content/JavaScript/src/Foo/launch.js") // "src/Foo/launch"
package modname

import (
	"path/filepath"
	"strings"
)

const (
	// ScriptExt is the extension of compiled scripts.
	ScriptExt = ".js"
	// SourceMapExt marks source map companions that never become modules.
	SourceMapExt = ".js.map"
)

// Derive returns the logical module name of path under root.
// Paths outside root keep their slash-separated form minus the extension.
func Derive(root, segment, path string) string {
	rel := path
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)

	if seg := strings.Trim(filepath.ToSlash(segment), "/"); seg != "" {
		rel = strings.TrimPrefix(rel, seg+"/")
	}

	return StripExt(rel)
}

// StripExt removes everything from the last dot onward, wherever it sits.
func StripExt(name string) string {
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		return name[:dot]
	}

	return name
}

// IsSourceMap reports whether path is a source map companion file.
func IsSourceMap(path string) bool {
	return strings.HasSuffix(path, SourceMapExt)
}

// NormalizeScript appends the script extension when it is missing.
func NormalizeScript(path string) string {
	if strings.HasSuffix(path, ScriptExt) {
		return path
	}

	return path + ScriptExt
}
