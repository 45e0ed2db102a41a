// Package build transpiles script sources into the layout the runtime pool loads.
package build

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/andrei-cloud/go_reactor/pkg/modname"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

// Result counts what Compile produced.
type Result struct {
	Compiled int
	Copied   int
}

var loaders = map[string]api.Loader{
	".ts":  api.LoaderTS,
	".tsx": api.LoaderTSX,
	".js":  api.LoaderJS,
	".jsx": api.LoaderJSX,
}

// Compile walks sourceDir and writes CommonJS output with external source maps
// under outDir, keeping the relative layout. Declaration files and node_modules
// are skipped; any other file is copied as is.
func Compile(sourceDir, outDir string) (Result, error) {
	var res Result
	var failed []error

	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		if strings.HasSuffix(path, ".d.ts") {
			return nil
		}

		loader, ok := loaders[filepath.Ext(path)]
		if !ok {
			if err := copyFile(path, filepath.Join(outDir, rel)); err != nil {
				return err
			}
			res.Copied++
			return nil
		}

		target := filepath.Join(outDir, strings.TrimSuffix(rel, filepath.Ext(rel))+modname.ScriptExt)
		if err := transpile(path, target, loader); err != nil {
			failed = append(failed, err)
			return nil
		}
		res.Compiled++
		log.Debug().Str("event", "script_compiled").Str("source", rel).Str("target", target).Msg("compiled")

		return nil
	})
	if err != nil {
		return res, err
	}

	return res, errors.Join(failed...)
}

func transpile(src, dst string, loader api.Loader) error {
	code, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	result := api.Transform(string(code), api.TransformOptions{
		Loader:     loader,
		Format:     api.FormatCommonJS,
		Target:     api.ES2017,
		Sourcemap:  api.SourceMapExternal,
		Sourcefile: src,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return fmt.Errorf("transform %s: %s", src, strings.Join(msgs, "\n"))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	mapName := filepath.Base(dst) + ".map"
	out := append(result.Code, []byte("//# sourceMappingURL="+mapName+"\n")...)
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return err
	}

	return os.WriteFile(dst+".map", result.Map, 0o644)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	return os.WriteFile(dst, data, 0o644)
}
