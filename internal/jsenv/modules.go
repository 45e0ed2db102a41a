package jsenv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andrei-cloud/go_reactor/internal/errorcodes"
	"github.com/andrei-cloud/go_reactor/pkg/modname"
	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja_nodejs/console"
)

const (
	wrapperHead = "(function(exports, require, module, __filename, __dirname) {"
	wrapperTail = "\n})"
)

// natives are resolved through the event loop registry instead of the disk loader.
var natives = map[string]bool{
	console.ModuleName: true,
	HostModule:         true,
}

// requireFrom returns a require function resolving relative ids against referrer.
func (e *Env) requireFrom(vm *goja.Runtime, referrer string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		if natives[id] {
			v, err := e.nativeRequire(goja.Undefined(), vm.ToValue(id))
			if err != nil {
				panic(err)
			}
			return v
		}

		path, err := e.loader.Resolve(referrer, id)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		name := modname.Derive(e.root, e.segment, path)
		if m := e.loaded(name); m != nil {
			return m.Get("exports")
		}

		m, err := e.evaluate(vm, name, path, true)
		if err != nil {
			var ex *goja.Exception
			if errors.As(err, &ex) {
				panic(ex)
			}
			panic(vm.NewGoError(err))
		}

		return m.Get("exports")
	}
}

// evaluate runs the module body and returns its module object.
// Cached modules are registered before the body runs so cycles see partial exports.
func (e *Env) evaluate(vm *goja.Runtime, name, path string, cache bool) (*goja.Object, error) {
	prog, err := e.program(name, path)
	if err != nil {
		return nil, err
	}

	fnVal, err := vm.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("module %s did not compile to a function", name)
	}

	module := vm.NewObject()
	exports := vm.NewObject()
	_ = module.Set("exports", exports)
	_ = module.Set("id", name)
	if cache {
		e.store(name, module)
	}

	_, err = fn(
		exports,
		exports,
		vm.ToValue(e.requireFrom(vm, path)),
		module,
		vm.ToValue(path),
		vm.ToValue(filepath.Dir(path)),
	)
	if err != nil {
		if cache {
			e.forget(name)
		}
		return nil, err
	}

	return module, nil
}

// program returns the compiled module, preferring overlay source over disk.
func (e *Env) program(name, path string) (*goja.Program, error) {
	e.mu.Lock()
	if p, ok := e.programs.Get(name); ok {
		e.mu.Unlock()
		return p.(*goja.Program), nil
	}
	src, ok := e.sources[name]
	e.mu.Unlock()

	code := src.code
	if !ok {
		data, err := e.loader.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errorcodes.ErrFileRead, path, err)
		}
		code = data
	}

	prog, err := compile(path, code)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs.Add(name, prog)
	e.mu.Unlock()

	return prog, nil
}

// compile wraps code as a CommonJS function. A sibling .map file is applied when present.
func compile(path string, code []byte) (*goja.Program, error) {
	src := wrapperHead + string(code) + wrapperTail

	if _, err := os.Stat(path + ".map"); err == nil {
		ast, err := goja.Parse(path, src, parser.WithSourceMapLoader(func(p string) ([]byte, error) {
			if !filepath.IsAbs(p) {
				p = filepath.Join(filepath.Dir(path), filepath.Base(p))
			}
			return os.ReadFile(p)
		}))
		if err == nil {
			return goja.CompileAST(ast, false)
		}
	}

	ast, err := goja.Parse(path, src, parser.WithDisableSourceMaps)
	if err != nil {
		return nil, err
	}

	return goja.CompileAST(ast, false)
}

func (e *Env) loaded(name string) *goja.Object {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.modules[name]
}

func (e *Env) store(name string, module *goja.Object) {
	e.mu.Lock()
	e.modules[name] = module
	e.mu.Unlock()
}

func (e *Env) forget(name string) {
	e.mu.Lock()
	delete(e.modules, name)
	e.mu.Unlock()
}
