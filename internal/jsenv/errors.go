package jsenv

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

var errEnvClosed = errors.New("engine instance closed")

// ScriptError reports a failure while loading or evaluating a script.
type ScriptError struct {
	Script string
	Err    error
}

func (e *ScriptError) Error() string {
	var ex *goja.Exception
	if errors.As(e.Err, &ex) {
		return fmt.Sprintf("script %s: %s", e.Script, ex.String())
	}

	return fmt.Sprintf("script %s: %v", e.Script, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}
