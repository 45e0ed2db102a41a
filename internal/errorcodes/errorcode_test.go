package errorcodes

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvErrorFormatting(t *testing.T) {
	assert.Equal(t, "RE: No free script engine instance", ErrResourceExhausted.Error())
	assert.Equal(t, "SN", ErrScriptNotFound.CodeOnly())
}

func TestEnvErrorWrapping(t *testing.T) {
	wrapped := fmt.Errorf("start launch.js: %w", ErrScriptNotFound)

	assert.ErrorIs(t, wrapped, ErrScriptNotFound)
	assert.NotErrorIs(t, wrapped, ErrResourceExhausted)

	var envErr EnvError
	assert.True(t, errors.As(wrapped, &envErr))
	assert.Equal(t, "SN", envErr.Code)
}
