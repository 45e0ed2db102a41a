package scripts

import (
	"testing"

	"github.com/andrei-cloud/go_reactor/internal/errorcodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArguments(t *testing.T) {
	args, err := parseArguments([]string{"name=Main", "count=3", `opts={"a":true}`, "eq=a=b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "count", "opts", "eq"}, args.Names())

	v, _ := args.Get("name")
	assert.Equal(t, "Main", v)
	v, _ = args.Get("count")
	assert.Equal(t, float64(3), v)
	v, _ = args.Get("opts")
	assert.Equal(t, map[string]any{"a": true}, v)
	v, _ = args.Get("eq")
	assert.Equal(t, "a=b", v)
}

func TestParseArgumentsErrors(t *testing.T) {
	tests := []struct {
		name  string
		pairs []string
	}{
		{"missing equals", []string{"name"}},
		{"empty name", []string{"=x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArguments(tt.pairs)
			assert.Error(t, err)
		})
	}

	_, err := parseArguments([]string{"a=1", "a=2"})
	assert.ErrorIs(t, err, errorcodes.ErrDuplicateArgument)
}
