package goroutineid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetDiffersAcrossGoroutines(t *testing.T) {
	here := Get()
	assert.Positive(t, here)
	assert.Equal(t, here, Get())

	other := make(chan int64)
	go func() { other <- Get() }()
	assert.NotEqual(t, here, <-other)
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"goroutine 42 [running]:\nmain.main()", 42},
		{"goroutine 7 [", 7},
		{"", 0},
		{"something else", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parse([]byte(tt.in)), tt.in)
	}
}
