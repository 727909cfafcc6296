package scenarios

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/compute"
	"github.com/gogpu/compute/backend/software"
)

func newContext(t *testing.T) *compute.Context {
	t.Helper()
	a := software.New(software.WithWorkers(2))
	t.Cleanup(a.Destroy)
	c, err := compute.NewContext(compute.WithAdapter(a))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name string
		n    int
	}{
		{"double", 1},
		{"double", 130},
		{"chain", 64},
		{"chain", 100},
		{"normalize", 3},
		{"normalize", 257},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := Lookup(tt.name)
			require.NoError(t, err)
			assert.NoError(t, fn(context.Background(), newContext(t), tt.n))
		})
	}
}

func TestRun(t *testing.T) {
	c := newContext(t)
	log := slog.New(slog.DiscardHandler)

	results, err := Run(context.Background(), c, Names(), 16, log)
	require.NoError(t, err)
	require.Len(t, results, len(Names()))
	for _, r := range results {
		assert.NoError(t, r.Err, r.Name)
		assert.Equal(t, 16, r.Elements)
	}
	assert.Zero(t, c.Stats().Shaders)
	assert.Zero(t, c.Stats().Buffers)
}

func TestRun_UnknownScenario(t *testing.T) {
	c := newContext(t)
	results, err := Run(context.Background(), c, []string{"chain", "fft"}, 4, slog.New(slog.DiscardHandler))
	assert.True(t, errors.Is(err, ErrUnknownScenario))
	assert.Len(t, results, 1)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"chain", "double", "normalize"}, Names())
}

func TestWorkgroups(t *testing.T) {
	assert.Equal(t, uint32(0), workgroups(0))
	assert.Equal(t, uint32(1), workgroups(1))
	assert.Equal(t, uint32(1), workgroups(64))
	assert.Equal(t, uint32(2), workgroups(65))
}
