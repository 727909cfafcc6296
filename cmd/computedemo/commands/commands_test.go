package commands

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/compute/cmd/computedemo/config"
	"github.com/gogpu/compute/cmd/computedemo/scenarios"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRun_Software(t *testing.T) {
	out, _, err := execute(t, "run", "--backend", "software", "--elements", "100", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: software")
	for _, name := range scenarios.Names() {
		assert.Contains(t, out, name)
	}
	assert.NotContains(t, out, "FAIL")
}

func TestRun_SelectedScenario(t *testing.T) {
	out, logs, err := execute(t, "run", "--backend", "software", "--scenario", "chain",
		"--log-format", "json", "--log-level", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "chain")
	assert.NotContains(t, out, "normalize")
	assert.Contains(t, logs, `"msg":"scenario passed"`)
}

func TestRun_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  name: software\nrun:\n  scenarios: [double]\n  elements: 8\n"), 0o600))

	out, _, err := execute(t, "run", "--config", path, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "double")
	assert.Contains(t, out, "8 elements")
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown scenario", []string{"run", "--backend", "software", "--scenario", "fft"}, scenarios.ErrUnknownScenario},
		{"memory budget too small", []string{"run", "--backend", "software", "--scenario", "double", "--memory-budget", "1", "--elements", "200000"}, ErrScenariosFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, append(tt.args, "--log-level", "error")...)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestRun_InvalidBackend(t *testing.T) {
	_, _, err := execute(t, "run", "--backend", "metal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.name")
}

func TestBackends(t *testing.T) {
	out, _, err := execute(t, "backends")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, len(config.ValidBackends)-1)
	assert.Contains(t, out, "software")
}
