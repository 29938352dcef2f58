package autograd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-ml/ember/internal/tensor"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Positive(t, cfg.NumWorkers)
	assert.Positive(t, cfg.MinGraphSize)
	assert.False(t, cfg.Deterministic)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num_workers: 2\ndeterministic: true\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.NumWorkers)
	assert.True(t, cfg.Deterministic)
	// Unset fields keep their defaults.
	assert.Equal(t, DefaultConfig().MinGraphSize, cfg.MinGraphSize)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, tensor.ErrInvalidArgument)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num_workers: [not a number"), 0o644))
	_, err = LoadConfig(path)
	require.ErrorIs(t, err, tensor.ErrInvalidArgument)
}
