package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lhaig/boundcheck/internal/manager"
	"github.com/lhaig/boundcheck/internal/verify"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, verify.DefaultConfig(), cfg.Verify.Bounds())
	assert.False(t, cfg.Worker.Enabled)
}

func TestDecodeOverridesDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
verify:
  max_depth: 5
solver:
  timeout: 10s
manager:
  mode: manual
worker:
  enabled: true
  path: /usr/local/bin/boundcheck-worker
  idle_timeout: 30s
log:
  level: debug
telemetry:
  metric_exporter: prometheus
  metrics_addr: ":9464"
`))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Verify.MaxDepth)
	assert.Equal(t, Default().Verify.MaxCallDepth, cfg.Verify.MaxCallDepth)
	assert.Equal(t, 10*time.Second, cfg.Solver.Timeout)
	assert.Equal(t, "manual", cfg.Manager.Mode)
	assert.True(t, cfg.Worker.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Worker.IdleTimeout)
	assert.Equal(t, Default().Worker.Capacity, cfg.Worker.Capacity)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9464", cfg.Telemetry.MetricsAddr)
}

func TestDecodeEmpty(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "verify:\n  depth: 3\n"},
		{"depth out of range", "verify:\n  max_depth: 20\n"},
		{"bad mode", "manager:\n  mode: sometimes\n"},
		{"unaligned capacity", "worker:\n  capacity: 5001\n"},
		{"small capacity", "worker:\n  capacity: 64\n"},
		{"worker without path", "worker:\n  enabled: true\n  path: \"\"\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"bad exporter", "telemetry:\n  metric_exporter: otlp\n"},
		{"bad address", "telemetry:\n  metrics_addr: nowhere\n"},
		{"zero queue", "manager:\n  queue_size: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestValidationErrorsWrapErrInvalid(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "verbose"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestLoadAndFind(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, FileName)
	require.NoError(t, os.WriteFile(path, []byte("verify:\n  max_loop_unroll: 2\n"), 0o644))
	nested := filepath.Join(root, "src", "model")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := Find(nested)
	require.NoError(t, err)
	assert.Equal(t, path, found)

	cfg, err := Load(found)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Verify.MaxLoopUnroll)

	_, err = Load(filepath.Join(root, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("manual")
	require.NoError(t, err)
	assert.Equal(t, manager.Manual, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, manager.Automatic, m)

	_, err = ParseMode("eager")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.Manager.Mode = "manual"
	opts, err := cfg.Manager.Options(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, manager.Manual, opts.Mode)
	assert.Equal(t, cfg.Manager.BatchSize, opts.BatchSize)

	hopts := cfg.Worker.HostOptions("/tmp/x", []string{"--log-level", "debug"}, nil)
	assert.Equal(t, cfg.Worker.Path, hopts.WorkerPath)
	assert.Equal(t, "/tmp/x", hopts.Dir)
	assert.Equal(t, cfg.Worker.IdleTimeout, hopts.IdleTimeout)
	assert.Equal(t, []string{"--log-level", "debug"}, hopts.WorkerArgs)
}
