package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bietje/RBtree/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rbtree.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, config.FormatText, cfg.Logging.Format)
	assert.Equal(t, 4, cfg.Allocator.Shards)
	assert.Equal(t, 4096, cfg.Allocator.HibernationThreshold)
	assert.Zero(t, cfg.Allocator.Limit)
	assert.Equal(t, 100000, cfg.Bench.Ops)
	assert.Equal(t, 10000, cfg.Bench.KeySpace)
	assert.Equal(t, int64(1), cfg.Bench.Seed)
	assert.InDelta(t, 0.4, cfg.Bench.DeleteRatio, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Telemetry.ShutdownTimeout)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
logging:
  level: debug
  format: json
allocator:
  shards: 8
  limit: 5000
bench:
  ops: 250
  key_space: 64
  seed: 42
  delete_ratio: 0.25
telemetry:
  otlp_endpoint: "localhost:4317"
  otlp_insecure: true
  shutdown_timeout: "2s"
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	level, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
	assert.Equal(t, config.FormatJSON, cfg.Logging.Format)
	assert.Equal(t, 8, cfg.Allocator.Shards)
	assert.Equal(t, 5000, cfg.Allocator.Limit)
	assert.Equal(t, 250, cfg.Bench.Ops)
	assert.Equal(t, 64, cfg.Bench.KeySpace)
	assert.Equal(t, int64(42), cfg.Bench.Seed)
	assert.InDelta(t, 0.25, cfg.Bench.DeleteRatio, 1e-9)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.OTLPInsecure)
	assert.Equal(t, 2*time.Second, cfg.Telemetry.ShutdownTimeout)

	// Untouched sections keep their defaults.
	assert.Equal(t, 1000, cfg.Bench.CheckEvery)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("RBTREE_ALLOCATOR_SHARDS", "2")
	t.Setenv("RBTREE_BENCH_OPS", "77")
	t.Setenv("RBTREE_LOGGING_LEVEL", "warn")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Allocator.Shards)
	assert.Equal(t, 77, cfg.Bench.Ops)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		want    error
	}{
		{"log level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"log format", "logging:\n  format: xml\n", config.ErrInvalidLogFormat},
		{"shards", "allocator:\n  shards: 0\n", config.ErrInvalidShards},
		{"limit", "allocator:\n  limit: -1\n", config.ErrInvalidLimit},
		{"threshold", "allocator:\n  hibernation_threshold: -5\n", config.ErrInvalidThreshold},
		{"ops", "bench:\n  ops: 0\n", config.ErrInvalidOps},
		{"key space", "bench:\n  key_space: -3\n", config.ErrInvalidKeySpace},
		{"delete ratio", "bench:\n  delete_ratio: 1\n", config.ErrInvalidDeleteRatio},
		{"sample ratio", "telemetry:\n  sample_ratio: 1.5\n", config.ErrInvalidSampleRatio},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tc.content))
			require.ErrorIs(t, err, tc.want)
		})
	}
}
