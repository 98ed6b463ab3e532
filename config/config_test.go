package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromBytes(t *testing.T) {
	yamlContent := []byte(`
version: "1.0"
daemon:
  snapshot_path: /var/lib/opsync/operations.json
  socket_path: /var/run/opsync/opsyncd.sock
client:
  poll_interval_ms: 500
  watch_debounce_ms: 50
`)

	cfg, err := LoadFromBytes(yamlContent)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/opsync/operations.json", cfg.Daemon.SnapshotPath)
	assert.Equal(t, "/var/run/opsync/opsyncd.sock", cfg.Daemon.SocketPath)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.PollInterval())
	assert.Equal(t, 50*time.Millisecond, cfg.Client.WatchDebounce())
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 2*time.Second, cfg.Client.PollInterval())
	assert.Equal(t, 100*time.Millisecond, cfg.Client.WatchDebounce())

	min, max := cfg.Client.ReconnectBackoff()
	assert.Equal(t, 500*time.Millisecond, min)
	assert.Equal(t, 15*time.Second, max)

	// Resolved paths fall back to the well-known locations.
	assert.NotEmpty(t, cfg.ResolvedSnapshotPath())
	assert.NotEmpty(t, cfg.ResolvedSocketPath())
}

func TestExtensions(t *testing.T) {
	yamlContent := []byte(`
version: "1.0"
client:
  poll_interval_ms: 1000

logging:
  level: debug
  report_caller: true

notifications:
  webhook_url: https://example.invalid/hook
`)

	cfg, err := LoadFromBytes(yamlContent)
	require.NoError(t, err)
	require.NotNil(t, cfg.Extensions)

	_, ok := cfg.Extensions["logging"]
	require.True(t, ok, "expected 'logging' extension to be captured")

	type loggingConfig struct {
		Level        string `yaml:"level"`
		ReportCaller bool   `yaml:"report_caller"`
	}

	var logCfg loggingConfig
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	assert.Equal(t, "debug", logCfg.Level)
	assert.True(t, logCfg.ReportCaller)

	// Absent section is a no-op, not an error.
	var other loggingConfig
	require.NoError(t, cfg.UnmarshalExtension("missing", &other))
	assert.Empty(t, other.Level)

	// Known sections never leak into extensions.
	_, ok = cfg.Extensions["client"]
	assert.False(t, ok)
}

func TestInvalidYAML(t *testing.T) {
	_, err := LoadFromBytes([]byte("daemon: [not a mapping"))
	require.Error(t, err)
}
