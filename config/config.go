// Package config loads opsync.yml and exposes typed settings for the daemon
// and client sides. Unknown top-level sections are preserved as extensions so
// other packages (e.g. logging) can carry their own config without this
// package knowing about them.
package config

import (
	"time"

	"github.com/patchforge/opsync/pkg/paths"
)

// Config is the root of opsync.yml.
type Config struct {
	Version string       `yaml:"version,omitempty"`
	Daemon  DaemonConfig `yaml:"daemon"`
	Client  ClientConfig `yaml:"client"`

	// Extensions holds top-level sections not owned by this package,
	// keyed by section name. Decode one with UnmarshalExtension.
	Extensions map[string]interface{} `yaml:"-"`
}

// DaemonConfig configures the producer side.
type DaemonConfig struct {
	// SnapshotPath overrides the well-known snapshot file location.
	SnapshotPath string `yaml:"snapshot_path,omitempty"`
	// SocketPath overrides the unix socket the daemon listens on.
	SocketPath string `yaml:"socket_path,omitempty"`
	// PidFile overrides the pidfile location.
	PidFile string `yaml:"pid_file,omitempty"`
}

// ClientConfig configures the consumer side's three delivery channels.
type ClientConfig struct {
	// PollIntervalMs is the unconditional snapshot reload interval. It bounds
	// worst-case staleness when both broadcast and file watching fail.
	PollIntervalMs int `yaml:"poll_interval_ms,omitempty"`
	// WatchDebounceMs coalesces rapid snapshot writes before reloading.
	WatchDebounceMs int `yaml:"watch_debounce_ms,omitempty"`
	// ReconnectMinMs / ReconnectMaxMs bound the broadcast reconnect backoff.
	ReconnectMinMs int `yaml:"reconnect_min_ms,omitempty"`
	ReconnectMaxMs int `yaml:"reconnect_max_ms,omitempty"`
}

const (
	defaultPollIntervalMs  = 2000
	defaultWatchDebounceMs = 100
	defaultReconnectMinMs  = 500
	defaultReconnectMaxMs  = 15000
)

// Default returns the configuration used when no opsync.yml exists.
func Default() *Config {
	return &Config{Extensions: map[string]interface{}{}}
}

// ResolvedSnapshotPath returns the configured snapshot path or the well-known default.
func (c *Config) ResolvedSnapshotPath() string {
	if c.Daemon.SnapshotPath != "" {
		return c.Daemon.SnapshotPath
	}
	return paths.SnapshotPath()
}

// ResolvedSocketPath returns the configured socket path or the well-known default.
func (c *Config) ResolvedSocketPath() string {
	if c.Daemon.SocketPath != "" {
		return c.Daemon.SocketPath
	}
	return paths.SocketPath()
}

// ResolvedPidFile returns the configured pidfile path or the well-known default.
func (c *Config) ResolvedPidFile() string {
	if c.Daemon.PidFile != "" {
		return c.Daemon.PidFile
	}
	return paths.PidFilePath()
}

// PollInterval returns the poll fallback interval with defaults applied.
func (c *ClientConfig) PollInterval() time.Duration {
	ms := c.PollIntervalMs
	if ms <= 0 {
		ms = defaultPollIntervalMs
	}
	return time.Duration(ms) * time.Millisecond
}

// WatchDebounce returns the snapshot watch debounce with defaults applied.
func (c *ClientConfig) WatchDebounce() time.Duration {
	ms := c.WatchDebounceMs
	if ms <= 0 {
		ms = defaultWatchDebounceMs
	}
	return time.Duration(ms) * time.Millisecond
}

// ReconnectBackoff returns the (min, max) broadcast reconnect delays.
func (c *ClientConfig) ReconnectBackoff() (time.Duration, time.Duration) {
	min := c.ReconnectMinMs
	if min <= 0 {
		min = defaultReconnectMinMs
	}
	max := c.ReconnectMaxMs
	if max < min {
		max = defaultReconnectMaxMs
	}
	return time.Duration(min) * time.Millisecond, time.Duration(max) * time.Millisecond
}
