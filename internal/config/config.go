// Package config handles configuration loading, validation, and hot
// reloading for dechatter.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the complete filter configuration.
type Config struct {
	// Filter configuration for the debounce engine.
	Filter FilterConfig `toml:"filter" json:"filter" yaml:"filter"`

	// Report configuration for statistics output.
	Report ReportConfig `toml:"report" json:"report" yaml:"report"`

	// Journal configuration for the run-history database.
	Journal JournalConfig `toml:"journal" json:"journal" yaml:"journal"`

	// MQTT configuration for snapshot publishing.
	MQTT MQTTConfig `toml:"mqtt" json:"mqtt" yaml:"mqtt"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// FilterConfig holds the debounce engine settings.
type FilterConfig struct {
	// WindowMs is the debounce window in milliseconds. Key events repeating
	// the same (code, value) identity within the window are dropped.
	// 0 disables filtering.
	WindowMs int `toml:"window_ms" json:"window_ms" yaml:"window_ms"`

	// NearMissMs is the near-miss diagnostic threshold in milliseconds.
	// Passed events closer than this to the previous pass of the same
	// identity are reported as near misses. Independent of the window.
	NearMissMs int `toml:"near_miss_ms" json:"near_miss_ms" yaml:"near_miss_ms"`
}

// ReportConfig holds statistics reporting settings.
type ReportConfig struct {
	// IntervalSec is the periodic stats dump interval in seconds.
	// 0 disables periodic dumps.
	IntervalSec int `toml:"interval_sec" json:"interval_sec" yaml:"interval_sec"`

	// StatsJSON selects JSON output for reports instead of human text.
	StatsJSON bool `toml:"stats_json" json:"stats_json" yaml:"stats_json"`

	// LogAllEvents logs every processed event except EV_SYN/EV_MSC.
	LogAllEvents bool `toml:"log_all_events" json:"log_all_events" yaml:"log_all_events"`

	// LogBounces logs each dropped event.
	LogBounces bool `toml:"log_bounces" json:"log_bounces" yaml:"log_bounces"`
}

// JournalConfig holds run-history journal settings.
type JournalConfig struct {
	// Path is the SQLite database file. Empty disables the journal.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// MQTTConfig holds snapshot publishing settings.
type MQTTConfig struct {
	// Enabled turns on MQTT publishing of stats snapshots.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker string `toml:"broker" json:"broker" yaml:"broker"`

	// TopicPrefix prefixes the interval and final snapshot topics.
	TopicPrefix string `toml:"topic_prefix" json:"topic_prefix" yaml:"topic_prefix"`

	// ClientID identifies this filter instance to the broker.
	ClientID string `toml:"client_id" json:"client_id" yaml:"client_id"`
}

// LoggingConfig holds diagnostic logging settings. All logging goes to
// stderr; stdout carries the event stream.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log record format: text or json.
	Format string `toml:"format" json:"format" yaml:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Filter: FilterConfig{
			WindowMs:   25,
			NearMissMs: 100,
		},
		Report: ReportConfig{
			IntervalSec:  0, // Disabled by default
			StatsJSON:    false,
			LogAllEvents: false,
			LogBounces:   false,
		},
		Journal: JournalConfig{
			Path: "", // Disabled by default
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "",
			TopicPrefix: "dechatter",
			ClientID:    "dechatter",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DechatterDir returns the directory for dechatter's own files.
func DechatterDir() string {
	if envDir := os.Getenv("DECHATTER_DATA_DIR"); envDir != "" {
		return envDir
	}
	// Interception pipelines run as root; prefer the system location.
	if os.Geteuid() == 0 {
		return "/etc/dechatter"
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dechatter")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/dechatter"
	}
	return filepath.Join(home, ".config", "dechatter")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DechatterDir(), "config.toml")
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Variables are prefixed with DECHATTER_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	if v, ok := envInt("DECHATTER_WINDOW_MS"); ok {
		c.Filter.WindowMs = v
	}
	if v, ok := envInt("DECHATTER_NEAR_MISS_MS"); ok {
		c.Filter.NearMissMs = v
	}
	if v, ok := envInt("DECHATTER_LOG_INTERVAL_SEC"); ok {
		c.Report.IntervalSec = v
	}
	if v, ok := envBool("DECHATTER_STATS_JSON"); ok {
		c.Report.StatsJSON = v
	}
	if v, ok := envBool("DECHATTER_LOG_ALL_EVENTS"); ok {
		c.Report.LogAllEvents = v
	}
	if v, ok := envBool("DECHATTER_LOG_BOUNCES"); ok {
		c.Report.LogBounces = v
	}
	if v := os.Getenv("DECHATTER_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
	}
	if v := os.Getenv("DECHATTER_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
		c.MQTT.Enabled = true
	}
	if v := os.Getenv("DECHATTER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DECHATTER_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Window returns the debounce window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Filter.WindowMs) * time.Millisecond
}

// NearMiss returns the near-miss threshold as a duration.
func (c *Config) NearMiss() time.Duration {
	return time.Duration(c.Filter.NearMissMs) * time.Millisecond
}

// LogInterval returns the periodic dump interval as a duration.
func (c *Config) LogInterval() time.Duration {
	return time.Duration(c.Report.IntervalSec) * time.Second
}
