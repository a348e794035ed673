// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// APIConfig holds calendar API endpoint overrides.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	RevokeURL string `yaml:"revoke_url"`
}

// DaemonConfig holds background daemon settings. Enabled is a pointer
// so a config file that omits the daemon block still defaults to on.
type DaemonConfig struct {
	Enabled         *bool  `yaml:"enabled"`
	CleanupInterval string `yaml:"cleanup_interval"` // e.g. "1h"
	NotifyInterval  string `yaml:"notify_interval"`  // how often upcoming events are checked
	LogFile         string `yaml:"log_file"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// Config represents the application configuration. User preferences
// that the daemon reacts to live in the store as settings; this file
// covers process-level wiring only.
type Config struct {
	DatabasePath string        `yaml:"database_path"`
	DefaultView  string        `yaml:"default_view"`
	API          APIConfig     `yaml:"api"`
	Daemon       DaemonConfig  `yaml:"daemon"`
	Logging      LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DatabasePath: filepath.Join(GetDataDir(), "upnext.db"),
		DefaultView:  "today",
		Daemon: DaemonConfig{
			CleanupInterval: "1h",
			NotifyInterval:  "1m",
			LogFile:         filepath.Join(GetDataDir(), "daemon.log"),
		},
	}
}

// Load loads configuration from the specified path, or the default XDG
// path if empty. A missing file is created with defaults.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}

	// Apply defaults for unset fields
	defaults := DefaultConfig()
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaults.DatabasePath
	}
	if cfg.DefaultView == "" {
		cfg.DefaultView = defaults.DefaultView
	}
	if cfg.Daemon.CleanupInterval == "" {
		cfg.Daemon.CleanupInterval = defaults.Daemon.CleanupInterval
	}
	if cfg.Daemon.NotifyInterval == "" {
		cfg.Daemon.NotifyInterval = defaults.Daemon.NotifyInterval
	}
	if cfg.Daemon.LogFile == "" {
		cfg.Daemon.LogFile = defaults.Daemon.LogFile
	}

	cfg.DatabasePath = ExpandPath(cfg.DatabasePath)
	cfg.Daemon.LogFile = ExpandPath(cfg.Daemon.LogFile)

	return cfg, nil
}

// save writes the configuration to the specified path
func (c *Config) save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The embedded sample includes all documentation and comments
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.DefaultView {
	case "today", "tomorrow", "week":
	default:
		return fmt.Errorf("invalid default_view: %q (must be today, tomorrow, or week)", c.DefaultView)
	}

	if _, err := time.ParseDuration(c.Daemon.CleanupInterval); err != nil {
		return fmt.Errorf("invalid daemon.cleanup_interval: %q", c.Daemon.CleanupInterval)
	}
	if _, err := time.ParseDuration(c.Daemon.NotifyInterval); err != nil {
		return fmt.Errorf("invalid daemon.notify_interval: %q", c.Daemon.NotifyInterval)
	}
	return nil
}

// GetDatabasePath returns the key-value store path.
func (c *Config) GetDatabasePath() string {
	return c.DatabasePath
}

// GetRecordsPath returns the notification records database path,
// placed next to the main store.
func (c *Config) GetRecordsPath() string {
	return filepath.Join(filepath.Dir(c.DatabasePath), "notified.db")
}

// GetCleanupInterval returns how often the daemon evicts stale cache
// entries, defaulting to an hour on parse failure.
func (c *Config) GetCleanupInterval() time.Duration {
	d, err := time.ParseDuration(c.Daemon.CleanupInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// GetNotifyInterval returns how often the daemon checks for upcoming
// events, defaulting to a minute on parse failure.
func (c *Config) GetNotifyInterval() time.Duration {
	d, err := time.ParseDuration(c.Daemon.NotifyInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// IsDaemonEnabled reports whether the background daemon should run.
// Unset means enabled.
func (c *Config) IsDaemonEnabled() bool {
	return c.Daemon.Enabled == nil || *c.Daemon.Enabled
}

// IsVerbose reports whether debug logging is on.
func (c *Config) IsVerbose() bool {
	return c.Logging.Verbose
}

// getXDGDir returns an XDG base directory for this application
func getXDGDir(envVar, fallback string) string {
	base := os.Getenv(envVar)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		base = filepath.Join(home, fallback)
	}
	return filepath.Join(base, "upnext")
}

// GetConfigDir returns the config directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// GetRuntimeDir returns the directory for sockets and PID files.
func GetRuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "upnext")
	}
	return filepath.Join(os.TempDir(), "upnext")
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
