// Package config loads drawsync configuration from a file and the
// environment.
//
// Settings are resolved in the usual precedence order: explicit flags
// beat environment variables (prefixed DRAWSYNC_), which beat the
// config file, which beats the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the drawsync process.
type Config struct {
	// CaseID names the case this process serves.
	CaseID string `mapstructure:"case_id"`

	// DBPath is the drawable store SQLite file.
	DBPath string `mapstructure:"db_path"`

	// WatchRoot, when set, is a directory the ingest watcher observes;
	// each of its subdirectories becomes a data source.
	WatchRoot string `mapstructure:"watch_root"`

	// BatchSize is the bulk sync transaction batch size.
	BatchSize int `mapstructure:"batch_size"`

	// Yield is the pause after each bulk batch commit.
	Yield time.Duration `mapstructure:"yield"`

	// ShutdownTimeout bounds the queue drain on exit.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// TagCacheSize bounds the in-memory tag cache.
	TagCacheSize int `mapstructure:"tag_cache_size"`

	// DashboardPort is the WebSocket dashboard listen port; zero
	// disables the dashboard.
	DashboardPort int `mapstructure:"dashboard_port"`

	// SnapshotInterval is how often the dashboard republishes the
	// build status snapshot.
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`

	// LogFile, when set, routes logs to a rotating file instead of
	// stderr.
	LogFile string `mapstructure:"log_file"`

	// LogMaxSizeMB is the rotation threshold for LogFile.
	LogMaxSizeMB int `mapstructure:"log_max_size_mb"`

	// LogMaxBackups is how many rotated log files to keep.
	LogMaxBackups int `mapstructure:"log_max_backups"`
}

// setDefaults installs the built-in defaults on a viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("case_id", "default")
	v.SetDefault("db_path", "drawable.db")
	v.SetDefault("watch_root", "")
	v.SetDefault("batch_size", 200)
	v.SetDefault("yield", 500*time.Millisecond)
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("tag_cache_size", 4096)
	v.SetDefault("dashboard_port", 8090)
	v.SetDefault("snapshot_interval", 10*time.Second)
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_max_backups", 3)
}

// Load reads configuration from the given file (optional), the
// environment, and the defaults. An empty path searches the working
// directory for drawsync.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DRAWSYNC")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("drawsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine when none was requested
		// explicitly; everything has a default.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component could run with.
func (c *Config) Validate() error {
	if c.CaseID == "" {
		return fmt.Errorf("case_id cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path cannot be empty")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.TagCacheSize <= 0 {
		return fmt.Errorf("tag_cache_size must be positive, got %d", c.TagCacheSize)
	}
	if c.DashboardPort < 0 || c.DashboardPort > 65535 {
		return fmt.Errorf("dashboard_port out of range: %d", c.DashboardPort)
	}
	return nil
}
