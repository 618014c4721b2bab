// Package config handles loading and managing maildex configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the maildex configuration.
type Config struct {
	Data        DataConfig         `toml:"data"`
	Sync        SyncConfig         `toml:"sync"`
	Server      ServerConfig       `toml:"server"`
	Connections []ConnectionConfig `toml:"connections"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// SyncConfig holds background sync tuning.
type SyncConfig struct {
	Folders           []string `toml:"folders"`             // folders to sync, in order
	FreshnessMinutes  int      `toml:"freshness_minutes"`   // completed-folder trust window
	PageDelayMillis   int      `toml:"page_delay_ms"`       // fixed inter-page delay
	ActivationDelayMS int      `toml:"activation_delay_ms"` // idle-scheduling fallback
	RateLimitQPS      float64  `toml:"rate_limit_qps"`      // remote source request budget
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort int    `toml:"api_port"` // HTTP server port (default: 8080)
	APIKey  string `toml:"api_key"`  // API authentication key
}

// ConnectionConfig describes one mail connection and its optional catch-up
// schedule.
type ConnectionConfig struct {
	ID       string `toml:"id"`       // connection identifier (also the db file name)
	Schedule string `toml:"schedule"` // cron expression for periodic catch-up
	Enabled  bool   `toml:"enabled"`  // whether scheduled sync is active
}

// DefaultHome returns the default maildex home directory.
// Respects the MAILDEX_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MAILDEX_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".maildex"
	}
	return filepath.Join(home, ".maildex")
}

// Load reads the configuration from the specified file.
// If path is empty, uses the default location (~/.maildex/config.toml).
// The config file is optional; defaults apply when it is absent.
func Load(path string) (*Config, error) {
	homeDir := DefaultHome()

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
		Sync: SyncConfig{
			Folders:           []string{"inbox", "sent"},
			FreshnessMinutes:  60,
			PageDelayMillis:   2000,
			ActivationDelayMS: 500,
			RateLimitQPS:      5,
		},
		Server: ServerConfig{
			APIPort: 8080,
		},
		Connections: []ConnectionConfig{},
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)

	return cfg, nil
}

// Freshness returns the completed-folder trust window as a duration.
func (c *Config) Freshness() time.Duration {
	return time.Duration(c.Sync.FreshnessMinutes) * time.Minute
}

// PageDelay returns the fixed inter-page delay as a duration.
func (c *Config) PageDelay() time.Duration {
	return time.Duration(c.Sync.PageDelayMillis) * time.Millisecond
}

// ActivationDelay returns the idle-scheduling fallback delay as a duration.
func (c *Config) ActivationDelay() time.Duration {
	return time.Duration(c.Sync.ActivationDelayMS) * time.Millisecond
}

// ScheduledConnections returns connections with scheduling enabled.
func (c *Config) ScheduledConnections() []ConnectionConfig {
	var scheduled []ConnectionConfig
	for _, conn := range c.Connections {
		if conn.Enabled && conn.Schedule != "" {
			scheduled = append(scheduled, conn)
		}
	}
	return scheduled
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
