// Package config loads the oburn TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/theirongolddev/oburn/internal/storage"
)

// Config holds all oburn configuration.
type Config struct {
	General GeneralConfig `toml:"general"`
	Daemon  DaemonConfig  `toml:"daemon"`
	Pricing PricingConfig `toml:"pricing"`
}

// GeneralConfig holds the storage locations. Environment overrides
// (OBURN_DATA_DIR, OBURN_CACHE_DIR) beat these, which beat the XDG
// defaults.
type GeneralConfig struct {
	DataDir  string `toml:"data_dir,omitempty"`
	CacheDir string `toml:"cache_dir,omitempty"`
}

// DaemonConfig holds the daemon HTTP settings.
type DaemonConfig struct {
	Addr        string `toml:"addr,omitempty"`
	IntervalSec int    `toml:"interval_sec,omitempty"`
}

// PricingConfig holds catalog settings.
type PricingConfig struct {
	CatalogURL string `toml:"catalog_url,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Daemon: DaemonConfig{
			Addr:        "127.0.0.1:8791",
			IntervalSec: 30,
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "oburn")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "oburn")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// DataDir resolves the storage root: env override, then config, then
// the platform default.
func (c Config) DataDir() string {
	if dir := os.Getenv("OBURN_DATA_DIR"); dir != "" {
		return dir
	}
	if c.General.DataDir != "" {
		return c.General.DataDir
	}
	return storage.Root()
}

// CacheDir resolves the cache directory the same way.
func (c Config) CacheDir() string {
	if dir := os.Getenv("OBURN_CACHE_DIR"); dir != "" {
		return dir
	}
	if c.General.CacheDir != "" {
		return c.General.CacheDir
	}
	return storage.CacheDir()
}

// Interval returns the daemon refresh interval.
func (c Config) Interval() time.Duration {
	if c.Daemon.IntervalSec < 1 {
		return 30 * time.Second
	}
	return time.Duration(c.Daemon.IntervalSec) * time.Second
}
