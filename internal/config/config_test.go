package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Daemon.Addr != "127.0.0.1:8791" {
		t.Errorf("Addr = %q", cfg.Daemon.Addr)
	}
	if cfg.Interval() != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", cfg.Interval())
	}
	if Exists() {
		t.Error("Exists should be false with no file")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.General.DataDir = "/srv/opencode/storage"
	cfg.Daemon.IntervalSec = 5
	cfg.Pricing.CatalogURL = "http://localhost:9000/models"

	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.General.DataDir != cfg.General.DataDir {
		t.Errorf("DataDir = %q", loaded.General.DataDir)
	}
	if loaded.Interval() != 5*time.Second {
		t.Errorf("Interval = %v, want 5s", loaded.Interval())
	}
	if loaded.Pricing.CatalogURL != cfg.Pricing.CatalogURL {
		t.Errorf("CatalogURL = %q", loaded.Pricing.CatalogURL)
	}
}

func TestLoadBadToml(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := filepath.Join(dir, "oburn", "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not = [valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestDataDirPrecedence(t *testing.T) {
	t.Setenv("OBURN_DATA_DIR", "")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")

	cfg := DefaultConfig()
	cfg.General.DataDir = "/from/config"
	if got := cfg.DataDir(); got != "/from/config" {
		t.Errorf("DataDir = %q, want config value", got)
	}

	t.Setenv("OBURN_DATA_DIR", "/from/env")
	if got := cfg.DataDir(); got != "/from/env" {
		t.Errorf("DataDir = %q, want env override", got)
	}

	cfg.General.DataDir = ""
	t.Setenv("OBURN_DATA_DIR", "")
	want := filepath.Join("/xdg/data", "opencode", "storage")
	if got := cfg.DataDir(); got != want {
		t.Errorf("DataDir = %q, want %q", got, want)
	}
}
