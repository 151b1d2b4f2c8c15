// Package storage locates and enumerates the opencode record tree.
package storage

import (
	"os"
	"path/filepath"
)

// The four record directories under the storage root.
const (
	MessageDir     = "message"
	PartDir        = "part"
	SessionDir     = "session"
	SessionDiffDir = "session_diff"
)

// RecordDirs lists the tracked record directories in a fixed order.
var RecordDirs = [4]string{MessageDir, PartDir, SessionDir, SessionDiffDir}

// Root returns the storage root: OBURN_DATA_DIR override, else
// $XDG_DATA_HOME/opencode/storage, else ~/.local/share/opencode/storage.
func Root() string {
	if dir := os.Getenv("OBURN_DATA_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "opencode", "storage")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "opencode", "storage")
}

// CacheDir returns the platform-appropriate cache directory.
func CacheDir() string {
	if dir := os.Getenv("OBURN_CACHE_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "oburn")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "oburn")
}

// DBPath returns the location of the alternative SQLite backend,
// which lives next to the storage root.
func DBPath(root string) string {
	return filepath.Join(filepath.Dir(root), "opencode.db")
}
