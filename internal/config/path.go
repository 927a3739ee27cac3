package config

import (
	"os"
	"path/filepath"
)

const (
	appDir   = "warden"
	storeDir = "store"
)

// DefaultDataDir resolves where warden keeps its state when no data dir is
// configured. XDG_DATA_HOME wins, then the first existing platform root, then
// ~/.warden. Without a home directory it falls back to ./data.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	for _, root := range []struct{ marker, dir string }{
		{"/var/lib", filepath.Join("/var/lib", appDir)},
		{filepath.Join(home, "Library"), filepath.Join(home, "Library", "Application Support", "Warden")},
		{filepath.Join(home, "AppData"), filepath.Join(home, "AppData", "Local", "Warden")},
	} {
		if isDir(root.marker) {
			return root.dir
		}
	}
	return filepath.Join(home, "."+appDir)
}

// StoreDir is the Pebble directory under a data dir.
func StoreDir(dataDir string) string {
	return filepath.Join(dataDir, storeDir)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
