package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/warden" {
		t.Fatalf("DefaultDataDir = %q", got)
	}
}

func TestDefaultDataDirWithoutHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "")
	t.Setenv("USERPROFILE", "")
	if got := DefaultDataDir(); got != "./data" {
		t.Fatalf("DefaultDataDir = %q, want ./data", got)
	}
}

func TestDefaultDataDirShape(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	got := DefaultDataDir()
	if got != DefaultDataDir() {
		t.Fatalf("DefaultDataDir not stable")
	}
	if !filepath.IsAbs(got) && !strings.HasPrefix(got, "./") {
		t.Fatalf("DefaultDataDir = %q: want absolute or ./ relative", got)
	}
	base := strings.ToLower(filepath.Base(got))
	if base != "warden" && base != ".warden" && got != "./data" {
		t.Fatalf("DefaultDataDir = %q: unexpected leaf", got)
	}
}

func TestStoreDir(t *testing.T) {
	if got := StoreDir("/srv/warden"); got != filepath.Join("/srv/warden", "store") {
		t.Fatalf("StoreDir = %q", got)
	}
}

func TestIsDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cases := map[string]bool{
		t.TempDir():              true,
		file:                     false,
		"/does/not/exist/at/all": false,
	}
	for path, want := range cases {
		if got := isDir(path); got != want {
			t.Fatalf("isDir(%q) = %v, want %v", path, got, want)
		}
	}
}
