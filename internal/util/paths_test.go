package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHomeDir(t *testing.T) {
	home := HomeDir()
	if home == "" {
		t.Error("HomeDir() returned empty string")
	}

	// Verify it's an absolute path
	if !filepath.IsAbs(home) {
		t.Errorf("HomeDir() returned relative path: %s", home)
	}
}

func TestDxnodesHome(t *testing.T) {
	t.Run("default under home", func(t *testing.T) {
		t.Setenv(HomeEnv, "")
		expected := filepath.Join(HomeDir(), ".dxnodes")
		if got := DxnodesHome(); got != expected {
			t.Errorf("DxnodesHome() = %q, want %q", got, expected)
		}
	})

	t.Run("env override", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv(HomeEnv, dir)
		if got := DxnodesHome(); got != dir {
			t.Errorf("DxnodesHome() = %q, want %q", got, dir)
		}
		if got := DxnodesStorePath(); got != filepath.Join(dir, "exchanges") {
			t.Errorf("DxnodesStorePath() = %q", got)
		}
	})
}

func TestDefaultExportDir(t *testing.T) {
	expected := filepath.Join(os.TempDir(), "dxnodes")
	if got := DefaultExportDir(); got != expected {
		t.Errorf("DefaultExportDir() = %q, want %q", got, expected)
	}
}

func TestExpandPath(t *testing.T) {
	tests := map[string]struct {
		path    string
		baseDir string
		want    string
	}{
		"empty stays empty": {path: "", baseDir: "/work", want: ""},
		"tilde alone":       {path: "~", baseDir: "/work", want: HomeDir()},
		"tilde prefix":      {path: "~/exchanges", baseDir: "/work", want: filepath.Join(HomeDir(), "exchanges")},
		"absolute":          {path: "/data/../data/out", baseDir: "/work", want: "/data/out"},
		"relative":          {path: "out", baseDir: "/work", want: "/work/out"},
		"relative no base":  {path: "./out", baseDir: "", want: "out"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := ExpandPath(tt.path, tt.baseDir); got != tt.want {
				t.Errorf("ExpandPath(%q, %q) = %q, want %q", tt.path, tt.baseDir, got, tt.want)
			}
		})
	}
}
