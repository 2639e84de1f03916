package util

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the dxnodes home directory.
const HomeEnv = "DXNODES_HOME"

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// DxnodesHome returns the dxnodes state directory ($DXNODES_HOME or ~/.dxnodes)
func DxnodesHome() string {
	if v := os.Getenv(HomeEnv); v != "" {
		return v
	}
	return filepath.Join(HomeDir(), ".dxnodes")
}

// DxnodesConfigPath returns the directory holding config.yaml
func DxnodesConfigPath() string {
	return DxnodesHome()
}

// DxnodesStorePath returns the default root of the local exchange store
func DxnodesStorePath() string {
	return filepath.Join(DxnodesHome(), "exchanges")
}

// DefaultExportDir returns the directory downloads go to when none is given
func DefaultExportDir() string {
	return filepath.Join(os.TempDir(), "dxnodes")
}

// ExpandPath expands a leading ~ and resolves relative paths against baseDir.
// An empty path stays empty.
func ExpandPath(path, baseDir string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		return HomeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(HomeDir(), path[2:])
	}
	if filepath.IsAbs(path) || baseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(baseDir, path)
}
