// Package paths resolves configuration and data directory locations.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user platform directories.
const AppName = "linkgraph"

// CWD-relative default data directory name.
const DefaultDataDirName = ".linkgraph"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "LINKGRAPH_CONFIG_DIR"
	EnvDataDir   = "LINKGRAPH_DATA_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/linkgraph (fallback ~/.config/linkgraph)
// macOS:   ~/Library/Application Support/linkgraph
// Windows: %APPDATA%/linkgraph
func DefaultConfigDir() (string, error) {
	return platformAppDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform-specific default data directory.
//
// Linux:   $XDG_DATA_HOME/linkgraph (fallback ~/.local/share/linkgraph)
// macOS:   ~/Library/Application Support/linkgraph
// Windows: %APPDATA%/linkgraph
func DefaultDataDir() (string, error) {
	return platformAppDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// platformAppDir applies the XDG rules on Linux and os.UserConfigDir
// elsewhere.
func platformAppDir(xdgEnv, homeFallback string) (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv(xdgEnv); xdg != "" {
			return filepath.Join(xdg, AppName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, homeFallback, AppName), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// ResolveConfigDir returns the configuration directory following the precedence
// chain: flag > LINKGRAPH_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > configYAMLValue > LINKGRAPH_DATA_DIR env > $(CWD)/.linkgraph.
//
// The CWD-relative default keeps a graph next to the project it describes.
func ResolveDataDir(flag, configYAMLValue string) (string, error) {
	for _, v := range []string{flag, configYAMLValue, os.Getenv(EnvDataDir)} {
		if v != "" {
			return filepath.Abs(v)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}
