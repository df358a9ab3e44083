// Package config provides settings loading and path management.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard paths for wamux data.
type Paths struct {
	Data   string // ~/.local/share/wamux
	Config string // ~/.config/wamux
	State  string // ~/.local/state/wamux
}

// GetPaths returns the standard paths for wamux data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "wamux"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "wamux"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "wamux"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// LogDir returns the directory log files are written to.
func (p *Paths) LogDir() string {
	return filepath.Join(p.State, "logs")
}

// SessionConfigPath returns the path of the persisted session list inside dataDir.
func SessionConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.json")
}

// SessionDir returns the credential directory for one session inside dataDir.
func SessionDir(dataDir, name string) string {
	return filepath.Join(dataDir, "sessions", name)
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GlobalSettingsPath returns the path to the global settings file.
func GlobalSettingsPath() string {
	return filepath.Join(GetPaths().Config, "wamux.jsonc")
}
