// Package config resolves DevScript credentials and tool settings.
//
// Credentials are resolved per key in one canonical order: environment
// variable, then the local .env file, then the JSON file in the user config
// directory, then the built-in default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// AppName names the per-user configuration directory.
const AppName = "devscript"

// File names inside the configuration directory.
const (
	ConfigFileName   = "config.json"
	ClientFileName   = "client.json"
	SettingsFileName = "settings.yaml"
	LastErrorName    = "last_error.txt"
	LastCodeName     = "last_code.py"
)

// Paths locates every file DevScript keeps on disk. It is passed explicitly
// into each operation instead of living in package-level constants.
type Paths struct {
	Dir string
}

// DefaultPaths returns the per-user configuration directory, e.g.
// ~/.config/devscript on Linux. DEVSCRIPT_CONFIG_DIR overrides it.
func DefaultPaths() (Paths, error) {
	if dir := os.Getenv("DEVSCRIPT_CONFIG_DIR"); dir != "" {
		return Paths{Dir: dir}, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("failed to locate user config directory: %w", err)
	}

	return Paths{Dir: filepath.Join(base, AppName)}, nil
}

// ConfigFile is the direct-variant JSON file (api_key, model).
func (p Paths) ConfigFile() string { return filepath.Join(p.Dir, ConfigFileName) }

// ClientFile is the client-variant JSON file (api_key, api_url).
func (p Paths) ClientFile() string { return filepath.Join(p.Dir, ClientFileName) }

// SettingsFile is the optional YAML settings file.
func (p Paths) SettingsFile() string { return filepath.Join(p.Dir, SettingsFileName) }

// LastErrorFile holds the stderr of the last failed run.
func (p Paths) LastErrorFile() string { return filepath.Join(p.Dir, LastErrorName) }

// LastCodeFile holds the code of the last failed run.
func (p Paths) LastCodeFile() string { return filepath.Join(p.Dir, LastCodeName) }

// Ensure creates the configuration directory if needed.
func (p Paths) Ensure() error {
	if err := os.MkdirAll(p.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}
