// Package app wires settings, logging and the pipeline stages shared by the
// DevScript commands.
package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"devscript.dev/devscript/internal/apperr"
	"devscript.dev/devscript/internal/audit"
	"devscript.dev/devscript/internal/config"
	"devscript.dev/devscript/internal/ui"
)

// Options are the global flags every binary accepts.
type Options struct {
	ConfigPath string
	Verbose    bool
}

// Env is the per-invocation environment handed to every command.
type Env struct {
	Paths    config.Paths
	Settings config.Settings
	Logger   zerolog.Logger
	Console  *ui.Console
	Audit    *audit.Logger
}

// Bootstrap loads settings and builds the logger. Diagnostics go to logOut
// so program output on the console stays clean.
func Bootstrap(opts Options, variant string, console *ui.Console, logOut io.Writer) (*Env, error) {
	paths, err := config.DefaultPaths()
	if err != nil {
		return nil, err
	}

	settings, err := config.LoadSettings(opts.ConfigPath, paths)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	logger := InitLogger(settings.Logging, opts.Verbose, logOut)
	logger.Debug().
		Str("config_dir", paths.Dir).
		Str("python", settings.Python.Interpreter).
		Str("output_dir", settings.Output.Dir).
		Msg("Settings loaded")

	return &Env{
		Paths:    paths,
		Settings: settings,
		Logger:   logger,
		Console:  console,
		Audit:    audit.NewLogger(variant, logger),
	}, nil
}

// InitLogger creates the process logger. verbose forces debug level.
func InitLogger(cfg config.LoggingSettings, verbose bool, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.WarnLevel
	}
	if verbose && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	} else {
		logger = zerolog.New(w).With().Timestamp().Logger()
	}

	return logger
}

// ReadSource reads a DevScript file. A missing file is a FileNotFound error
// whose message names the file.
func ReadSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", apperr.New(apperr.KindFileNotFound, "", fmt.Sprintf("File '%s' not found", path))
	}
	if err != nil {
		return "", fmt.Errorf("error reading file: %w", err)
	}
	return string(data), nil
}

// OutputPath returns <dir>/<base of source without extension>.py.
func OutputPath(dir, sourceFile string) string {
	base := filepath.Base(sourceFile)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base+".py")
}

// SaveCode writes generated code next to its siblings in dir and returns the
// written path.
func SaveCode(dir, sourceFile, code string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := OutputPath(dir, sourceFile)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("failed to save generated code: %w", err)
	}
	return path, nil
}
