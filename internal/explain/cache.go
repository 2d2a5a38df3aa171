// Package explain keeps the code and error output of the last failed run so
// the service can be asked to explain it later.
package explain

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"devscript.dev/devscript/internal/apperr"
	"devscript.dev/devscript/internal/config"
)

// Cache stores the last failure in the configuration directory.
type Cache struct {
	paths config.Paths
}

// NewCache creates a cache rooted at paths.
func NewCache(paths config.Paths) *Cache {
	return &Cache{paths: paths}
}

// Entry is one cached failure.
type Entry struct {
	Code  string
	Error string
}

// Save records code and its error output, replacing any previous entry.
func (c *Cache) Save(code, errText string) error {
	if err := c.paths.Ensure(); err != nil {
		return err
	}
	if err := os.WriteFile(c.paths.LastCodeFile(), []byte(code), 0o600); err != nil {
		return fmt.Errorf("failed to write explain cache: %w", err)
	}
	if err := os.WriteFile(c.paths.LastErrorFile(), []byte(errText), 0o600); err != nil {
		return fmt.Errorf("failed to write explain cache: %w", err)
	}
	return nil
}

// Load returns the cached failure. An absent or empty cache is a
// ConfigMissing error.
func (c *Cache) Load() (*Entry, error) {
	code, err := readOptional(c.paths.LastCodeFile())
	if err != nil {
		return nil, err
	}
	errText, err := readOptional(c.paths.LastErrorFile())
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(code) == "" || strings.TrimSpace(errText) == "" {
		return nil, apperr.New(apperr.KindConfigMissing, "explain",
			"nothing to explain. Run a program that fails first")
	}

	return &Entry{Code: code, Error: errText}, nil
}

// Clear removes the cached failure.
func (c *Cache) Clear() error {
	for _, path := range []string{c.paths.LastCodeFile(), c.paths.LastErrorFile()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to clear explain cache: %w", err)
		}
	}
	return nil
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read explain cache: %w", err)
	}
	return string(data), nil
}
