package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// ReadDotenv parses a .env file. A missing file yields an empty map.
func ReadDotenv(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}

	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return values, nil
}

// WriteDotenv merges updates into the .env file at path, keeping unrelated
// keys. Empty values remove the key.
func WriteDotenv(path string, updates map[string]string) error {
	values, err := ReadDotenv(path)
	if err != nil {
		return err
	}

	for k, v := range updates {
		if v == "" {
			delete(values, k)
			continue
		}
		values[k] = v
	}

	if err := godotenv.Write(values, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	// godotenv creates the file world-readable.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to restrict %s: %w", path, err)
	}

	return nil
}
