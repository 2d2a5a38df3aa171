package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"devscript.dev/devscript/internal/apperr"
)

// Defaults and environment variable names.
const (
	DefaultModel  = "gemini-2.0-flash"
	DefaultAPIURL = "http://localhost:8000"

	EnvGoogleAPIKey    = "GOOGLE_API_KEY"
	EnvGoogleModel     = "GOOGLE_MODEL"
	EnvDevScriptAPIKey = "DEVSCRIPT_API_KEY"
	EnvDevScriptAPIURL = "DEVSCRIPT_API_URL"

	// DefaultDotenv is the .env file consulted in the working directory.
	DefaultDotenv = ".env"
)

// Source records where a resolved value came from.
type Source string

const (
	SourceNone    Source = ""
	SourceEnv     Source = "env"
	SourceDotenv  Source = "dotenv"
	SourceFile    Source = "file"
	SourceDefault Source = "default"
)

// Config holds the direct-variant model credentials.
type Config struct {
	APIKey string `json:"api_key" validate:"required"`
	Model  string `json:"model" validate:"required,model_name"`

	KeySource   Source `json:"-"`
	ModelSource Source `json:"-"`
}

// ClientConfig holds the client-variant service credentials.
type ClientConfig struct {
	APIKey string `json:"api_key" validate:"required"`
	APIURL string `json:"api_url" validate:"required,url"`

	KeySource Source `json:"-"`
	URLSource Source `json:"-"`
}

// Resolver looks up configuration values across the environment, a .env
// file and a JSON file.
type Resolver struct {
	Paths      Paths
	DotenvPath string
	LookupEnv  func(string) (string, bool)
	logger     zerolog.Logger

	dotenv map[string]string
}

// NewResolver creates a resolver reading the process environment and ./.env.
func NewResolver(paths Paths, logger zerolog.Logger) *Resolver {
	return &Resolver{
		Paths:      paths,
		DotenvPath: DefaultDotenv,
		LookupEnv:  os.LookupEnv,
		logger:     logger.With().Str("component", "config").Logger(),
	}
}

// Resolve returns the direct-variant configuration. A missing API key is a
// ConfigMissing error; the model falls back to DefaultModel.
func (r *Resolver) Resolve() (Config, error) {
	file := r.loadFile(r.Paths.ConfigFile())

	var cfg Config
	cfg.APIKey, cfg.KeySource = r.lookup(EnvGoogleAPIKey, file, "api_key")
	cfg.Model, cfg.ModelSource = r.lookup(EnvGoogleModel, file, "model")
	if cfg.Model == "" {
		cfg.Model, cfg.ModelSource = DefaultModel, SourceDefault
	}

	r.logger.Debug().
		Str("key_source", string(cfg.KeySource)).
		Str("model", cfg.Model).
		Str("model_source", string(cfg.ModelSource)).
		Msg("Resolved model configuration")

	if cfg.APIKey == "" {
		return cfg, apperr.New(apperr.KindConfigMissing, "config",
			"API key not configured. Run 'devscript-setup' to configure")
	}

	return cfg, nil
}

// ResolveClient returns the client-variant configuration.
func (r *Resolver) ResolveClient() (ClientConfig, error) {
	file := r.loadFile(r.Paths.ClientFile())

	var cfg ClientConfig
	cfg.APIKey, cfg.KeySource = r.lookup(EnvDevScriptAPIKey, file, "api_key")
	cfg.APIURL, cfg.URLSource = r.lookup(EnvDevScriptAPIURL, file, "api_url")
	if cfg.APIURL == "" {
		cfg.APIURL, cfg.URLSource = DefaultAPIURL, SourceDefault
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	if cfg.APIKey == "" {
		return cfg, apperr.New(apperr.KindConfigMissing, "config",
			"no API key found. Please run 'devscript setup' first")
	}

	return cfg, nil
}

// APIURL resolves only the service URL; setup needs it before a key exists.
func (r *Resolver) APIURL() string {
	cfg, _ := r.ResolveClient()
	return cfg.APIURL
}

func (r *Resolver) lookup(envName string, file map[string]interface{}, fileKey string) (string, Source) {
	if r.LookupEnv != nil {
		if v, ok := r.LookupEnv(envName); ok && v != "" {
			return v, SourceEnv
		}
	}

	if v := r.dotenvValues()[envName]; v != "" {
		return v, SourceDotenv
	}

	if s, ok := file[fileKey].(string); ok && s != "" {
		return s, SourceFile
	}

	return "", SourceNone
}

func (r *Resolver) dotenvValues() map[string]string {
	if r.dotenv != nil {
		return r.dotenv
	}

	values, err := ReadDotenv(r.DotenvPath)
	if err != nil {
		r.logger.Warn().Err(err).Str("path", r.DotenvPath).Msg("Ignoring unreadable .env file")
		values = map[string]string{}
	}
	r.dotenv = values
	return values
}

func (r *Resolver) loadFile(path string) map[string]interface{} {
	values, err := LoadJSON(path)
	if err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("Ignoring unreadable config file")
		return map[string]interface{}{}
	}
	return values
}

// LoadJSON reads a JSON object from path. A missing file is an empty object.
func LoadJSON(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	values := map[string]interface{}{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return values, nil
}

// SaveJSON merges updates into the JSON object at path and writes it back.
// Keys not present in updates are preserved; last write wins.
func SaveJSON(path string, updates map[string]interface{}) error {
	values, err := LoadJSON(path)
	if err != nil {
		// A corrupt file is replaced rather than blocking setup.
		values = map[string]interface{}{}
	}
	for k, v := range updates {
		values[k] = v
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MaskKey hides all but the edges of an API key for display.
func MaskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
