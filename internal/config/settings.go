package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds the tool settings that are not credentials.
type Settings struct {
	Python    PythonSettings    `yaml:"python"`
	Output    OutputSettings    `yaml:"output"`
	Execution ExecutionSettings `yaml:"execution"`
	API       APISettings       `yaml:"api"`
	Model     ModelSettings     `yaml:"model"`
	Logging   LoggingSettings   `yaml:"logging"`
	Server    ServerSettings    `yaml:"server"`
}

// PythonSettings selects the interpreter used for pip and for running code.
type PythonSettings struct {
	Interpreter string `yaml:"interpreter" validate:"required,no_shell_metachar"`
}

// OutputSettings controls where generated code is saved.
type OutputSettings struct {
	Dir string `yaml:"dir" validate:"required"`
}

// ExecutionSettings bounds generated code execution.
type ExecutionSettings struct {
	Timeout        time.Duration `yaml:"timeout"`
	InstallTimeout time.Duration `yaml:"install_timeout"`
}

// APISettings holds HTTP settings for the remote service.
type APISettings struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ModelSettings holds generation settings for the direct model call.
type ModelSettings struct {
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float32       `yaml:"temperature" validate:"gte=0,lte=2"`
}

// LoggingSettings holds logging settings.
type LoggingSettings struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// ServerSettings configures devscript-server, the local DevScript service.
type ServerSettings struct {
	Host         string            `yaml:"host"`
	Port         int               `yaml:"port" validate:"gte=1,lte=65535"`
	ReadTimeout  time.Duration     `yaml:"read_timeout"`
	WriteTimeout time.Duration     `yaml:"write_timeout"`
	IdleTimeout  time.Duration     `yaml:"idle_timeout"`
	DefaultQuota int               `yaml:"default_quota" validate:"gte=0"`
	Accounts     []AccountSettings `yaml:"accounts" validate:"dive"`
}

// AccountSettings describes one API key accepted by the server. Quota is the
// number of calls allowed; zero means unlimited.
type AccountSettings struct {
	APIKey       string `yaml:"api_key" validate:"required"`
	Email        string `yaml:"email" validate:"omitempty,email"`
	Subscription string `yaml:"subscription"`
	Quota        int    `yaml:"quota" validate:"gte=0"`
	RenewalDate  string `yaml:"renewal_date"`

	// Active defaults to true when unset.
	Active *bool `yaml:"active"`
}

// DefaultSettings returns settings with sensible defaults.
func DefaultSettings() Settings {
	return Settings{
		Python: PythonSettings{
			Interpreter: "python3",
		},
		Output: OutputSettings{
			Dir: "generated_py",
		},
		Execution: ExecutionSettings{
			Timeout:        5 * time.Minute,
			InstallTimeout: 10 * time.Minute,
		},
		API: APISettings{
			RequestTimeout: 60 * time.Second,
		},
		Model: ModelSettings{
			Timeout:     2 * time.Minute,
			Temperature: 0.2,
		},
		Logging: LoggingSettings{
			Level:  "warn",
			Format: "console",
		},
		Server: ServerSettings{
			Host:         "127.0.0.1",
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  60 * time.Second,
			DefaultQuota: 1000,
		},
	}
}

// LoadSettings builds settings from defaults, the YAML file at path and the
// environment. An empty path falls back to the file in the config directory;
// only an explicitly requested file must exist.
func LoadSettings(path string, paths Paths) (Settings, error) {
	cfg := DefaultSettings()

	explicit := path != ""
	if !explicit {
		path = paths.SettingsFile()
	}

	if err := loadSettingsFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}

	applyEnvOverrides(&cfg)

	if err := ValidateSettings(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func loadSettingsFile(path string, cfg *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse settings file: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Settings) {
	if v := os.Getenv("DEVSCRIPT_PYTHON"); v != "" {
		cfg.Python.Interpreter = v
	}
	if v := os.Getenv("DEVSCRIPT_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("DEVSCRIPT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Execution.Timeout = d
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DEVSCRIPT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	// DEVSCRIPT_SERVER_API_KEYS adds comma-separated keys on the default quota.
	if v := os.Getenv("DEVSCRIPT_SERVER_API_KEYS"); v != "" {
		for _, key := range strings.Split(v, ",") {
			if key = strings.TrimSpace(key); key != "" {
				cfg.Server.Accounts = append(cfg.Server.Accounts, AccountSettings{
					APIKey: key,
					Quota:  cfg.Server.DefaultQuota,
				})
			}
		}
	}
}
