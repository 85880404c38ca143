// Package config loads application settings with precedence:
// defaults < config file (~/.isscope/config.yaml) < ISSCOPE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultModel is the OpenRouter model used when none is configured.
	DefaultModel = "google/gemini-2.0-flash-001"

	// DefaultMaxIssues caps how many issues one scan considers.
	DefaultMaxIssues = 200

	minMaxIssues = 10
	maxMaxIssues = 1000
)

// Config represents the application configuration.
type Config struct {
	// GitHub API token. Optional; unauthenticated requests get a much
	// lower rate limit.
	GitHubToken string `mapstructure:"github_token"`

	// OpenRouter API key. Required for analysis.
	OpenRouterKey string `mapstructure:"openrouter_key"`

	// Model identifier passed to the analysis endpoint.
	Model string `mapstructure:"model"`

	// MaxIssues caps how many issues one scan considers, clamped to
	// [10, 1000].
	MaxIssues int `mapstructure:"max_issues"`

	// DatabasePath is the SQLite history database location.
	DatabasePath string `mapstructure:"database_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".isscope/config.yaml"
	}
	return filepath.Join(home, ".isscope", "config.yaml")
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "isscope.db"
	}
	return filepath.Join(home, ".isscope", "isscope.db")
}

// Load reads the configuration. path may be empty to use DefaultPath; a
// missing config file is not an error, the defaults and environment still
// apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("github_token", "")
	v.SetDefault("openrouter_key", "")
	v.SetDefault("model", DefaultModel)
	v.SetDefault("max_issues", DefaultMaxIssues)
	v.SetDefault("database_path", defaultDatabasePath())
	v.SetDefault("log_level", "info")

	if path == "" {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound *os.PathError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("ISSCOPE")
	for _, key := range []string{"github_token", "openrouter_key", "model", "max_issues", "database_path", "log_level"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.MaxIssues < minMaxIssues {
		cfg.MaxIssues = minMaxIssues
	}
	if cfg.MaxIssues > maxMaxIssues {
		cfg.MaxIssues = maxMaxIssues
	}
	if !filepath.IsAbs(cfg.DatabasePath) {
		if abs, err := filepath.Abs(cfg.DatabasePath); err == nil {
			cfg.DatabasePath = abs
		}
	}
	return &cfg, nil
}

// CreateDefault writes a starter config file at path unless one already
// exists.
func CreateDefault(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	starter := fmt.Sprintf(`# isscope configuration
# Values may also be set via ISSCOPE_* environment variables,
# e.g. ISSCOPE_OPENROUTER_KEY.

github_token: ""
openrouter_key: ""
model: %q
max_issues: %d
database_path: %q
log_level: info
`, DefaultModel, DefaultMaxIssues, defaultDatabasePath())

	if err := os.WriteFile(path, []byte(starter), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
