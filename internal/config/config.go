// Package config loads client configuration for the mergin CLI.
//
// Settings come from three layers, lowest precedence first:
//
//  1. built-in defaults
//  2. the user config file ~/.mergin/config.yml (YAML)
//  3. MERGIN_* environment variables
//
// The environment layer matches the original client's surface:
// MERGIN_URL selects the server and MERGIN_AUTH carries the bearer
// token obtained from `mergin login`.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the resolved client configuration.
type Config struct {
	// URL is the Mergin server base URL.
	URL string

	// AuthToken is the bearer token for authenticated requests.
	// Empty for anonymous access (public project listing/download).
	AuthToken string

	// RequestTimeout bounds a single HTTP request.
	RequestTimeout time.Duration

	// Retry policy for read-only requests.
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// defaults returns the built-in configuration.
func defaults() Config {
	return Config{
		RequestTimeout: 60 * time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: 100 * time.Millisecond,
		RetryMaxDelay:  2 * time.Second,
	}
}

// fileConfig is the YAML shape of ~/.mergin/config.yml. Pointer fields
// distinguish "absent" from zero values so the file only overrides what
// it actually sets.
type fileConfig struct {
	URL       string `yaml:"url"`
	AuthToken string `yaml:"auth_token"`

	RequestTimeout *time.Duration `yaml:"request_timeout"`

	Retry struct {
		Attempts  *int           `yaml:"attempts"`
		BaseDelay *time.Duration `yaml:"base_delay"`
		MaxDelay  *time.Duration `yaml:"max_delay"`
	} `yaml:"retry"`
}

// envConfig is the environment layer, processed with envconfig under the
// MERGIN prefix: MERGIN_URL, MERGIN_AUTH.
type envConfig struct {
	URL  string `envconfig:"URL"`
	Auth string `envconfig:"AUTH"`
}

// UserConfigPath returns the location of the user config file.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	return filepath.Join(home, ".mergin", "config.yml"), nil
}

// Load resolves the effective configuration from all layers.
// A missing user config file is not an error; a malformed one is.
func Load() (Config, error) {
	cfg := defaults()

	path, err := UserConfigPath()
	if err == nil {
		if err := applyFile(&cfg, path); err != nil {
			return cfg, err
		}
	}

	var env envConfig
	if err := envconfig.Process("mergin", &env); err != nil {
		return cfg, errors.Wrap(err, "read environment")
	}
	if env.URL != "" {
		cfg.URL = env.URL
	}
	if env.Auth != "" {
		cfg.AuthToken = env.Auth
	}

	// Tokens copy-pasted with their header scheme still work.
	cfg.AuthToken = strings.TrimPrefix(cfg.AuthToken, "Bearer ")

	return cfg, nil
}

// applyFile merges the user config file into cfg if it exists.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "read config file %q", path)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return errors.Wrapf(err, "parse config file %q", path)
	}

	if fc.URL != "" {
		cfg.URL = fc.URL
	}
	if fc.AuthToken != "" {
		cfg.AuthToken = fc.AuthToken
	}
	if fc.RequestTimeout != nil {
		cfg.RequestTimeout = *fc.RequestTimeout
	}
	if fc.Retry.Attempts != nil {
		cfg.RetryAttempts = *fc.Retry.Attempts
	}
	if fc.Retry.BaseDelay != nil {
		cfg.RetryBaseDelay = *fc.Retry.BaseDelay
	}
	if fc.Retry.MaxDelay != nil {
		cfg.RetryMaxDelay = *fc.Retry.MaxDelay
	}
	return nil
}
