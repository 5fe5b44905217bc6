// Package config holds the session-credential manager configuration,
// loaded from a YAML file with environment variables layered on top.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root configuration for sessionkit.
//
// Sources, in descending priority:
//  1. an explicit path passed to Load;
//  2. the path in the SESSIONKIT_CONFIG environment variable;
//  3. environment variables alone.
type Config struct {
	// RefreshURL is the token endpoint that exchanges a refresh credential
	// for a new access/refresh pair.
	RefreshURL string `yaml:"refresh_url" env:"SESSIONKIT_REFRESH_URL" env-required:"true"`
	// ClientID is sent with the refresh request when the server requires it.
	ClientID  string `yaml:"client_id" env:"SESSIONKIT_CLIENT_ID"`
	UserAgent string `yaml:"user_agent" env:"SESSIONKIT_USER_AGENT" env-default:"sessionkit"`
	// HTTPTimeout bounds the refresh round trip.
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"SESSIONKIT_HTTP_TIMEOUT" env-default:"10s"`
	// RefreshSkew is how long before expiry the proactive refresh fires.
	// It should cover one refresh round trip plus clock drift.
	RefreshSkew time.Duration `yaml:"refresh_skew" env:"SESSIONKIT_REFRESH_SKEW" env-default:"60s"`
	// StorageDir, when set, keeps credentials in files under this directory
	// so they survive a restart. Empty means in-memory only.
	StorageDir string `yaml:"storage_dir" env:"SESSIONKIT_STORAGE_DIR"`
	// StorageKey is the durable-storage key the credential pair lives under.
	StorageKey string `yaml:"storage_key" env:"SESSIONKIT_STORAGE_KEY" env-default:"session_credentials"`
}

// MustLoad is Load with panic on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load reads configuration from the given path (or SESSIONKIT_CONFIG when
// empty), then overlays environment variables. With no file at all, the
// environment alone must satisfy the required fields.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("SESSIONKIT_CONFIG")
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// ENV values win over the file.
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read env: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.RefreshSkew <= 0 {
		return fmt.Errorf("refresh_skew must be positive, got %v", c.RefreshSkew)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive, got %v", c.HTTPTimeout)
	}

	return nil
}
