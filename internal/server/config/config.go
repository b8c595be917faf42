// Package config handles configuration for the development backend,
// including defaults, environment, a JSON overlay and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds runtime settings for the development backend.
//
// Fields:
//   - ListenAddr: bind address of the HTTP API.
//   - SecretKey: HMAC secret for signing JWTs (HS256). Do not use the default outside development.
//   - TokenTTL: access token lifetime.
//   - AdminUsers: usernames that are given the admin flag when they register.
//   - LogLevel / LogFormat: slog settings.
type Config struct {
	ListenAddr string
	SecretKey  string
	TokenTTL   time.Duration
	AdminUsers []string
	LogLevel   string
	LogFormat  string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":5000"
	c.SecretKey = "dev-secret-key"
	c.TokenTTL = time.Hour
	c.AdminUsers = []string{"admin"}
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// Load builds a Config by applying defaults, then the environment, then an
// optional JSON file and finally command-line flags.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// IsAdmin reports whether username is configured as an administrator.
func (c *Config) IsAdmin(username string) bool {
	for _, a := range c.AdminUsers {
		if strings.EqualFold(a, username) {
			return true
		}
	}
	return false
}

func (c *Config) validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is empty"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("token ttl must be positive, got %s", c.TokenTTL))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
