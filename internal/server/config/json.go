package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tacticallink/internal/flagx"
	"github.com/dmitrijs2005/tacticallink/internal/timex"
)

// JSONConfig is the on-disk shape of the server config file. timex.Duration
// accepts both "1h" strings and integer nanoseconds.
type JSONConfig struct {
	ListenAddr string         `json:"listen_addr"`
	SecretKey  string         `json:"secret_key"`
	TokenTTL   timex.Duration `json:"token_ttl"`
	AdminUsers []string       `json:"admin_users"`
	LogLevel   string         `json:"log_level"`
	LogFormat  string         `json:"log_format"`
}

// parseJSON loads the file named by -c/-config, if any. Only fields present
// in the file override cfg.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JSONConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if c.ListenAddr != "" {
		cfg.ListenAddr = c.ListenAddr
	}
	if c.SecretKey != "" {
		cfg.SecretKey = c.SecretKey
	}
	if c.TokenTTL.Duration != 0 {
		cfg.TokenTTL = c.TokenTTL.Duration
	}
	if c.AdminUsers != nil {
		cfg.AdminUsers = c.AdminUsers
	}
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.LogFormat = c.LogFormat
	}
	return nil
}
