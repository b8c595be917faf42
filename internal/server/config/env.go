package config

import (
	"fmt"
	"os"
	"time"
)

const envPrefix = "TACTICALLINK_SERVER_"

func parseEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(envPrefix + "ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv(envPrefix + "SECRET_KEY"); ok {
		cfg.SecretKey = v
	}
	if v, ok := os.LookupEnv(envPrefix + "ADMINS"); ok {
		cfg.AdminUsers = splitList(v)
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv(envPrefix + "TOKEN_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTOKEN_TTL: %w", envPrefix, err)
		}
		cfg.TokenTTL = d
	}
	return nil
}
