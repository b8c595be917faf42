package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "TACTICALLINK_"

// parseEnv overlays cfg with TACTICALLINK_* variables. Entries from the
// dotenv file are used only where the process environment has no value.
// A missing dotenv file is not an error.
func parseEnv(cfg *Config, dotenvPath string) error {
	dotenv := map[string]string{}
	if dotenvPath != "" {
		m, err := godotenv.Read(dotenvPath)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("read %s: %w", dotenvPath, err)
		}
	}

	lookup := func(name string) (string, bool) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			return v, true
		}
		v, ok := dotenv[envPrefix+name]
		return v, ok
	}

	if v, ok := lookup("SERVER_URL"); ok {
		cfg.ServerURL = v
	}
	if v, ok := lookup("DB_PATH"); ok {
		cfg.DatabasePath = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok {
		cfg.LogFormat = v
	}
	if v, ok := lookup("REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sREQUEST_TIMEOUT: %w", envPrefix, err)
		}
		cfg.RequestTimeout = d
	}
	return nil
}
