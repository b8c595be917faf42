package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/tacticallink/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string      listen address (e.g. ":5000")
//	-s string      JWT HMAC secret key
//	-t int         access token validity, minutes
//	-admins string comma-separated admin usernames
//	-log-level string
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-s", "-t", "-admins", "-log-level"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ListenAddr, "a", cfg.ListenAddr, "address and port to run server")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "secret key")
	ttl := fs.Int("t", int(cfg.TokenTTL.Minutes()), "access token validity (in minutes)")
	admins := fs.String("admins", "", "comma-separated admin usernames")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	cfg.TokenTTL = time.Duration(*ttl) * time.Minute
	if *admins != "" {
		cfg.AdminUsers = splitList(*admins)
	}
	return nil
}
