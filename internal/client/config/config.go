package config

import (
	"fmt"
	"os"
	"time"
)

// PollIntervals holds the period of every polling channel.
type PollIntervals struct {
	DirectMessages time.Duration
	RoomMessages   time.Duration
	Inbox          time.Duration
	Users          time.Duration
	Rooms          time.Duration
	ThreatStatus   time.Duration
	AdminDashboard time.Duration
	EphemeralSweep time.Duration
}

// Config holds runtime settings for the tacticallink client.
type Config struct {
	ServerURL           string
	DatabasePath        string
	RequestTimeout      time.Duration
	OnlineCheckInterval time.Duration

	LogLevel  string
	LogFormat string

	Poll PollIntervals

	// BreakerFailures consecutive network failures open the circuit for
	// BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:5000"
	c.DatabasePath = "tacticallink.db"
	c.RequestTimeout = 10 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.Poll = PollIntervals{
		DirectMessages: 3 * time.Second,
		RoomMessages:   3 * time.Second,
		Inbox:          3 * time.Second,
		Users:          15 * time.Second,
		Rooms:          15 * time.Second,
		ThreatStatus:   5 * time.Second,
		AdminDashboard: 10 * time.Second,
		EphemeralSweep: time.Second,
	}
	c.BreakerFailures = 5
	c.BreakerTimeout = 30 * time.Second
}

// Load builds a Config from defaults, environment, config file and the given
// command-line arguments (without the program name).
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseEnv(cfg, ".env"); err != nil {
		return nil, err
	}
	if err := parseFile(cfg, args); err != nil {
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

// LoadConfig is Load over os.Args.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server url must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	for name, d := range map[string]time.Duration{
		"direct_messages": c.Poll.DirectMessages,
		"room_messages":   c.Poll.RoomMessages,
		"inbox":           c.Poll.Inbox,
		"users":           c.Poll.Users,
		"rooms":           c.Poll.Rooms,
		"threat_status":   c.Poll.ThreatStatus,
		"admin_dashboard": c.Poll.AdminDashboard,
		"ephemeral_sweep": c.Poll.EphemeralSweep,
	} {
		if d <= 0 {
			return fmt.Errorf("poll interval %s must be positive, got %s", name, d)
		}
	}
	return nil
}
