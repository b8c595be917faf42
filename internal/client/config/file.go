package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/tacticallink/internal/flagx"
	"github.com/dmitrijs2005/tacticallink/internal/timex"
)

// FileConfig is the on-disk shape of the config file. Zero values mean
// "not set" and leave the current value alone.
type FileConfig struct {
	ServerURL           string         `json:"server_url" yaml:"server_url"`
	DatabasePath        string         `json:"database_path" yaml:"database_path"`
	RequestTimeout      timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`
	LogLevel            string         `json:"log_level" yaml:"log_level"`
	LogFormat           string         `json:"log_format" yaml:"log_format"`

	Poll struct {
		DirectMessages timex.Duration `json:"direct_messages" yaml:"direct_messages"`
		RoomMessages   timex.Duration `json:"room_messages" yaml:"room_messages"`
		Inbox          timex.Duration `json:"inbox" yaml:"inbox"`
		Users          timex.Duration `json:"users" yaml:"users"`
		Rooms          timex.Duration `json:"rooms" yaml:"rooms"`
		ThreatStatus   timex.Duration `json:"threat_status" yaml:"threat_status"`
		AdminDashboard timex.Duration `json:"admin_dashboard" yaml:"admin_dashboard"`
		EphemeralSweep timex.Duration `json:"ephemeral_sweep" yaml:"ephemeral_sweep"`
	} `json:"poll" yaml:"poll"`

	Breaker struct {
		Failures uint32         `json:"failures" yaml:"failures"`
		Timeout  timex.Duration `json:"timeout" yaml:"timeout"`
	} `json:"breaker" yaml:"breaker"`
}

// parseFile overlays cfg with the file named by -c/-config, if any.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.ServerURL, fc.ServerURL)
	setString(&cfg.DatabasePath, fc.DatabasePath)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	setDuration(&cfg.RequestTimeout, fc.RequestTimeout)
	setDuration(&cfg.OnlineCheckInterval, fc.OnlineCheckInterval)

	setDuration(&cfg.Poll.DirectMessages, fc.Poll.DirectMessages)
	setDuration(&cfg.Poll.RoomMessages, fc.Poll.RoomMessages)
	setDuration(&cfg.Poll.Inbox, fc.Poll.Inbox)
	setDuration(&cfg.Poll.Users, fc.Poll.Users)
	setDuration(&cfg.Poll.Rooms, fc.Poll.Rooms)
	setDuration(&cfg.Poll.ThreatStatus, fc.Poll.ThreatStatus)
	setDuration(&cfg.Poll.AdminDashboard, fc.Poll.AdminDashboard)
	setDuration(&cfg.Poll.EphemeralSweep, fc.Poll.EphemeralSweep)

	if fc.Breaker.Failures > 0 {
		cfg.BreakerFailures = fc.Breaker.Failures
	}
	setDuration(&cfg.BreakerTimeout, fc.Breaker.Timeout)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
