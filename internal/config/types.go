package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"herald/internal/broadcast"
	"herald/pkg/logx"
)

// Config is the single on-disk configuration. All duration fields are Go
// duration strings (e.g. "300ms", "10s", "1h").
type Config struct {
	Logging   LoggingConfig    `json:"logging"`
	Primary   PrimaryConfig    `json:"primary"`
	Secondary *SecondaryConfig `json:"secondary,omitempty"`
	Roster    RosterConfig     `json:"roster"`
	Broadcast BroadcastConfig  `json:"broadcast"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// PrimaryConfig is the Bot API channel. The token may be left empty here
// and supplied via the HERALD_BOT_TOKEN environment variable instead.
type PrimaryConfig struct {
	Token string `json:"token,omitempty"`
}

// SecondaryConfig is the user-account channel. It consumes an existing
// session file; interactive login is not part of this program.
type SecondaryConfig struct {
	Enabled    bool   `json:"enabled"`
	APIID      int    `json:"api_id,omitempty"`
	APIHash    string `json:"api_hash,omitempty"`
	Phone      string `json:"phone,omitempty"`
	SessionDir string `json:"session_dir,omitempty"` // default: "./sessions"
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type RosterConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// BroadcastConfig tunes the dispatch engine. The pacing defaults exist to
// stay under the channels' throughput ceilings; they are knobs, not
// correctness invariants.
//
// Defaults (when fields are omitted/zero):
//   - per_send_delay: "300ms"
//   - group_size: 3
//   - group_pause_min/max: "10s" / "20s"
//   - retry_rounds: 3, retry_delay: "2s"
//   - media_attempts: 6
//   - progress_step: 5
//   - status_max: 200, status_ttl: "24h"
type BroadcastConfig struct {
	PerSendDelay  string `json:"per_send_delay,omitempty"`
	GroupSize     int    `json:"group_size,omitempty"`
	GroupPauseMin string `json:"group_pause_min,omitempty"`
	GroupPauseMax string `json:"group_pause_max,omitempty"`

	RetryRounds int    `json:"retry_rounds,omitempty"`
	RetryDelay  string `json:"retry_delay,omitempty"`

	MediaAttempts int `json:"media_attempts,omitempty"`
	ProgressStep  int `json:"progress_step,omitempty"`

	StatusMax int    `json:"status_max,omitempty"`
	StatusTTL string `json:"status_ttl,omitempty"`
	// PruneSpec is a cron expression for periodic registry pruning.
	PruneSpec string `json:"prune_spec,omitempty"`
}

// Validate checks cross-field consistency; it does not touch the filesystem.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Secondary != nil && c.Secondary.Enabled {
		if c.Secondary.APIID == 0 || strings.TrimSpace(c.Secondary.APIHash) == "" {
			return errors.New("secondary: api_id and api_hash are required when enabled")
		}
		if strings.TrimSpace(c.Secondary.Phone) == "" {
			return errors.New("secondary: phone is required when enabled")
		}
	}
	if strings.TrimSpace(c.Roster.Path) == "" {
		return errors.New("roster: path is required")
	}
	for _, f := range []struct{ path, raw string }{
		{"broadcast.per_send_delay", c.Broadcast.PerSendDelay},
		{"broadcast.group_pause_min", c.Broadcast.GroupPauseMin},
		{"broadcast.group_pause_max", c.Broadcast.GroupPauseMax},
		{"broadcast.retry_delay", c.Broadcast.RetryDelay},
		{"broadcast.status_ttl", c.Broadcast.StatusTTL},
		{"roster.busy_timeout", c.Roster.BusyTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}

// LogConfig maps the logging section to the logx service config.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

// ServiceConfig maps the broadcast section to the engine/registry knobs.
// Validate must have passed; duration parse failures here fall back to
// defaults rather than erroring twice.
func (c *Config) ServiceConfig() broadcast.ServiceConfig {
	b := c.Broadcast
	perSend, _ := ParseDurationOrDefault("broadcast.per_send_delay", b.PerSendDelay, 300*time.Millisecond)
	pauseMin, _ := ParseDurationOrDefault("broadcast.group_pause_min", b.GroupPauseMin, 10*time.Second)
	pauseMax, _ := ParseDurationOrDefault("broadcast.group_pause_max", b.GroupPauseMax, 20*time.Second)
	retryDelay, _ := ParseDurationOrDefault("broadcast.retry_delay", b.RetryDelay, 2*time.Second)
	statusTTL, _ := ParseDurationOrDefault("broadcast.status_ttl", b.StatusTTL, 24*time.Hour)

	return broadcast.ServiceConfig{
		Engine: broadcast.Options{
			Pace: broadcast.PaceConfig{
				PerSend:       perSend,
				GroupSize:     b.GroupSize,
				GroupPauseMin: pauseMin,
				GroupPauseMax: pauseMax,
			},
			RetryRounds:   b.RetryRounds,
			RetryDelay:    retryDelay,
			MediaAttempts: b.MediaAttempts,
			ProgressStep:  b.ProgressStep,
		},
		StatusMax: b.StatusMax,
		StatusTTL: statusTTL,
		PruneSpec: b.PruneSpec,
	}
}

// Redacted returns a loggable summary without secrets.
func (c *Config) Redacted() string {
	sec := "disabled"
	if c.Secondary != nil && c.Secondary.Enabled {
		sec = "enabled"
	}
	return fmt.Sprintf("logging.level=%s secondary=%s roster=%s", c.Logging.Level, sec, c.Roster.Path)
}
