package config

import (
	"strings"
	"testing"
	"time"
)

func baseConfig() *Config {
	return &Config{Roster: RosterConfig{Path: "r.db"}}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "minimal config is valid",
			mutate: func(*Config) {},
		},
		{
			name:    "roster path required",
			mutate:  func(c *Config) { c.Roster.Path = "  " },
			wantErr: "roster",
		},
		{
			name: "enabled secondary needs credentials",
			mutate: func(c *Config) {
				c.Secondary = &SecondaryConfig{Enabled: true, Phone: "+15550001111"}
			},
			wantErr: "api_id",
		},
		{
			name: "enabled secondary needs phone",
			mutate: func(c *Config) {
				c.Secondary = &SecondaryConfig{Enabled: true, APIID: 1, APIHash: "h"}
			},
			wantErr: "phone",
		},
		{
			name:   "disabled secondary needs nothing",
			mutate: func(c *Config) { c.Secondary = &SecondaryConfig{} },
		},
		{
			name:    "negative duration rejected",
			mutate:  func(c *Config) { c.Broadcast.RetryDelay = "-1s" },
			wantErr: "retry_delay",
		},
		{
			name:    "garbage duration rejected",
			mutate:  func(c *Config) { c.Broadcast.StatusTTL = "soon" },
			wantErr: "status_ttl",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestServiceConfigDefaults(t *testing.T) {
	t.Parallel()
	sc := baseConfig().ServiceConfig()
	if sc.Engine.Pace.PerSend != 300*time.Millisecond {
		t.Fatalf("per-send = %v, want 300ms", sc.Engine.Pace.PerSend)
	}
	if sc.Engine.Pace.GroupPauseMin != 10*time.Second || sc.Engine.Pace.GroupPauseMax != 20*time.Second {
		t.Fatalf("group pause = [%v,%v], want [10s,20s]", sc.Engine.Pace.GroupPauseMin, sc.Engine.Pace.GroupPauseMax)
	}
	if sc.Engine.RetryDelay != 2*time.Second {
		t.Fatalf("retry delay = %v, want 2s", sc.Engine.RetryDelay)
	}
	if sc.StatusTTL != 24*time.Hour {
		t.Fatalf("status ttl = %v, want 24h", sc.StatusTTL)
	}
}

func TestServiceConfigOverrides(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Broadcast = BroadcastConfig{
		PerSendDelay:  "100ms",
		GroupSize:     5,
		GroupPauseMin: "1s",
		GroupPauseMax: "2s",
		RetryRounds:   7,
		RetryDelay:    "500ms",
		StatusMax:     10,
		StatusTTL:     "1h",
		PruneSpec:     "@every 1h",
	}
	sc := cfg.ServiceConfig()
	if sc.Engine.Pace.PerSend != 100*time.Millisecond || sc.Engine.Pace.GroupSize != 5 {
		t.Fatalf("pace = %+v", sc.Engine.Pace)
	}
	if sc.Engine.RetryRounds != 7 || sc.Engine.RetryDelay != 500*time.Millisecond {
		t.Fatalf("retry = %d/%v", sc.Engine.RetryRounds, sc.Engine.RetryDelay)
	}
	if sc.StatusMax != 10 || sc.StatusTTL != time.Hour || sc.PruneSpec != "@every 1h" {
		t.Fatalf("registry knobs = %+v", sc)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"300ms", 300 * time.Millisecond, false},
		{" 10s ", 10 * time.Second, false},
		{"-1s", 0, true},
		{"later", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("field", tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseDurationField(%q): error expected", tt.raw)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseDurationField(%q) = %v, %v; want %v", tt.raw, got, err, tt.want)
		}
	}
}

func TestRedactedOmitsSecrets(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Primary.Token = "super-secret"
	cfg.Secondary = &SecondaryConfig{Enabled: true, APIID: 1, APIHash: "also-secret", Phone: "+15550001111"}
	s := cfg.Redacted()
	if strings.Contains(s, "super-secret") || strings.Contains(s, "also-secret") || strings.Contains(s, "5550001111") {
		t.Fatalf("Redacted leaked a secret: %s", s)
	}
}
