package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
logging:
  level: debug
  console: true
primary:
  token: "bot-token"
secondary:
  enabled: true
  api_id: 12345
  api_hash: "hash"
  phone: "+15550001111"
roster:
  path: roster.db
broadcast:
  per_send_delay: 250ms
  group_size: 4
  retry_rounds: 2
`

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Secondary == nil || cfg.Secondary.APIID != 12345 {
		t.Fatalf("secondary = %+v", cfg.Secondary)
	}
	if cfg.Broadcast.PerSendDelay != "250ms" || cfg.Broadcast.GroupSize != 4 {
		t.Fatalf("broadcast = %+v", cfg.Broadcast)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{"roster":{"path":"r.db"},"broadcast":{"retry_delay":"1s"}}`))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Roster.Path != "r.db" || cfg.Broadcast.RetryDelay != "1s" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", "roster:\n  path: r.db\nmystery: 1\n"))
	if _, err := m.Parse(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{"roster":{"path":"r.db"}}{"roster":{"path":"x"}}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("trailing JSON accepted")
	}
}

func TestParseRejectsInvalidDuration(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", "roster:\n  path: r.db\nbroadcast:\n  retry_delay: fast\n"))
	if _, err := m.Parse(); err == nil {
		t.Fatal("invalid duration accepted")
	}
}

func TestLoadCommits(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get returned a different config after Load")
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	cfg := &Config{}
	m.publish(cfg)

	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("subscriber received a different config")
		}
	case <-time.After(time.Second):
		t.Fatal("publish never reached the subscriber")
	}
}

func TestPublishDropsOldestWhenSubscriberLags(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	stale := &Config{}
	fresh := &Config{}
	m.publish(stale)
	m.publish(fresh)

	select {
	case got := <-ch:
		if got != fresh {
			t.Fatal("lagging subscriber got the stale config")
		}
	case <-time.After(time.Second):
		t.Fatal("publish never reached the subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	m.publish(&Config{})
}
