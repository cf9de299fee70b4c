package botapi

import (
	"testing"

	"herald/internal/broadcast"
	"herald/pkg/logx"
)

func TestNewOffline(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Token: "12345:token", Offline: true}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Name() != string(broadcast.ChannelPrimary) {
		t.Fatalf("Name = %q, want %q", s.Name(), broadcast.ChannelPrimary)
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Offline: true}, logx.Nop()); err == nil {
		t.Fatal("empty token accepted")
	}
}
