package botapi

import (
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"herald/internal/broadcast"
)

// classify maps a telebot error onto the engine's taxonomy.
//
// 429 carries the server wait hint. 403 means the peer rejected the bot
// (blocked, deactivated, never started) and is never worth retrying. A 400
// about an unknown chat is unreachable on this channel. Everything else is
// assumed transient so it gets a fallback attempt and a retry slot.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return broadcast.RateLimited(time.Duration(flood.RetryAfter)*time.Second, err)
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 403:
			return broadcast.Permanent(err)
		case apiErr.Code == 400 && isUnknownPeer(apiErr.Description):
			return broadcast.PeerUnreachable(err)
		case apiErr.Code == 429:
			return broadcast.RateLimited(0, err)
		case apiErr.Code >= 400 && apiErr.Code < 500:
			return broadcast.Permanent(err)
		}
	}
	return broadcast.Transient(err)
}

func isUnknownPeer(desc string) bool {
	d := strings.ToLower(desc)
	return strings.Contains(d, "chat not found") ||
		strings.Contains(d, "user not found") ||
		strings.Contains(d, "peer_id_invalid")
}
