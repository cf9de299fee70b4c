package userbot

import (
	"github.com/gotd/td/tgerr"

	"herald/internal/broadcast"
)

// RPC error types that mean the handle cannot be resolved on this channel.
var unreachableTypes = []string{
	"USERNAME_NOT_OCCUPIED",
	"USERNAME_INVALID",
	"PEER_ID_INVALID",
}

// RPC error types that mean the peer rejected delivery for good.
var permanentTypes = []string{
	"USER_PRIVACY_RESTRICTED",
	"USER_IS_BLOCKED",
	"USER_DEACTIVATED",
	"USER_DEACTIVATED_BAN",
	"INPUT_USER_DEACTIVATED",
	"CHAT_WRITE_FORBIDDEN",
}

// classify maps a gotd RPC error onto the engine's taxonomy. FLOOD_WAIT
// carries the server wait hint; unknown errors default to transient so the
// primary channel gets its fallback attempt.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return broadcast.RateLimited(wait, err)
	}
	if tgerr.Is(err, unreachableTypes...) {
		return broadcast.PeerUnreachable(err)
	}
	if tgerr.Is(err, permanentTypes...) {
		return broadcast.Permanent(err)
	}
	return broadcast.Transient(err)
}
