package broadcast

import "context"

// Ack is the acknowledgement a channel returns for a delivered message.
type Ack struct {
	MessageID string
}

// Sender is the capability the engine is written against. Implementations
// classify their failures as *SendError; anything else is treated as
// transient. The media slice is nil for text messages and shared read-only
// across all sends of a run otherwise.
type Sender interface {
	Name() string
	Send(ctx context.Context, to Recipient, msg Message, media []byte) (Ack, error)
}

// Connector is implemented by senders that hold a lazily-connected session
// (the secondary channel). The engine ensures the session is up once per run
// before the first send; implementations must make EnsureConnected safe for
// repeated calls without reconnecting.
type Connector interface {
	EnsureConnected(ctx context.Context) error
}
