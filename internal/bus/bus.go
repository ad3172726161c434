package bus

import (
	"context"

	"github.com/mcdev12/songclash/internal/protocol"
)

// Handler receives every envelope published to a subscribed room, once per
// publish per subscribed process.
type Handler func(roomID string, env protocol.Envelope)

// Bus is the broadcast channel connecting all server processes. Channel
// names are room ids; any process may publish, and every process
// subscribed to a room sees every message for it.
type Bus interface {
	Publish(ctx context.Context, roomID string, env protocol.Envelope) error
	// Subscribe registers a handler for a room's channel. Callers register
	// a given handler at most once per room; the Router keeps its own
	// subscribed-room set to guarantee that.
	Subscribe(roomID string, handler Handler) error
	Close() error
}
