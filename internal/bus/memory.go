package bus

import (
	"context"
	"sync"

	"github.com/mcdev12/songclash/internal/protocol"
)

// MemoryBus is a single-process Bus for tests. Several handlers may
// subscribe to one room (standing in for several processes). Delivery is
// synchronous: Publish returns after every handler has run.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]Handler
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]Handler)}
}

func (b *MemoryBus) Publish(_ context.Context, roomID string, env protocol.Envelope) error {
	b.mu.Lock()
	handlers := make([]Handler, len(b.subs[roomID]))
	copy(handlers, b.subs[roomID])
	b.mu.Unlock()

	for _, handler := range handlers {
		handler(roomID, env)
	}
	return nil
}

func (b *MemoryBus) Subscribe(roomID string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[roomID] = append(b.subs[roomID], handler)
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]Handler)
	return nil
}
