package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/songclash/internal/protocol"
)

// NATSBus implements Bus over core NATS subjects, one subject per room.
// Core pub/sub (not JetStream) is deliberate: every subscribed process
// must see every message, and JetStream consumers would load-balance
// deliveries instead.
type NATSBus struct {
	nc *nats.Conn

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

func NewNATSBus(url string) (*NATSBus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSBus{nc: nc, subs: make(map[string]*nats.Subscription)}, nil
}

func subject(roomID string) string { return "room." + roomID }

func (b *NATSBus) Publish(_ context.Context, roomID string, env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.nc.Publish(subject(roomID), data); err != nil {
		return fmt.Errorf("publish to room %s: %w", roomID, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(roomID string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[roomID]; ok {
		return nil
	}

	sub, err := b.nc.Subscribe(subject(roomID), func(msg *nats.Msg) {
		var env protocol.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("dropping malformed bus message")
			return
		}
		handler(roomID, env)
	})
	if err != nil {
		return fmt.Errorf("subscribe to room %s: %w", roomID, err)
	}
	b.subs[roomID] = sub

	log.Debug().Str("room_id", roomID).Msg("subscribed to room channel")
	return nil
}

func (b *NATSBus) Close() error {
	b.mu.Lock()
	for roomID, sub := range b.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("unsubscribe failed")
		}
		delete(b.subs, roomID)
	}
	b.mu.Unlock()

	b.nc.Close()
	return nil
}
