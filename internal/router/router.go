package router

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/songclash/internal/bus"
	"github.com/mcdev12/songclash/internal/protocol"
	"github.com/mcdev12/songclash/internal/store"
)

// GameStarter starts a hosted game for a room. Implemented by game.Engine.
type GameStarter interface {
	StartGame(ctx context.Context, roomID string) error
}

// Router bridges this process's WebSocket connections and the room bus.
// It owns two process-local registries: the set of rooms this process
// hosts and the connections it holds per room. Neither is ever shared
// across processes; cross-process state lives in the store.
type Router struct {
	store  store.RoomStore
	bus    bus.Bus
	engine GameStarter

	mu          sync.RWMutex
	hostedRooms map[string]bool
	roomConns   map[string][]*Connection
	subscribed  map[string]bool

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

func NewRouter(roomStore store.RoomStore, roomBus bus.Bus, engine GameStarter, cfg ConnectionConfig) *Router {
	return &Router{
		store:       roomStore,
		bus:         roomBus,
		engine:      engine,
		hostedRooms: make(map[string]bool),
		roomConns:   make(map[string][]*Connection),
		subscribed:  make(map[string]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		config: cfg,
	}
}

// HandleBusMessage processes one bus delivery. Guess candidates are
// evaluated only while this process hosts the room, so there is exactly
// one authoritative scoring decision even though every process receives
// the message. Known event kinds are fanned out to the room's local
// connections; unknown kinds are ignored.
func (r *Router) HandleBusMessage(roomID string, env protocol.Envelope) {
	if env.Type == protocol.EventGuess && r.isHosted(roomID) {
		r.evaluateGuess(context.Background(), roomID, env.Data)
	}

	switch env.Type {
	case protocol.EventLeaveRoom, protocol.EventNewPlayer, protocol.EventRenderMessage,
		protocol.EventRoundStart, protocol.EventRoundOver, protocol.EventGameOver,
		protocol.EventScoreInfo:
		r.fanOut(roomID, env)
	}

	if env.Type == protocol.EventGameOver {
		// The room can be hosted by a different process next game.
		r.unhost(roomID)
	}
}

// evaluateGuess is the single authoritative scoring path. A correct first
// guess earns a score decaying from 100 toward 50 across the round; any
// other guess is rendered back as plain chat.
func (r *Router) evaluateGuess(ctx context.Context, roomID string, data json.RawMessage) {
	var guess protocol.Guess
	if err := json.Unmarshal(data, &guess); err != nil || guess.Username == "" {
		return
	}

	status, err := r.store.Status(ctx, roomID)
	if err != nil || status != protocol.StatusInRound {
		return
	}
	song, err := r.store.CurrentSong(ctx, roomID)
	if err != nil {
		return
	}
	scored, err := r.store.HasRoundScore(ctx, roomID, guess.Username)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("round score lookup failed")
		return
	}

	if scored || !strings.EqualFold(song.Name, guess.Message) {
		r.publish(ctx, roomID, protocol.EventRenderMessage, protocol.RenderMessage{
			Info:     false,
			Username: guess.Username,
			Text:     guess.Message,
		})
		return
	}

	cfg, err := r.store.Config(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("config read failed")
		return
	}
	elapsed, err := r.store.TickCounter(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("tick read failed")
		return
	}
	score := roundScore(elapsed, cfg.RoundLength)

	if err := r.store.SetRoundScore(ctx, roomID, guess.Username, score); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("username", guess.Username).Msg("record score failed")
		return
	}

	r.publish(ctx, roomID, protocol.EventRenderMessage, protocol.RenderMessage{
		Info: true,
		Text: guess.Username + " has guessed the song name!",
	})
	r.publish(ctx, roomID, protocol.EventScoreInfo, protocol.ScoreInfo{
		Username: guess.Username,
		Score:    score,
	})
}

// roundScore decays linearly from 100 at the start of a round to 50 at
// its end.
func roundScore(elapsed, total int) int {
	if total <= 0 {
		return 50
	}
	return 100 - (50*elapsed)/total
}

// fanOut forwards an event to every connection this process holds for the
// room, wrapped as a success response. The payload is forwarded verbatim.
func (r *Router) fanOut(roomID string, env protocol.Envelope) {
	r.mu.RLock()
	conns := make([]*Connection, len(r.roomConns[roomID]))
	copy(conns, r.roomConns[roomID])
	r.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	frame, err := json.Marshal(protocol.Response{
		Status: protocol.ResponseSuccess,
		Data:   protocol.EventData{Type: env.Type, Data: env.Data},
	})
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("marshal outbound frame failed")
		return
	}
	for _, c := range conns {
		c.enqueue(frame)
	}
}

func (r *Router) publish(ctx context.Context, roomID string, kind protocol.EventKind, payload interface{}) {
	env, err := protocol.NewEnvelope(kind, payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("event", string(kind)).Msg("marshal event failed")
		return
	}
	if err := r.bus.Publish(ctx, roomID, env); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("event", string(kind)).Msg("bus publish failed")
	}
}

// subscribeRoom subscribes this process to a room's bus channel once.
func (r *Router) subscribeRoom(roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subscribed[roomID] {
		return nil
	}
	if err := r.bus.Subscribe(roomID, r.HandleBusMessage); err != nil {
		return err
	}
	r.subscribed[roomID] = true
	return nil
}

func (r *Router) isHosted(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hostedRooms[roomID]
}

func (r *Router) markHosted(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hostedRooms[roomID] = true
}

func (r *Router) unhost(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hostedRooms, roomID)
}

func (r *Router) addConnection(roomID string, c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roomConns[roomID] = append(r.roomConns[roomID], c)
}

func (r *Router) removeConnection(roomID string, c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.roomConns[roomID]
	for i, other := range conns {
		if other == c {
			r.roomConns[roomID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(r.roomConns[roomID]) == 0 {
		delete(r.roomConns, roomID)
	}
}
