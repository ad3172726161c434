package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/songclash/internal/bus"
	"github.com/mcdev12/songclash/internal/catalog"
	"github.com/mcdev12/songclash/internal/protocol"
	"github.com/mcdev12/songclash/internal/store"
	"github.com/mcdev12/songclash/internal/ticker"
)

// maxPhaseLength caps configured round and replay lengths, in ticks.
const maxPhaseLength = 30

// Engine runs the active-game lifecycle for rooms hosted by this process:
// shuffling, round and replay transitions, and score coalescing. Exactly
// one process runs a room's game at a time; the Router enforces that
// before calling StartGame.
type Engine struct {
	store        store.RoomStore
	bus          bus.Bus
	catalog      catalog.Catalog
	clock        clockwork.Clock
	tickInterval time.Duration

	mu      sync.Mutex
	tickers map[string]*ticker.Ticker
}

// Option adjusts an Engine at construction.
type Option func(*Engine)

// WithClock replaces the real clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithTickInterval overrides the one-second game tick, for tests.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.tickInterval = d }
}

func NewEngine(roomStore store.RoomStore, roomBus bus.Bus, songs catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		store:        roomStore,
		bus:          roomBus,
		catalog:      songs,
		clock:        clockwork.NewRealClock(),
		tickInterval: time.Second,
		tickers:      make(map[string]*ticker.Ticker),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// activeGame is the engine-local state of one hosted game. Config is read
// once at start; rounds remaining live only on the hosting process.
type activeGame struct {
	roomID          string
	cfg             store.RoomConfig
	roundsRemaining int
}

// StartGame shuffles the room's playlist, seeds the score maps, moves the
// room into its first round and starts the tick loop. The Router has
// already verified the room is in the lobby.
func (e *Engine) StartGame(ctx context.Context, roomID string) error {
	cfg, err := e.store.Config(ctx, roomID)
	if err != nil {
		return fmt.Errorf("read config for room %s: %w", roomID, err)
	}
	if cfg.RoundLength > maxPhaseLength {
		cfg.RoundLength = maxPhaseLength
	}
	if cfg.ReplayLength > maxPhaseLength {
		cfg.ReplayLength = maxPhaseLength
	}

	songs, err := e.catalog.LookupSongs(ctx, cfg.PlaylistID)
	if err != nil {
		return fmt.Errorf("look up playlist %s: %w", cfg.PlaylistID, err)
	}
	if len(songs) == 0 {
		return fmt.Errorf("playlist %s has no songs", cfg.PlaylistID)
	}

	rounds := cfg.NumRounds
	if len(songs) < rounds {
		rounds = len(songs)
	}

	if err := e.store.ClearSongs(ctx, roomID); err != nil {
		return fmt.Errorf("clear song queue for room %s: %w", roomID, err)
	}
	order := shuffledIndexes(len(songs))
	for i := 0; i < rounds; i++ {
		if err := e.store.PushSong(ctx, roomID, songs[order[i]]); err != nil {
			return fmt.Errorf("enqueue song for room %s: %w", roomID, err)
		}
	}

	if err := e.store.ClearTotalScores(ctx, roomID); err != nil {
		return fmt.Errorf("clear total scores for room %s: %w", roomID, err)
	}
	if err := e.store.ClearRoundScores(ctx, roomID); err != nil {
		return fmt.Errorf("clear round scores for room %s: %w", roomID, err)
	}
	users, err := e.store.Users(ctx, roomID)
	if err != nil {
		return fmt.Errorf("list users for room %s: %w", roomID, err)
	}
	for _, username := range users {
		if err := e.store.SetTotalScore(ctx, roomID, username, 0); err != nil {
			return fmt.Errorf("seed total score for %s in room %s: %w", username, roomID, err)
		}
	}

	if err := e.store.ResetTick(ctx, roomID); err != nil {
		return fmt.Errorf("reset tick for room %s: %w", roomID, err)
	}
	if err := e.store.SetStatus(ctx, roomID, protocol.StatusInRound); err != nil {
		return fmt.Errorf("set status for room %s: %w", roomID, err)
	}

	first, err := e.store.CurrentSong(ctx, roomID)
	if err != nil {
		return fmt.Errorf("read first song for room %s: %w", roomID, err)
	}
	e.publish(ctx, roomID, protocol.EventRoundStart, first.PreviewURL)

	g := &activeGame{roomID: roomID, cfg: cfg, roundsRemaining: rounds}
	t := ticker.New(e.clock, e.tickInterval,
		func() { e.tick(context.Background(), g) },
		func(drift time.Duration) {
			log.Warn().Str("room_id", roomID).Dur("drift", drift).Msg("game tick drift exceeded interval")
		})

	e.mu.Lock()
	if old, ok := e.tickers[roomID]; ok {
		old.Stop()
	}
	e.tickers[roomID] = t
	e.mu.Unlock()
	t.Start()

	log.Info().
		Str("room_id", roomID).
		Str("playlist_id", cfg.PlaylistID).
		Int("rounds", rounds).
		Msg("game started")
	return nil
}

// tick advances the room clock by one and fires at most one phase
// transition. Thresholds use >= so a late tick still transitions. Store
// errors are logged, not retried; the next tick re-evaluates the same
// threshold.
func (e *Engine) tick(ctx context.Context, g *activeGame) {
	count, err := e.store.IncrementTick(ctx, g.roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", g.roomID).Msg("tick increment failed")
		return
	}
	status, err := e.store.Status(ctx, g.roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", g.roomID).Msg("tick status read failed")
		return
	}

	switch {
	case status == protocol.StatusInRound && count >= g.cfg.RoundLength:
		e.endRound(ctx, g)
	case status == protocol.StatusInReplay && count >= g.cfg.ReplayLength:
		e.endReplay(ctx, g)
	}
}

// endRound moves the room into its replay phase and folds the round's
// scores into the totals. Only the hosting process runs this, which makes
// the read-then-increment merge safe.
func (e *Engine) endRound(ctx context.Context, g *activeGame) {
	if err := e.store.SetStatus(ctx, g.roomID, protocol.StatusInReplay); err != nil {
		log.Error().Err(err).Str("room_id", g.roomID).Msg("enter replay failed")
		return
	}
	if err := e.store.ResetTick(ctx, g.roomID); err != nil {
		log.Error().Err(err).Str("room_id", g.roomID).Msg("reset tick failed")
	}

	roundScores, err := e.store.RoundScores(ctx, g.roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", g.roomID).Msg("read round scores failed")
	} else {
		for username, score := range roundScores {
			if err := e.store.AddTotalScore(ctx, g.roomID, username, score); err != nil {
				log.Error().Err(err).
					Str("room_id", g.roomID).
					Str("username", username).
					Msg("score merge failed")
			}
		}
	}

	song, err := e.store.PopSong(ctx, g.roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", g.roomID).Msg("pop finished song failed")
		return
	}
	e.publish(ctx, g.roomID, protocol.EventRoundOver, song)
}

// endReplay either starts the next round or finishes the game.
func (e *Engine) endReplay(ctx context.Context, g *activeGame) {
	g.roundsRemaining--
	if g.roundsRemaining > 0 {
		if err := e.store.ClearRoundScores(ctx, g.roomID); err != nil {
			log.Error().Err(err).Str("room_id", g.roomID).Msg("clear round scores failed")
		}
		if err := e.store.SetStatus(ctx, g.roomID, protocol.StatusInRound); err != nil {
			log.Error().Err(err).Str("room_id", g.roomID).Msg("enter round failed")
			return
		}
		if err := e.store.ResetTick(ctx, g.roomID); err != nil {
			log.Error().Err(err).Str("room_id", g.roomID).Msg("reset tick failed")
		}
		next, err := e.store.CurrentSong(ctx, g.roomID)
		if err != nil {
			log.Error().Err(err).Str("room_id", g.roomID).Msg("read next song failed")
			return
		}
		e.publish(ctx, g.roomID, protocol.EventRoundStart, next.PreviewURL)
		return
	}

	e.stopTicker(g.roomID)
	if err := e.store.SetStatus(ctx, g.roomID, protocol.StatusLobby); err != nil {
		log.Error().Err(err).Str("room_id", g.roomID).Msg("return to lobby failed")
	}
	e.publish(ctx, g.roomID, protocol.EventGameOver, nil)
	log.Info().Str("room_id", g.roomID).Msg("game over")
}

func (e *Engine) publish(ctx context.Context, roomID string, kind protocol.EventKind, payload interface{}) {
	env, err := protocol.NewEnvelope(kind, payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("event", string(kind)).Msg("marshal event failed")
		return
	}
	if err := e.bus.Publish(ctx, roomID, env); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("event", string(kind)).Msg("bus publish failed")
	}
}

func (e *Engine) stopTicker(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.tickers[roomID]; ok {
		t.Stop()
		delete(e.tickers, roomID)
	}
}

// Stop halts the tick loop of every room this process hosts. Used at
// shutdown.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for roomID, t := range e.tickers {
		t.Stop()
		delete(e.tickers, roomID)
	}
}
