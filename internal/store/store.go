package store

import (
	"context"
	"errors"

	"github.com/mcdev12/songclash/internal/protocol"
)

var (
	// ErrRoomExists is returned by CreateRoom when the room id is taken.
	ErrRoomExists = errors.New("room already exists")
	// ErrNoSong is returned when a room's song queue is empty.
	ErrNoSong = errors.New("no song queued")
)

// RoomConfig is a room's game configuration, immutable after CreateRoom.
// Lengths are in ticks (one second each). Missing or malformed stored
// values read back as zero.
type RoomConfig struct {
	PlaylistID   string
	NumRounds    int
	RoundLength  int
	ReplayLength int
}

// RoomStore is the shared state every server process coordinates through.
// Each mutation maps onto a single atomic primitive of the backing store.
// Read-modify-write sequences (the score merge) are only performed by a
// room's hosting process, which is what makes them safe without a
// distributed lock.
type RoomStore interface {
	// CreateRoom conditionally creates the room. ErrRoomExists if present.
	CreateRoom(ctx context.Context, roomID string, cfg RoomConfig) error
	RoomExists(ctx context.Context, roomID string) (bool, error)
	Config(ctx context.Context, roomID string) (RoomConfig, error)

	Status(ctx context.Context, roomID string) (protocol.GameStatus, error)
	SetStatus(ctx context.Context, roomID string, status protocol.GameStatus) error

	// IncrementTick atomically advances the room clock and returns the new
	// value.
	IncrementTick(ctx context.Context, roomID string) (int, error)
	ResetTick(ctx context.Context, roomID string) error
	TickCounter(ctx context.Context, roomID string) (int, error)

	AddUser(ctx context.Context, roomID, username string) error
	RemoveUser(ctx context.Context, roomID, username string) error
	IsUser(ctx context.Context, roomID, username string) (bool, error)
	Users(ctx context.Context, roomID string) ([]string, error)

	PushSong(ctx context.Context, roomID string, song protocol.Song) error
	CurrentSong(ctx context.Context, roomID string) (protocol.Song, error)
	PopSong(ctx context.Context, roomID string) (protocol.Song, error)
	ClearSongs(ctx context.Context, roomID string) error

	SetTotalScore(ctx context.Context, roomID, username string, score int) error
	AddTotalScore(ctx context.Context, roomID, username string, delta int) error
	TotalScores(ctx context.Context, roomID string) (map[string]int, error)
	ClearTotalScores(ctx context.Context, roomID string) error

	SetRoundScore(ctx context.Context, roomID, username string, score int) error
	HasRoundScore(ctx context.Context, roomID, username string) (bool, error)
	RoundScores(ctx context.Context, roomID string) (map[string]int, error)
	ClearRoundScores(ctx context.Context, roomID string) error
}
