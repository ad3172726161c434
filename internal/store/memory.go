package store

import (
	"context"
	"sync"

	"github.com/mcdev12/songclash/internal/protocol"
)

// MemoryStore is an in-process RoomStore for tests and single-node
// development runs. It mirrors the Redis semantics: reads of absent rooms
// or fields yield zero values, writes create state implicitly.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]*memoryRoom
}

type memoryRoom struct {
	cfg         RoomConfig
	created     bool
	status      protocol.GameStatus
	tick        int
	users       map[string]bool
	songs       []protocol.Song
	totals      map[string]int
	roundScores map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*memoryRoom)}
}

func (s *MemoryStore) room(roomID string) *memoryRoom {
	r, ok := s.rooms[roomID]
	if !ok {
		r = &memoryRoom{
			users:       make(map[string]bool),
			totals:      make(map[string]int),
			roundScores: make(map[string]int),
		}
		s.rooms[roomID] = r
	}
	return r
}

func (s *MemoryStore) CreateRoom(_ context.Context, roomID string, cfg RoomConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.room(roomID)
	if r.created {
		return ErrRoomExists
	}
	r.created = true
	r.cfg = cfg
	r.status = protocol.StatusLobby
	r.tick = 0
	return nil
}

func (s *MemoryStore) RoomExists(_ context.Context, roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	return ok && r.created, nil
}

func (s *MemoryStore) Config(_ context.Context, roomID string) (RoomConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room(roomID).cfg, nil
}

func (s *MemoryStore) Status(_ context.Context, roomID string) (protocol.GameStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room(roomID).status, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, roomID string, status protocol.GameStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).status = status
	return nil
}

func (s *MemoryStore) IncrementTick(_ context.Context, roomID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.room(roomID)
	r.tick++
	return r.tick, nil
}

func (s *MemoryStore) ResetTick(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).tick = 0
	return nil
}

func (s *MemoryStore) TickCounter(_ context.Context, roomID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room(roomID).tick, nil
}

func (s *MemoryStore) AddUser(_ context.Context, roomID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).users[username] = true
	return nil
}

func (s *MemoryStore) RemoveUser(_ context.Context, roomID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.room(roomID).users, username)
	return nil
}

func (s *MemoryStore) IsUser(_ context.Context, roomID, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room(roomID).users[username], nil
}

func (s *MemoryStore) Users(_ context.Context, roomID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.room(roomID).users))
	for username := range s.room(roomID).users {
		users = append(users, username)
	}
	return users, nil
}

func (s *MemoryStore) PushSong(_ context.Context, roomID string, song protocol.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.room(roomID)
	r.songs = append(r.songs, song)
	return nil
}

func (s *MemoryStore) CurrentSong(_ context.Context, roomID string) (protocol.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.room(roomID)
	if len(r.songs) == 0 {
		return protocol.Song{}, ErrNoSong
	}
	return r.songs[0], nil
}

func (s *MemoryStore) PopSong(_ context.Context, roomID string) (protocol.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.room(roomID)
	if len(r.songs) == 0 {
		return protocol.Song{}, ErrNoSong
	}
	song := r.songs[0]
	r.songs = r.songs[1:]
	return song, nil
}

func (s *MemoryStore) ClearSongs(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).songs = nil
	return nil
}

func (s *MemoryStore) SetTotalScore(_ context.Context, roomID, username string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).totals[username] = score
	return nil
}

func (s *MemoryStore) AddTotalScore(_ context.Context, roomID, username string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).totals[username] += delta
	return nil
}

func (s *MemoryStore) TotalScores(_ context.Context, roomID string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyScores(s.room(roomID).totals), nil
}

func (s *MemoryStore) ClearTotalScores(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).totals = make(map[string]int)
	return nil
}

func (s *MemoryStore) SetRoundScore(_ context.Context, roomID, username string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).roundScores[username] = score
	return nil
}

func (s *MemoryStore) HasRoundScore(_ context.Context, roomID, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.room(roomID).roundScores[username]
	return ok, nil
}

func (s *MemoryStore) RoundScores(_ context.Context, roomID string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyScores(s.room(roomID).roundScores), nil
}

func (s *MemoryStore) ClearRoundScores(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).roundScores = make(map[string]int)
	return nil
}

func copyScores(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
