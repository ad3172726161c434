package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/mcdev12/songclash/internal/protocol"
)

// Room hash fields.
const (
	fieldPlaylistID   = "playlistId"
	fieldNumRounds    = "numRounds"
	fieldRoundLength  = "roundLength"
	fieldReplayLength = "replayLength"
	fieldStatus       = "gameStatus"
	fieldTick         = "tickCounter"
)

func roomKey(roomID string) string        { return "games:room-" + roomID }
func usersKey(roomID string) string       { return "games:users:room-" + roomID }
func songsKey(roomID string) string       { return "games:songs:room-" + roomID }
func scoresKey(roomID string) string      { return "games:scores:room-" + roomID }
func roundScoresKey(roomID string) string { return "games:round-scores:room-" + roomID }

// RedisStore implements RoomStore on a shared Redis instance so any number
// of server processes can coordinate on the same rooms.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) CreateRoom(ctx context.Context, roomID string, cfg RoomConfig) error {
	created, err := s.client.HSetNX(ctx, roomKey(roomID), fieldPlaylistID, cfg.PlaylistID).Result()
	if err != nil {
		return fmt.Errorf("create room %s: %w", roomID, err)
	}
	if !created {
		return ErrRoomExists
	}
	err = s.client.HSet(ctx, roomKey(roomID),
		fieldNumRounds, cfg.NumRounds,
		fieldRoundLength, cfg.RoundLength,
		fieldReplayLength, cfg.ReplayLength,
		fieldStatus, int(protocol.StatusLobby),
		fieldTick, 0,
	).Err()
	if err != nil {
		return fmt.Errorf("write config for room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) RoomExists(ctx context.Context, roomID string) (bool, error) {
	n, err := s.client.Exists(ctx, roomKey(roomID)).Result()
	if err != nil {
		return false, fmt.Errorf("check room %s: %w", roomID, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Config(ctx context.Context, roomID string) (RoomConfig, error) {
	vals, err := s.client.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return RoomConfig{}, fmt.Errorf("read config for room %s: %w", roomID, err)
	}
	return RoomConfig{
		PlaylistID:   vals[fieldPlaylistID],
		NumRounds:    atoiOrZero(vals[fieldNumRounds]),
		RoundLength:  atoiOrZero(vals[fieldRoundLength]),
		ReplayLength: atoiOrZero(vals[fieldReplayLength]),
	}, nil
}

func (s *RedisStore) Status(ctx context.Context, roomID string) (protocol.GameStatus, error) {
	n, err := s.hgetInt(ctx, roomKey(roomID), fieldStatus)
	return protocol.GameStatus(n), err
}

func (s *RedisStore) SetStatus(ctx context.Context, roomID string, status protocol.GameStatus) error {
	if err := s.client.HSet(ctx, roomKey(roomID), fieldStatus, int(status)).Err(); err != nil {
		return fmt.Errorf("set status for room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) IncrementTick(ctx context.Context, roomID string) (int, error) {
	n, err := s.client.HIncrBy(ctx, roomKey(roomID), fieldTick, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment tick for room %s: %w", roomID, err)
	}
	return int(n), nil
}

func (s *RedisStore) ResetTick(ctx context.Context, roomID string) error {
	if err := s.client.HSet(ctx, roomKey(roomID), fieldTick, 0).Err(); err != nil {
		return fmt.Errorf("reset tick for room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) TickCounter(ctx context.Context, roomID string) (int, error) {
	return s.hgetInt(ctx, roomKey(roomID), fieldTick)
}

func (s *RedisStore) AddUser(ctx context.Context, roomID, username string) error {
	if err := s.client.SAdd(ctx, usersKey(roomID), username).Err(); err != nil {
		return fmt.Errorf("add user to room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) RemoveUser(ctx context.Context, roomID, username string) error {
	if err := s.client.SRem(ctx, usersKey(roomID), username).Err(); err != nil {
		return fmt.Errorf("remove user from room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) IsUser(ctx context.Context, roomID, username string) (bool, error) {
	member, err := s.client.SIsMember(ctx, usersKey(roomID), username).Result()
	if err != nil {
		return false, fmt.Errorf("check user in room %s: %w", roomID, err)
	}
	return member, nil
}

func (s *RedisStore) Users(ctx context.Context, roomID string) ([]string, error) {
	users, err := s.client.SMembers(ctx, usersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list users for room %s: %w", roomID, err)
	}
	return users, nil
}

func (s *RedisStore) PushSong(ctx context.Context, roomID string, song protocol.Song) error {
	data, err := json.Marshal(song)
	if err != nil {
		return fmt.Errorf("marshal song: %w", err)
	}
	if err := s.client.RPush(ctx, songsKey(roomID), data).Err(); err != nil {
		return fmt.Errorf("push song for room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) CurrentSong(ctx context.Context, roomID string) (protocol.Song, error) {
	data, err := s.client.LIndex(ctx, songsKey(roomID), 0).Result()
	if errors.Is(err, redis.Nil) {
		return protocol.Song{}, ErrNoSong
	}
	if err != nil {
		return protocol.Song{}, fmt.Errorf("read current song for room %s: %w", roomID, err)
	}
	return unmarshalSong(data)
}

func (s *RedisStore) PopSong(ctx context.Context, roomID string) (protocol.Song, error) {
	data, err := s.client.LPop(ctx, songsKey(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return protocol.Song{}, ErrNoSong
	}
	if err != nil {
		return protocol.Song{}, fmt.Errorf("pop song for room %s: %w", roomID, err)
	}
	return unmarshalSong(data)
}

func (s *RedisStore) ClearSongs(ctx context.Context, roomID string) error {
	if err := s.client.Del(ctx, songsKey(roomID)).Err(); err != nil {
		return fmt.Errorf("clear songs for room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) SetTotalScore(ctx context.Context, roomID, username string, score int) error {
	if err := s.client.HSet(ctx, scoresKey(roomID), username, score).Err(); err != nil {
		return fmt.Errorf("set total score in room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) AddTotalScore(ctx context.Context, roomID, username string, delta int) error {
	if err := s.client.HIncrBy(ctx, scoresKey(roomID), username, int64(delta)).Err(); err != nil {
		return fmt.Errorf("add total score in room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) TotalScores(ctx context.Context, roomID string) (map[string]int, error) {
	return s.scoreMap(ctx, scoresKey(roomID))
}

func (s *RedisStore) ClearTotalScores(ctx context.Context, roomID string) error {
	if err := s.client.Del(ctx, scoresKey(roomID)).Err(); err != nil {
		return fmt.Errorf("clear total scores for room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) SetRoundScore(ctx context.Context, roomID, username string, score int) error {
	if err := s.client.HSet(ctx, roundScoresKey(roomID), username, score).Err(); err != nil {
		return fmt.Errorf("set round score in room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) HasRoundScore(ctx context.Context, roomID, username string) (bool, error) {
	has, err := s.client.HExists(ctx, roundScoresKey(roomID), username).Result()
	if err != nil {
		return false, fmt.Errorf("check round score in room %s: %w", roomID, err)
	}
	return has, nil
}

func (s *RedisStore) RoundScores(ctx context.Context, roomID string) (map[string]int, error) {
	return s.scoreMap(ctx, roundScoresKey(roomID))
}

func (s *RedisStore) ClearRoundScores(ctx context.Context, roomID string) error {
	if err := s.client.Del(ctx, roundScoresKey(roomID)).Err(); err != nil {
		return fmt.Errorf("clear round scores for room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) hgetInt(ctx context.Context, key, field string) (int, error) {
	val, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s from %s: %w", field, key, err)
	}
	return atoiOrZero(val), nil
}

func (s *RedisStore) scoreMap(ctx context.Context, key string) (map[string]int, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read scores from %s: %w", key, err)
	}
	scores := make(map[string]int, len(vals))
	for username, raw := range vals {
		scores[username] = atoiOrZero(raw)
	}
	return scores, nil
}

func unmarshalSong(data string) (protocol.Song, error) {
	var song protocol.Song
	if err := json.Unmarshal([]byte(data), &song); err != nil {
		return protocol.Song{}, fmt.Errorf("unmarshal song: %w", err)
	}
	return song, nil
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
