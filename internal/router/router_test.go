package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/songclash/internal/bus"
	"github.com/mcdev12/songclash/internal/protocol"
	"github.com/mcdev12/songclash/internal/store"
)

// fakeSocket is an in-memory socket. Inbound frames come from a channel;
// writes are recorded. Handler tests mostly bypass it and read replies
// straight off the connection's send buffer.
type fakeSocket struct {
	inbound chan []byte
	closeCh chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		inbound: make(chan []byte, 16),
		closeCh: make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case raw, ok := <-s.inbound:
		if !ok {
			return 0, nil, errors.New("inbound closed")
		}
		return websocket.TextMessage, raw, nil
	case <-s.closeCh:
		return 0, nil, errors.New("socket closed")
	}
}

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, data)
	return nil
}

func (s *fakeSocket) SetReadLimit(int64)                {}
func (s *fakeSocket) SetReadDeadline(time.Time) error   { return nil }
func (s *fakeSocket) SetWriteDeadline(time.Time) error  { return nil }
func (s *fakeSocket) SetPongHandler(func(string) error) {}
func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.closeCh) })
	return nil
}

type stubStarter struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (s *stubStarter) StartGame(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, roomID)
	return s.err
}

func (s *stubStarter) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func newTestRouter(t *testing.T) (*Router, *store.MemoryStore, *stubStarter) {
	t.Helper()
	ms := store.NewMemoryStore()
	starter := &stubStarter{}
	r := NewRouter(ms, bus.NewMemoryBus(), starter, DefaultConnectionConfig())
	return r, ms, starter
}

func (r *Router) newTestConn() *Connection {
	return r.newConnection(newFakeSocket())
}

func frame(t *testing.T, action string, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	out, err := json.Marshal(protocol.Request{Type: action, Data: raw})
	require.NoError(t, err)
	return out
}

// outboundFrame mirrors protocol.Response with the payload left raw so
// tests can decode it per event kind.
type outboundFrame struct {
	Status protocol.ResponseStatus `json:"status"`
	Data   json.RawMessage         `json:"data"`
}

type outboundEvent struct {
	Type protocol.EventKind `json:"type"`
	Data json.RawMessage    `json:"data"`
}

func recv(t *testing.T, c *Connection) outboundFrame {
	t.Helper()
	select {
	case raw := <-c.send:
		var f outboundFrame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return outboundFrame{}
	}
}

func recvError(t *testing.T, c *Connection) string {
	t.Helper()
	f := recv(t, c)
	require.Equal(t, protocol.ResponseError, f.Status)
	var msg string
	require.NoError(t, json.Unmarshal(f.Data, &msg))
	return msg
}

func recvEvent(t *testing.T, c *Connection) outboundEvent {
	t.Helper()
	f := recv(t, c)
	require.Equal(t, protocol.ResponseSuccess, f.Status)
	var ev outboundEvent
	require.NoError(t, json.Unmarshal(f.Data, &ev))
	return ev
}

func assertNoFrame(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected frame: %s", raw)
	default:
	}
}

func createRoom(t *testing.T, ms *store.MemoryStore, roomID string) store.RoomConfig {
	t.Helper()
	cfg := store.RoomConfig{PlaylistID: "pl-1", NumRounds: 2, RoundLength: 10, ReplayLength: 5}
	require.NoError(t, ms.CreateRoom(context.Background(), roomID, cfg))
	return cfg
}

func join(t *testing.T, r *Router, c *Connection, roomID, username string) {
	t.Helper()
	r.handleFrame(c, frame(t, protocol.ActionJoinRoom, protocol.JoinRoomRequest{
		RoomID:   roomID,
		Username: username,
	}))
	ev := recvEvent(t, c)
	require.Equal(t, protocol.EventJoinedRoom, ev.Type)
}

func TestJoinRoomValidation(t *testing.T) {
	joinReq := func(roomID, username string) protocol.JoinRoomRequest {
		return protocol.JoinRoomRequest{RoomID: roomID, Username: username}
	}

	t.Run("already in a room", func(t *testing.T) {
		r, ms, _ := newTestRouter(t)
		createRoom(t, ms, "r1")
		c := r.newTestConn()
		c.roomID = "r1"
		r.handleFrame(c, frame(t, protocol.ActionJoinRoom, joinReq("r1", "ana")))
		assert.Equal(t, errAlreadyInRoom, recvError(t, c))
	})

	t.Run("empty room id", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		c := r.newTestConn()
		r.handleFrame(c, frame(t, protocol.ActionJoinRoom, joinReq("", "ana")))
		assert.Equal(t, errInvalidRoomID, recvError(t, c))
	})

	t.Run("malformed join payload", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		c := r.newTestConn()
		r.handleFrame(c, []byte(`{"type":"joinRoom","data":42}`))
		assert.Equal(t, errInvalidRoomID, recvError(t, c))
	})

	t.Run("room does not exist", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		c := r.newTestConn()
		r.handleFrame(c, frame(t, protocol.ActionJoinRoom, joinReq("nope", "ana")))
		assert.Equal(t, errRoomNotFound, recvError(t, c))
	})

	t.Run("no username", func(t *testing.T) {
		r, ms, _ := newTestRouter(t)
		createRoom(t, ms, "r1")
		c := r.newTestConn()
		r.handleFrame(c, frame(t, protocol.ActionJoinRoom, joinReq("r1", "")))
		assert.Equal(t, errNoUsername, recvError(t, c))
	})

	t.Run("username taken", func(t *testing.T) {
		r, ms, _ := newTestRouter(t)
		createRoom(t, ms, "r1")
		require.NoError(t, ms.AddUser(context.Background(), "r1", "ana"))
		c := r.newTestConn()
		r.handleFrame(c, frame(t, protocol.ActionJoinRoom, joinReq("r1", "ana")))
		assert.Equal(t, errUsernameTaken, recvError(t, c))
	})
}

func TestJoinRoomSuccess(t *testing.T) {
	r, ms, _ := newTestRouter(t)
	createRoom(t, ms, "r1")

	c := r.newTestConn()
	r.handleFrame(c, frame(t, protocol.ActionJoinRoom, protocol.JoinRoomRequest{
		RoomID: "r1", Username: "ana",
	}))

	ev := recvEvent(t, c)
	require.Equal(t, protocol.EventJoinedRoom, ev.Type)
	var snap protocol.RoomSnapshot
	require.NoError(t, json.Unmarshal(ev.Data, &snap))
	assert.Equal(t, []string{"ana"}, snap.ConnectedUsers)
	assert.Equal(t, protocol.StatusLobby, snap.GameStatus)
	assert.Equal(t, "pl-1", snap.PlaylistID)

	member, err := ms.IsUser(context.Background(), "r1", "ana")
	require.NoError(t, err)
	assert.True(t, member)
}

func TestJoinRoomNotifiesExistingMembers(t *testing.T) {
	r, ms, _ := newTestRouter(t)
	createRoom(t, ms, "r1")

	first := r.newTestConn()
	join(t, r, first, "r1", "ana")

	second := r.newTestConn()
	join(t, r, second, "r1", "ben")

	ev := recvEvent(t, first)
	require.Equal(t, protocol.EventNewPlayer, ev.Type)
	var name string
	require.NoError(t, json.Unmarshal(ev.Data, &name))
	assert.Equal(t, "ben", name)

	// The joiner was not yet registered when newPlayer went out.
	assertNoFrame(t, second)
}

func TestSendMessageOutsideRoundIsChat(t *testing.T) {
	r, ms, _ := newTestRouter(t)
	createRoom(t, ms, "r1")

	c := r.newTestConn()
	join(t, r, c, "r1", "ana")

	r.handleFrame(c, frame(t, protocol.ActionSendMessage, "hello there"))

	ev := recvEvent(t, c)
	require.Equal(t, protocol.EventRenderMessage, ev.Type)
	var msg protocol.RenderMessage
	require.NoError(t, json.Unmarshal(ev.Data, &msg))
	assert.False(t, msg.Info)
	assert.Equal(t, "ana", msg.Username)
	assert.Equal(t, "hello there", msg.Text)
}

func TestSendMessageErrors(t *testing.T) {
	t.Run("not in a room", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		c := r.newTestConn()
		r.handleFrame(c, frame(t, protocol.ActionSendMessage, "hi"))
		assert.Equal(t, errNotInRoom, recvError(t, c))
	})

	t.Run("non-string payload", func(t *testing.T) {
		r, ms, _ := newTestRouter(t)
		createRoom(t, ms, "r1")
		c := r.newTestConn()
		join(t, r, c, "r1", "ana")
		r.handleFrame(c, []byte(`{"type":"sendMessage","data":{"nested":true}}`))
		assert.Equal(t, errInvalidRequest, recvError(t, c))
	})
}

// seedRound puts a room mid-round with a current song and some elapsed
// ticks, the state a guess lands in.
func seedRound(t *testing.T, ms *store.MemoryStore, roomID string, song protocol.Song, ticks int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, ms.SetStatus(ctx, roomID, protocol.StatusInRound))
	require.NoError(t, ms.PushSong(ctx, roomID, song))
	for i := 0; i < ticks; i++ {
		_, err := ms.IncrementTick(ctx, roomID)
		require.NoError(t, err)
	}
}

func TestGuessCorrectScoresOnce(t *testing.T) {
	r, ms, _ := newTestRouter(t)
	createRoom(t, ms, "r1")

	c := r.newTestConn()
	join(t, r, c, "r1", "ana")
	r.markHosted("r1")

	seedRound(t, ms, "r1", protocol.Song{Name: "Yellow Submarine", PreviewURL: "http://p/1"}, 3)

	r.handleFrame(c, frame(t, protocol.ActionSendMessage, "yellow submarine"))

	ev := recvEvent(t, c)
	require.Equal(t, protocol.EventRenderMessage, ev.Type)
	var msg protocol.RenderMessage
	require.NoError(t, json.Unmarshal(ev.Data, &msg))
	assert.True(t, msg.Info)
	assert.Equal(t, "ana has guessed the song name!", msg.Text)
	assert.Empty(t, msg.Username)

	ev = recvEvent(t, c)
	require.Equal(t, protocol.EventScoreInfo, ev.Type)
	var info protocol.ScoreInfo
	require.NoError(t, json.Unmarshal(ev.Data, &info))
	assert.Equal(t, "ana", info.Username)
	assert.Equal(t, 85, info.Score, "3 of 10 ticks elapsed")

	// A second correct guess renders as plain chat, no second score.
	r.handleFrame(c, frame(t, protocol.ActionSendMessage, "Yellow Submarine"))
	ev = recvEvent(t, c)
	require.Equal(t, protocol.EventRenderMessage, ev.Type)
	require.NoError(t, json.Unmarshal(ev.Data, &msg))
	assert.False(t, msg.Info)

	scores, err := ms.RoundScores(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ana": 85}, scores)
}

func TestGuessWrongIsChat(t *testing.T) {
	r, ms, _ := newTestRouter(t)
	createRoom(t, ms, "r1")

	c := r.newTestConn()
	join(t, r, c, "r1", "ana")
	r.markHosted("r1")
	seedRound(t, ms, "r1", protocol.Song{Name: "Yellow Submarine"}, 0)

	r.handleFrame(c, frame(t, protocol.ActionSendMessage, "wrong answer"))

	ev := recvEvent(t, c)
	require.Equal(t, protocol.EventRenderMessage, ev.Type)
	var msg protocol.RenderMessage
	require.NoError(t, json.Unmarshal(ev.Data, &msg))
	assert.False(t, msg.Info)
	assert.Equal(t, "wrong answer", msg.Text)

	scores, err := ms.RoundScores(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestGuessIgnoredWhenNotHosting(t *testing.T) {
	r, ms, _ := newTestRouter(t)
	createRoom(t, ms, "r1")

	c := r.newTestConn()
	join(t, r, c, "r1", "ana")
	seedRound(t, ms, "r1", protocol.Song{Name: "Yellow Submarine"}, 0)

	r.handleFrame(c, frame(t, protocol.ActionSendMessage, "Yellow Submarine"))

	assertNoFrame(t, c)
	scores, err := ms.RoundScores(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestRoundScore(t *testing.T) {
	cases := []struct {
		elapsed, total, want int
	}{
		{0, 10, 100},
		{3, 10, 85},
		{5, 10, 75},
		{10, 10, 50},
		{7, 0, 50},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_of_%d", tc.elapsed, tc.total), func(t *testing.T) {
			assert.Equal(t, tc.want, roundScore(tc.elapsed, tc.total))
		})
	}
}

func TestStartGameAction(t *testing.T) {
	t.Run("not in a room", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		c := r.newTestConn()
		r.handleFrame(c, frame(t, protocol.ActionStartGame, nil))
		assert.Equal(t, errNotInRoom, recvError(t, c))
	})

	t.Run("game already in progress", func(t *testing.T) {
		r, ms, starter := newTestRouter(t)
		createRoom(t, ms, "r1")
		require.NoError(t, ms.SetStatus(context.Background(), "r1", protocol.StatusInRound))
		c := r.newTestConn()
		c.roomID, c.username = "r1", "ana"
		r.handleFrame(c, frame(t, protocol.ActionStartGame, nil))
		assert.Equal(t, errGameInProgress, recvError(t, c))
		assert.Empty(t, starter.called())
	})

	t.Run("success marks this process as host", func(t *testing.T) {
		r, ms, starter := newTestRouter(t)
		createRoom(t, ms, "r1")
		c := r.newTestConn()
		c.roomID, c.username = "r1", "ana"
		r.handleFrame(c, frame(t, protocol.ActionStartGame, nil))
		assertNoFrame(t, c)
		assert.Equal(t, []string{"r1"}, starter.called())
		assert.True(t, r.isHosted("r1"))
	})

	t.Run("engine failure unhosts", func(t *testing.T) {
		r, ms, starter := newTestRouter(t)
		createRoom(t, ms, "r1")
		starter.err = errors.New("no songs")
		c := r.newTestConn()
		c.roomID, c.username = "r1", "ana"
		r.handleFrame(c, frame(t, protocol.ActionStartGame, nil))
		assert.Equal(t, errStartFailed, recvError(t, c))
		assert.False(t, r.isHosted("r1"))
	})
}

func TestGameOverUnhosts(t *testing.T) {
	r, _, _ := newTestRouter(t)
	r.markHosted("r1")

	env, err := protocol.NewEnvelope(protocol.EventGameOver, nil)
	require.NoError(t, err)
	r.HandleBusMessage("r1", env)

	assert.False(t, r.isHosted("r1"))
}

func TestUnknownBusKindIgnored(t *testing.T) {
	r, ms, _ := newTestRouter(t)
	createRoom(t, ms, "r1")
	c := r.newTestConn()
	join(t, r, c, "r1", "ana")

	r.HandleBusMessage("r1", protocol.Envelope{Type: "mystery", Data: []byte(`{}`)})
	assertNoFrame(t, c)
}

func TestGuessKindNeverForwardedToClients(t *testing.T) {
	r, ms, _ := newTestRouter(t)
	createRoom(t, ms, "r1")
	c := r.newTestConn()
	join(t, r, c, "r1", "ana")

	raw, err := json.Marshal(protocol.Guess{Username: "ana", Message: "hi"})
	require.NoError(t, err)
	r.HandleBusMessage("r1", protocol.Envelope{Type: protocol.EventGuess, Data: raw})
	assertNoFrame(t, c)
}

func TestMalformedFrameDroppedSilently(t *testing.T) {
	r, _, _ := newTestRouter(t)
	c := r.newTestConn()
	r.handleFrame(c, []byte("not json at all"))
	assertNoFrame(t, c)
}

func TestUnknownActionType(t *testing.T) {
	r, _, _ := newTestRouter(t)
	c := r.newTestConn()
	r.handleFrame(c, []byte(`{"type":"danceParty","data":null}`))
	assert.Equal(t, errInvalidRequest, recvError(t, c))
}

func TestLeaveRoom(t *testing.T) {
	t.Run("not in a room", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		c := r.newTestConn()
		r.handleFrame(c, frame(t, protocol.ActionLeaveRoom, nil))
		assert.Equal(t, errNotInRoom, recvError(t, c))
	})

	t.Run("closes the connection", func(t *testing.T) {
		r, ms, _ := newTestRouter(t)
		createRoom(t, ms, "r1")
		c := r.newTestConn()
		join(t, r, c, "r1", "ana")

		r.handleFrame(c, frame(t, protocol.ActionLeaveRoom, nil))
		select {
		case <-c.done:
		default:
			t.Fatal("connection not closed")
		}
	})
}

func TestDisconnectCleansUpMembership(t *testing.T) {
	r, ms, _ := newTestRouter(t)
	createRoom(t, ms, "r1")

	stayer := r.newTestConn()
	join(t, r, stayer, "r1", "ana")
	leaver := r.newTestConn()
	join(t, r, leaver, "r1", "ben")
	recvEvent(t, stayer) // ben's newPlayer

	r.disconnect(leaver)

	ev := recvEvent(t, stayer)
	require.Equal(t, protocol.EventLeaveRoom, ev.Type)
	var name string
	require.NoError(t, json.Unmarshal(ev.Data, &name))
	assert.Equal(t, "ben", name)

	member, err := ms.IsUser(context.Background(), "r1", "ben")
	require.NoError(t, err)
	assert.False(t, member)

	// The departed connection gets no further fan-out.
	r.HandleBusMessage("r1", protocol.Envelope{Type: protocol.EventGameOver})
	recvEvent(t, stayer)
	assertNoFrame(t, leaver)
}

func TestDisconnectWithoutRoomIsNoop(t *testing.T) {
	r, _, _ := newTestRouter(t)
	c := r.newTestConn()
	r.disconnect(c)
}

func TestReadPumpDispatchesAndCleansUp(t *testing.T) {
	r, ms, _ := newTestRouter(t)
	createRoom(t, ms, "r1")

	sock := newFakeSocket()
	c := r.newConnection(sock)

	done := make(chan struct{})
	go func() {
		c.readPump(r)
		close(done)
	}()

	sock.inbound <- frame(t, protocol.ActionJoinRoom, protocol.JoinRoomRequest{
		RoomID: "r1", Username: "ana",
	})
	ev := recvEvent(t, c)
	require.Equal(t, protocol.EventJoinedRoom, ev.Type)

	close(sock.inbound)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read pump did not exit")
	}

	member, err := ms.IsUser(context.Background(), "r1", "ana")
	require.NoError(t, err)
	assert.False(t, member, "membership not cleaned up on disconnect")
}
