package router

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/songclash/internal/protocol"
)

// Client-facing error replies. Wording matters to existing clients.
const (
	errAlreadyInRoom  = "already in a room"
	errRoomNotFound   = "room does not exist"
	errInvalidRoomID  = "invalid room id"
	errNoUsername     = "no username was provided"
	errUsernameTaken  = "username is in use"
	errNotInRoom      = "not in a room"
	errGameInProgress = "game is already in progress"
	errInvalidRequest = "invalid request"
	errStartFailed    = "failed to start game"
	errInternal       = "internal error"
)

// handleFrame dispatches one inbound client frame. Frames that are not
// JSON are dropped without a reply; the connection stays open.
func (r *Router) handleFrame(c *Connection, raw []byte) {
	var req protocol.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}

	switch req.Type {
	case protocol.ActionJoinRoom:
		r.handleJoinRoom(c, req.Data)
	case protocol.ActionSendMessage:
		r.handleSendMessage(c, req.Data)
	case protocol.ActionStartGame:
		r.handleStartGame(c)
	case protocol.ActionLeaveRoom:
		r.handleLeaveRoom(c)
	default:
		c.sendError(errInvalidRequest)
	}
}

func (r *Router) handleJoinRoom(c *Connection, data json.RawMessage) {
	if c.roomID != "" {
		c.sendError(errAlreadyInRoom)
		return
	}
	var req protocol.JoinRoomRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == "" {
		c.sendError(errInvalidRoomID)
		return
	}

	ctx := context.Background()
	exists, err := r.store.RoomExists(ctx, req.RoomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", req.RoomID).Msg("room lookup failed")
		c.sendError(errInternal)
		return
	}
	if !exists {
		c.sendError(errRoomNotFound)
		return
	}
	if req.Username == "" {
		c.sendError(errNoUsername)
		return
	}
	taken, err := r.store.IsUser(ctx, req.RoomID, req.Username)
	if err != nil {
		log.Error().Err(err).Str("room_id", req.RoomID).Msg("membership lookup failed")
		c.sendError(errInternal)
		return
	}
	if taken {
		c.sendError(errUsernameTaken)
		return
	}

	c.roomID = req.RoomID
	c.username = req.Username

	if err := r.subscribeRoom(req.RoomID); err != nil {
		log.Error().Err(err).Str("room_id", req.RoomID).Msg("bus subscribe failed")
		c.roomID, c.username = "", ""
		c.sendError(errInternal)
		return
	}
	r.publish(ctx, req.RoomID, protocol.EventNewPlayer, req.Username)
	if err := r.store.AddUser(ctx, req.RoomID, req.Username); err != nil {
		log.Error().Err(err).Str("room_id", req.RoomID).Str("username", req.Username).Msg("add user failed")
	}
	r.addConnection(req.RoomID, c)

	snapshot, err := r.roomSnapshot(ctx, req.RoomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", req.RoomID).Msg("snapshot failed")
		c.sendError(errInternal)
		return
	}
	c.sendSuccess(protocol.EventJoinedRoom, snapshot)

	log.Info().
		Str("connection_id", c.id).
		Str("room_id", req.RoomID).
		Str("username", req.Username).
		Msg("user joined room")
}

func (r *Router) handleSendMessage(c *Connection, data json.RawMessage) {
	if c.roomID == "" {
		c.sendError(errNotInRoom)
		return
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		c.sendError(errInvalidRequest)
		return
	}

	ctx := context.Background()
	status, err := r.store.Status(ctx, c.roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", c.roomID).Msg("status read failed")
		c.sendError(errInternal)
		return
	}

	// Mid-round every line is a guess candidate evaluated by the host
	// process; otherwise it is plain chat.
	if status == protocol.StatusInRound {
		r.publish(ctx, c.roomID, protocol.EventGuess, protocol.Guess{
			Username: c.username,
			Message:  text,
		})
		return
	}
	r.publish(ctx, c.roomID, protocol.EventRenderMessage, protocol.RenderMessage{
		Info:     false,
		Username: c.username,
		Text:     text,
	})
}

func (r *Router) handleStartGame(c *Connection) {
	if c.roomID == "" {
		c.sendError(errNotInRoom)
		return
	}

	ctx := context.Background()
	status, err := r.store.Status(ctx, c.roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", c.roomID).Msg("status read failed")
		c.sendError(errInternal)
		return
	}
	if status != protocol.StatusLobby {
		c.sendError(errGameInProgress)
		return
	}

	// This process hosts the room's game from here until gameOver.
	r.markHosted(c.roomID)
	if err := r.engine.StartGame(ctx, c.roomID); err != nil {
		r.unhost(c.roomID)
		log.Error().Err(err).Str("room_id", c.roomID).Msg("start game failed")
		c.sendError(errStartFailed)
	}
}

func (r *Router) handleLeaveRoom(c *Connection) {
	if c.roomID == "" {
		c.sendError(errNotInRoom)
		return
	}
	c.close()
}

// disconnect runs once per connection, when its read loop exits. Room
// config, scores and queue persist in the store regardless of how many
// connections remain; only the membership entry goes away.
func (r *Router) disconnect(c *Connection) {
	if c.roomID == "" {
		return
	}
	r.removeConnection(c.roomID, c)

	ctx := context.Background()
	r.publish(ctx, c.roomID, protocol.EventLeaveRoom, c.username)
	if err := r.store.RemoveUser(ctx, c.roomID, c.username); err != nil {
		log.Error().Err(err).Str("room_id", c.roomID).Str("username", c.username).Msg("remove user failed")
	}

	log.Info().
		Str("connection_id", c.id).
		Str("room_id", c.roomID).
		Str("username", c.username).
		Msg("connection left room")
}

func (r *Router) roomSnapshot(ctx context.Context, roomID string) (protocol.RoomSnapshot, error) {
	users, err := r.store.Users(ctx, roomID)
	if err != nil {
		return protocol.RoomSnapshot{}, err
	}
	status, err := r.store.Status(ctx, roomID)
	if err != nil {
		return protocol.RoomSnapshot{}, err
	}
	totals, err := r.store.TotalScores(ctx, roomID)
	if err != nil {
		return protocol.RoomSnapshot{}, err
	}
	roundScores, err := r.store.RoundScores(ctx, roomID)
	if err != nil {
		return protocol.RoomSnapshot{}, err
	}
	cfg, err := r.store.Config(ctx, roomID)
	if err != nil {
		return protocol.RoomSnapshot{}, err
	}
	return protocol.RoomSnapshot{
		ConnectedUsers: users,
		GameStatus:     status,
		TotalScores:    totals,
		RoundScores:    roundScores,
		PlaylistID:     cfg.PlaylistID,
	}, nil
}
