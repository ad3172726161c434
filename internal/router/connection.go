package router

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/songclash/internal/protocol"
)

// socket is the subset of *websocket.Conn the router touches. Tests swap
// in an in-memory implementation.
type socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// ConnectionConfig holds WebSocket tuning for client connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the default WebSocket tuning.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// Connection is one client's ephemeral session: bound to at most one room,
// set once. All inbound handling for a connection runs on its read loop,
// so roomID and username need no locking.
type Connection struct {
	id       string
	roomID   string
	username string

	sock      socket
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (r *Router) newConnection(sock socket) *Connection {
	return &Connection{
		id:   uuid.New().String(),
		sock: sock,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

// HandleWS upgrades an HTTP request and runs the connection until the
// client goes away.
func (r *Router) HandleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := r.newConnection(conn)
	log.Info().Str("connection_id", c.id).Msg("websocket connection established")

	go c.writePump(r.config)
	c.readPump(r)
}

// readPump delivers inbound frames to the router. On exit the connection
// is torn down and its room membership cleaned up.
func (c *Connection) readPump(r *Router) {
	defer func() {
		c.close()
		r.disconnect(c)
	}()

	c.sock.SetReadLimit(r.config.MaxMessageSize)
	c.sock.SetReadDeadline(time.Now().Add(r.config.ReadTimeout))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(r.config.ReadTimeout))
	})

	for {
		_, raw, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		r.handleFrame(c, raw)
		c.sock.SetReadDeadline(time.Now().Add(r.config.ReadTimeout))
	}
}

// writePump drains the send buffer to the socket and keeps the connection
// alive with pings.
func (c *Connection) writePump(cfg ConnectionConfig) {
	ping := time.NewTicker(cfg.PingInterval)
	defer func() {
		ping.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("websocket write failed")
				return
			}
		case <-ping.C:
			c.sock.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.sock.Close()
	})
}

// enqueue hands a frame to the write pump without blocking. A client that
// cannot drain its buffer gets disconnected.
func (c *Connection) enqueue(frame []byte) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		log.Warn().Str("connection_id", c.id).Msg("send buffer full, closing connection")
		c.close()
	}
}

func (c *Connection) sendSuccess(kind protocol.EventKind, payload interface{}) {
	c.sendResponse(protocol.Response{
		Status: protocol.ResponseSuccess,
		Data:   protocol.EventData{Type: kind, Data: payload},
	})
}

func (c *Connection) sendError(message string) {
	c.sendResponse(protocol.Response{Status: protocol.ResponseError, Data: message})
}

func (c *Connection) sendResponse(resp protocol.Response) {
	frame, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.id).Msg("marshal response failed")
		return
	}
	c.enqueue(frame)
}
