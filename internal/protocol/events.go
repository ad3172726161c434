package protocol

import "encoding/json"

// EventKind identifies a message on a room's bus channel and in outbound
// client frames.
type EventKind string

const (
	EventJoinedRoom    EventKind = "joinedRoom"
	EventLeaveRoom     EventKind = "leaveRoom"
	EventNewPlayer     EventKind = "newPlayer"
	EventRenderMessage EventKind = "renderMessage"
	EventRoundStart    EventKind = "roundStart"
	EventRoundOver     EventKind = "roundOver"
	EventGameOver      EventKind = "gameOver"
	EventScoreInfo     EventKind = "scoreInfo"

	// EventGuess carries a chat line sent while a round is running. The
	// room's hosting process scores it and republishes the result; it is
	// never forwarded to clients as-is.
	EventGuess EventKind = "sendMessage"
)

// Envelope is the wire format for all bus traffic. Data stays raw so
// non-host processes can fan events out without decoding payloads.
type Envelope struct {
	Type EventKind       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an Envelope of the given kind.
func NewEnvelope(kind EventKind, payload interface{}) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: kind}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: kind, Data: data}, nil
}

// GameStatus is a room's lifecycle phase. Stored numerically in the room
// hash.
type GameStatus int

const (
	StatusLobby GameStatus = iota
	StatusInRound
	StatusInReplay
)
