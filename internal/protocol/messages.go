package protocol

import "encoding/json"

// Inbound client action names.
const (
	ActionJoinRoom    = "joinRoom"
	ActionSendMessage = "sendMessage"
	ActionStartGame   = "startGame"
	ActionLeaveRoom   = "leaveRoom"
)

// Request is one inbound client frame.
type Request struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinRoomRequest is the data of a joinRoom request.
type JoinRoomRequest struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// ResponseStatus marks an outbound frame as a success event or an error
// reply.
type ResponseStatus string

const (
	ResponseSuccess ResponseStatus = "success"
	ResponseError   ResponseStatus = "error"
)

// Response wraps every outbound frame. Data is an EventData on success and
// a plain message string on error.
type Response struct {
	Status ResponseStatus `json:"status"`
	Data   interface{}    `json:"data"`
}

// EventData is the success payload: a typed event for the client to render.
type EventData struct {
	Type EventKind   `json:"type"`
	Data interface{} `json:"data"`
}
