package protocol

// Song is one catalog entry. JSON field names follow the catalog's column
// names; roundStart sends only the preview URL, roundOver sends the whole
// song.
type Song struct {
	Name       string `json:"name"`
	Artists    string `json:"artists"`
	ImageURL   string `json:"image_url"`
	PreviewURL string `json:"preview_url"`
}

// Guess is the payload of an EventGuess envelope.
type Guess struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// RenderMessage tells clients to draw one chat line. Info marks
// system-generated lines such as correct-guess announcements.
type RenderMessage struct {
	Info     bool   `json:"info"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text"`
}

// ScoreInfo announces a scored guess.
type ScoreInfo struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// RoomSnapshot is sent to a client right after it joins a room.
type RoomSnapshot struct {
	ConnectedUsers []string       `json:"connectedUsers"`
	GameStatus     GameStatus     `json:"gameStatus"`
	TotalScores    map[string]int `json:"totalScores"`
	RoundScores    map[string]int `json:"roundScores"`
	PlaylistID     string         `json:"playlistId"`
}
