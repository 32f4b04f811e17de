package websocket

import "encoding/json"

const (
	actionConnect       = "connect"
	actionMatchStart    = "match:start"
	actionMatchMove     = "match:move"
	actionMatchJump     = "match:jump"
	actionMatchRestart  = "match:restart"
	actionMatchQuit     = "match:quit"
	actionHistoryToggle = "history:toggle"

	actionMatchState = "match:state"
	actionError      = "error"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type StartPayload struct {
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
}

type MovePayload struct {
	Cell *int `json:"cell"`
}

type JumpPayload struct {
	Move *int `json:"move"`
}

type ErrorPayload struct {
	Action string `json:"action,omitempty"`
	Error  string `json:"error"`
}
