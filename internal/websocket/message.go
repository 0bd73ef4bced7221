package websocket

import "encoding/json"

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// NewMessage encodes a message for the wire.
func NewMessage(action string, payload interface{}) ([]byte, error) {
	return json.Marshal(Message{Action: action, Payload: payload})
}

// NewErrorMessage encodes an error notice for a single client.
func NewErrorMessage(text string) []byte {
	msg, _ := NewMessage("error", map[string]string{"message": text})
	return msg
}
