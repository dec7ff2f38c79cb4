// Package streaming defines the websocket protocol between the service and
// live map clients.
package streaming

import (
	"encoding/json"
	"fmt"
)

// Message type constants matching the streaming protocol.
const (
	TypeSnapshot     = "snapshot"
	TypeNotification = "notification"
	TypeCommand      = "command"
	TypeResult       = "result"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// CommandPayload is a client command. ID is echoed back in the result.
type CommandPayload struct {
	ID      string   `json:"id,omitempty"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// ResultPayload answers a CommandPayload.
type ResultPayload struct {
	ID      string `json:"id,omitempty"`
	Command string `json:"command"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MarshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func MarshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
