package ws

import "encoding/json"

// Envelope is the inbound wire frame. Clients that want an acknowledgment
// set a non-zero id; broadcasts pushed by the server carry no id.
type Envelope struct {
	ID    uint64          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack is the per-call acknowledgment sent back for an inbound envelope.
type Ack struct {
	ID    uint64 `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// push is the outbound frame for server-initiated events.
type push struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func encodeEvent(event string, data any) ([]byte, error) {
	return json.Marshal(push{Event: event, Data: data})
}
