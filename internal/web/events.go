package web

import (
	"encoding/json"

	"github.com/blockedby/relaybot/internal/transfer"
)

// WSEvent represents a structured WebSocket message
type WSEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// NewWSEvent wraps a transfer event for dashboard clients.
func NewWSEvent(ev transfer.Event) WSEvent {
	return WSEvent{Type: ev.Type, Payload: ev}
}

// DecodeEvent parses a transfer event as published on the message bus.
func DecodeEvent(data []byte) (WSEvent, error) {
	var ev transfer.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return WSEvent{}, err
	}
	return NewWSEvent(ev), nil
}
