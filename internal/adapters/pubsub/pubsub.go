// Package pubsub fans outbound room messages out to subscribers.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrClosed is returned when publishing to a closed publisher.
var ErrClosed = errors.New("publisher closed")

// Message is one encoded outbound message addressed to a room.
// An empty Recipient means every subscriber of the room receives it.
type Message struct {
	RoomID    string          `json:"room_id"`
	Kind      string          `json:"kind"`
	Recipient string          `json:"recipient,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// For reports whether the message should be delivered to playerID.
func (m Message) For(playerID string) bool {
	return m.Recipient == "" || m.Recipient == playerID
}

// Publisher delivers room messages.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}
