package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"finboard/internal/core"
)

// LedgerEventMessage is the wire envelope for a committed ledger event.
type LedgerEventMessage struct {
	Event     core.LedgerEvent `json:"event"`
	Timestamp time.Time        `json:"timestamp"`
}

func NewLedgerEventMessage(ev core.LedgerEvent) *LedgerEventMessage {
	return &LedgerEventMessage{
		Event:     ev,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes a message and rejects events without
// an id or type.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Event.ID == "" || msg.Event.Type == "" {
		return nil, errors.New("ledger event missing id or type")
	}
	return &msg, nil
}
