package amqp

import (
	"encoding/json"
	"errors"
	"fmt"

	"dairyflow/internal/core"
)

const messageVersion = 1

// ErrMalformed marks a delivery that can never be processed.
var ErrMalformed = errors.New("malformed bill event")

// BillEventMessage is the wire form of a bill event. It carries only
// identifiers; the worker loads the bill from the Record Store.
type BillEventMessage struct {
	Version int `json:"version"`
	core.BillEvent
}

func NewBillEventMessage(e core.BillEvent) *BillEventMessage {
	return &BillEventMessage{Version: messageVersion, BillEvent: e}
}

// ToJSON converts the message to JSON bytes
func (m *BillEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BillEventMessageFromJSON decodes and checks a message. Any failure wraps
// ErrMalformed.
func BillEventMessageFromJSON(data []byte) (*BillEventMessage, error) {
	var msg BillEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, msg.Type)
	}
	if msg.BillID == "" {
		return nil, fmt.Errorf("%w: missing bill_id", ErrMalformed)
	}
	return &msg, nil
}
