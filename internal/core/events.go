package core

import "time"

// BillEventType names a bill state change published to other processes.
type BillEventType string

const (
	BillGenerated BillEventType = "bill.generated"
	BillPaid      BillEventType = "bill.paid"
)

func (t BillEventType) Valid() bool { return t == BillGenerated || t == BillPaid }

// BillEvent is emitted after a bill write has been committed. Consumers load
// the current bill by ID rather than trusting the event payload.
type BillEvent struct {
	Type       BillEventType `json:"type"`
	BillID     string        `json:"bill_id"`
	BillNumber string        `json:"bill_number,omitempty"`
	CustomerID string        `json:"customer_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}
