package models

import (
	"fmt"
	"time"
)

// Severity represents the classification of a product's stock state.
type Severity int

const (
	// SeverityHealthy means stock is above the reorder level. No alert is emitted.
	SeverityHealthy Severity = iota
	// SeverityLow means stock is at or below the reorder level.
	SeverityLow
	// SeverityCritical means stock is projected to run out within the critical window.
	SeverityCritical
	// SeverityOutOfStock means quantity is zero. Takes precedence over all other tiers.
	SeverityOutOfStock
)

// String returns the human-readable name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityHealthy:
		return "healthy"
	case SeverityLow:
		return "low"
	case SeverityCritical:
		return "critical"
	case SeverityOutOfStock:
		return "out_of_stock"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// UnboundedDays is the DaysRemaining sentinel used when no consumption rate
// is available for a product.
const UnboundedDays = 999

// AlertEvent is an immutable snapshot of a product's stock state at
// evaluation time. It is copied into every subscriber's delivery and holds
// no live references to the product record.
type AlertEvent struct {
	Kind          Severity
	ProductID     int64
	ProductName   string
	Quantity      int
	ReorderLevel  int
	DaysRemaining int // meaningful for SeverityCritical only; UnboundedDays if no rate
}

// Wire message types, one per alert tier.
const (
	MessageLowStock      = "low_stock"
	MessageCriticalStock = "critical_stock"
	MessageOutOfStock    = "out_of_stock"
)

// AlertMessage is the JSON wire representation of an AlertEvent.
// DaysLeft is present on critical_stock messages, zero included, and absent
// on every other tier.
type AlertMessage struct {
	Type         string `json:"type"`
	ProductID    int64  `json:"productId"`
	ProductName  string `json:"productName"`
	Quantity     int    `json:"quantity"`
	ReorderLevel int    `json:"reorderLevel"`
	DaysLeft     *int   `json:"daysLeft,omitempty"`
}

// Message converts the event to its wire representation.
func (e AlertEvent) Message() AlertMessage {
	m := AlertMessage{
		ProductID:    e.ProductID,
		ProductName:  e.ProductName,
		Quantity:     e.Quantity,
		ReorderLevel: e.ReorderLevel,
	}
	switch e.Kind {
	case SeverityOutOfStock:
		m.Type = MessageOutOfStock
	case SeverityCritical:
		m.Type = MessageCriticalStock
		days := e.DaysRemaining
		m.DaysLeft = &days
	default:
		m.Type = MessageLowStock
	}
	return m
}

// Event converts a wire message back to an AlertEvent. A message with an
// unknown type or a missing product id is malformed and rejected; callers
// drop such messages rather than failing.
func (m AlertMessage) Event() (AlertEvent, error) {
	if m.ProductID == 0 {
		return AlertEvent{}, fmt.Errorf("alert message missing productId")
	}

	e := AlertEvent{
		ProductID:     m.ProductID,
		ProductName:   m.ProductName,
		Quantity:      m.Quantity,
		ReorderLevel:  m.ReorderLevel,
		DaysRemaining: UnboundedDays,
	}

	switch m.Type {
	case MessageOutOfStock:
		e.Kind = SeverityOutOfStock
	case MessageCriticalStock:
		e.Kind = SeverityCritical
		e.DaysRemaining = 0
		if m.DaysLeft != nil {
			e.DaysRemaining = *m.DaysLeft
		}
	case MessageLowStock:
		e.Kind = SeverityLow
	default:
		return AlertEvent{}, fmt.Errorf("unknown alert message type %q", m.Type)
	}

	return e, nil
}

// Notification is the client-side entry derived from an AlertEvent.
// IDs are locally unique and monotonically increasing; they are used to
// remove entries, not to correlate with the server.
type Notification struct {
	ID         int64
	Severity   Severity
	Title      string
	Message    string
	ProductID  int64
	ReceivedAt time.Time
}
