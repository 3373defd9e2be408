// Package events publishes payment lifecycle events for downstream
// consumers (accounting, CRM sync).
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeCheckoutSessionCreated = "checkout.session_created"
	TypeDepositPaid            = "payment.deposit_paid"
	TypePaymentFailed          = "payment.failed"
)

type Event struct {
	EventID   string         `json:"event_id"`
	Type      string         `json:"type"`
	OrderID   string         `json:"order_id"`
	UserID    string         `json:"user_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func New(eventType, orderID, userID string, payload map[string]any) Event {
	return Event{
		EventID:   uuid.NewString(),
		Type:      eventType,
		OrderID:   orderID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() error { return nil }
