package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies which billing event the payment gateway reported
type EventType string

// Defining constants
const (
	EventPaymentSucceeded    EventType = "payment_succeeded"
	EventPaymentFailed       EventType = "payment_failed"
	EventSubscriptionDeleted EventType = "subscription_deleted"
)

// Event is the narrow view of a payment-gateway callback that the rest of
// the system consumes: amount, currency, status and opaque identifiers.
type Event struct {
	Type                 EventType       `json:"type"`
	StripeSubscriptionID string          `json:"stripeSubscriptionId"`
	StripeInvoiceID      string          `json:"stripeInvoiceId,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	OccurredAt           time.Time       `json:"occurredAt"`
}

// Producer defines the interface for publishing billing events via message broker
type Producer interface {
	PublishBillingEvent(ctx context.Context, event Event) error
	Close()
}

// Consumer defines the interface for receiving billing events via message broker
type Consumer interface {
	ReceiveBillingEvents(ctx context.Context) (<-chan Event, error)
	Close()
}
