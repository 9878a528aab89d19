package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type is the custom type to identify what kind of billing event a
// Transaction records
type Type string

// Status is the custom type to define the current state of a Transaction
type Status string

// Defining constants
const (
	TypeSubscription Type = "subscription"
	TypeOneTime      Type = "one_time"

	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Terminal reports if a Status admits no further transition besides a refund
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusRefunded
}

// Transaction is the local audit record of a billing event. Provider
// identifiers are stored verbatim. Rows never change once their status is
// terminal; only the status transition itself is writable.
type Transaction struct {
	ID             string `json:"id" gorm:"primaryKey"`
	CustomerID     string `json:"customerId" gorm:"index;not null"`
	SubscriptionID string `json:"subscriptionId" gorm:"index"`
	RedemptionID   string `json:"redemptionId"`

	Type   Type   `json:"type" gorm:"not null;default:subscription"`
	Status Status `json:"status" gorm:"not null;default:pending"`

	Amount   decimal.Decimal `json:"amount" gorm:"type:numeric;not null"`
	Currency string          `json:"currency" gorm:"not null;default:USD"`

	StripePaymentIntentID string `json:"-"`
	StripeChargeID        string `json:"-"`
	StripeInvoiceID       string `json:"-" gorm:"index"`

	Description string `json:"description"`
	Metadata    string `json:"metadata"` // free-form JSON blob

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
