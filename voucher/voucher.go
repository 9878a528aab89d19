package voucher

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType is the custom type to identify how DiscountValue applies
type DiscountType string

// Defining constants
const (
	TypePercentage  DiscountType = "percentage"
	TypeFixedAmount DiscountType = "fixed_amount"
)

// PlanList is a JSON-encoded list of plan IDs stored in a single column.
// An empty list means the voucher applies to every plan.
type PlanList []string

// Value implements driver.Valuer
func (l PlanList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *PlanList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		if len(v) == 0 {
			*l = nil
			return nil
		}
		return json.Unmarshal([]byte(v), l)
	case []byte:
		if len(v) == 0 {
			*l = nil
			return nil
		}
		return json.Unmarshal(v, l)
	default:
		return fmt.Errorf("unsupported PlanList source type %T", src)
	}
}

// Contains reports if the given plan is in the allow-list
func (l PlanList) Contains(planID string) bool {
	for _, id := range l {
		if id == planID {
			return true
		}
	}
	return false
}

// Voucher describes a discount code. The code is matched case-sensitively.
type Voucher struct {
	ID          string `json:"id" gorm:"primaryKey"`
	Code        string `json:"code" gorm:"uniqueIndex;not null"`
	Description string `json:"description"`

	DiscountType  DiscountType    `json:"discountType" gorm:"not null"`
	DiscountValue decimal.Decimal `json:"discountValue" gorm:"type:numeric;not null"`
	Currency      string          `json:"currency" gorm:"not null;default:USD"`

	MaxUses          int  `json:"maxUses" gorm:"not null;default:1"`
	UsedCount        int  `json:"usedCount" gorm:"not null;default:0"`
	SingleUsePerUser bool `json:"singleUsePerUser" gorm:"not null"`

	ValidFrom  time.Time `json:"validFrom"`
	ValidUntil time.Time `json:"validUntil" gorm:"not null"`

	// Empty means the voucher applies to all plans
	ApplicablePlans PlanList `json:"applicablePlans" gorm:"type:text"`

	Active    bool      `json:"active" gorm:"not null"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Redemption records one use of one voucher by one customer. Rows are
// immutable once written.
type Redemption struct {
	ID             string `json:"id" gorm:"primaryKey"`
	VoucherID      string `json:"voucherId" gorm:"index;not null"`
	CustomerID     string `json:"customerId" gorm:"index;not null"`
	SubscriptionID string `json:"subscriptionId"`

	OriginalAmount decimal.Decimal `json:"originalAmount" gorm:"type:numeric;not null"`
	DiscountAmount decimal.Decimal `json:"discountAmount" gorm:"type:numeric;not null"`
	FinalAmount    decimal.Decimal `json:"finalAmount" gorm:"type:numeric;not null"`
	Currency       string          `json:"currency" gorm:"not null;default:USD"`

	StripePaymentIntentID string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
}
