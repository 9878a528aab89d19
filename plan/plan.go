package plan

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan describes a subscription tier and its entitlements. The string key ID
// (e.g. "basic") is chosen at creation time and is immutable afterwards.
type Plan struct {
	ID            string          `json:"id" gorm:"primaryKey"`
	Name          string          `json:"name" gorm:"not null"`
	NameAr        string          `json:"nameAr" gorm:"not null"`
	Description   string          `json:"description"`
	DescriptionAr string          `json:"descriptionAr"`
	PriceMonthly  decimal.Decimal `json:"priceMonthly" gorm:"type:numeric;not null"`
	PriceYearly   decimal.Decimal `json:"priceYearly" gorm:"type:numeric;not null"`
	Currency      string          `json:"currency" gorm:"not null;default:USD"`

	// Countable limits per period. 0 is the sentinel for unlimited, never a
	// real limit.
	MaxInterviewsPerMonth int `json:"maxInterviewsPerMonth" gorm:"not null;default:0"`
	MaxCVs                int `json:"maxCvs" gorm:"column:max_cvs;not null;default:0"`
	MaxBusinessCards      int `json:"maxBusinessCards" gorm:"not null;default:0"`

	// Boolean feature access
	AIFeedback        bool `json:"aiFeedback" gorm:"not null;default:false"`
	AdvancedAnalytics bool `json:"advancedAnalytics" gorm:"not null;default:false"`
	PrioritySupport   bool `json:"prioritySupport" gorm:"not null;default:false"`
	CustomBranding    bool `json:"customBranding" gorm:"not null;default:false"`

	// Corresponds to Stripe's Price IDs, populated by EnsureStripe
	StripePriceIDMonthly string `json:"-"`
	StripePriceIDYearly  string `json:"-"`
	StripeProductID      string `json:"-"`

	Active    bool      `json:"active" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Free reports if this Plan requires no payment at all
func (p *Plan) Free() bool {
	return p.PriceMonthly.IsZero() && p.PriceYearly.IsZero()
}
