package subscription

import (
	"time"

	"github.com/zllovesuki/prepme/plan"
)

// Subscription binds one customer to one plan at a time. Once a subscription
// takes effect its row is never deleted; cancelled and expired subscriptions
// stay around for history and billing records. Only a pending reservation
// whose gateway call failed gets removed.
type Subscription struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	CustomerID string    `json:"customerId" gorm:"index;not null"`
	PlanID     string    `json:"planId" gorm:"index;not null"`
	Plan       plan.Plan `json:"plan"`

	Status       Status       `json:"status" gorm:"not null;default:pending"`
	BillingCycle BillingCycle `json:"billingCycle" gorm:"not null;default:monthly"`

	StartDate       time.Time  `json:"startDate"`
	EndDate         *time.Time `json:"endDate"`
	NextBillingDate *time.Time `json:"nextBillingDate"`
	CancelledAt     *time.Time `json:"cancelledAt"`

	// Corresponds to Stripe's Subscription and Customer IDs, stored verbatim
	StripeSubscriptionID string `json:"-" gorm:"index"`
	StripeCustomerID     string `json:"-"`

	// Per-period usage counters, reset at calendar month rollover. CVsCreated
	// carries an explicit column name; the default naming breaks it into
	// c_vs_created, which the conditional usage updates reference raw.
	InterviewsUsedThisMonth int       `json:"interviewsUsedThisMonth" gorm:"not null;default:0"`
	CVsCreated              int       `json:"cvsCreated" gorm:"column:cvs_created;not null;default:0"`
	BusinessCardsCreated    int       `json:"businessCardsCreated" gorm:"not null;default:0"`
	UsageResetDate          time.Time `json:"usageResetDate"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsActive reports if the subscription grants access at the given time.
// Cancelled-at-period-end subscriptions stay active until EndDate passes.
func (s *Subscription) IsActive(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != StatusActive && s.Status != StatusCancelled {
		return false
	}
	if s.Status == StatusCancelled && s.EndDate == nil {
		// immediate cancellation always sets EndDate; a cancelled row
		// without one grants nothing
		return false
	}
	return s.EndDate == nil || s.EndDate.After(now)
}

// UsedFor returns the current counter for a countable Feature
func (s *Subscription) UsedFor(f Feature) int {
	switch f {
	case FeatureInterview:
		return s.InterviewsUsedThisMonth
	case FeatureCV:
		return s.CVsCreated
	case FeatureBusinessCard:
		return s.BusinessCardsCreated
	default:
		return 0
	}
}

// LimitFor returns the plan limit for a countable Feature. 0 means unlimited.
func LimitFor(p *plan.Plan, f Feature) int {
	switch f {
	case FeatureInterview:
		return p.MaxInterviewsPerMonth
	case FeatureCV:
		return p.MaxCVs
	case FeatureBusinessCard:
		return p.MaxBusinessCards
	default:
		return 0
	}
}
