package subscription

// Status is the custom type to define the current state of a subscription
type Status string

// Defining different Status for a Subscription
const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusSuspended Status = "suspended"
)

// BillingCycle is the custom type to define how often a subscription renews
type BillingCycle string

// Defining constants
const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Valid reports if the BillingCycle is one of the known cycles
func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleYearly
}

// Feature is the closed enumeration of capabilities a plan can grant.
// Anything outside this set is denied outright.
type Feature string

// Defining constants
const (
	FeatureInterview         Feature = "interview"
	FeatureCV                Feature = "cv"
	FeatureBusinessCard      Feature = "business_card"
	FeatureAIFeedback        Feature = "ai_feedback"
	FeatureAdvancedAnalytics Feature = "advanced_analytics"
	FeaturePrioritySupport   Feature = "priority_support"
	FeatureCustomBranding    Feature = "custom_branding"
)

// Countable reports if the Feature is limited by a per-period counter rather
// than a boolean plan flag
func (f Feature) Countable() bool {
	switch f {
	case FeatureInterview, FeatureCV, FeatureBusinessCard:
		return true
	default:
		return false
	}
}

// ParseFeature maps a request string onto the closed Feature set
func ParseFeature(s string) (Feature, bool) {
	switch Feature(s) {
	case FeatureInterview, FeatureCV, FeatureBusinessCard,
		FeatureAIFeedback, FeatureAdvancedAnalytics,
		FeaturePrioritySupport, FeatureCustomBranding:
		return Feature(s), true
	default:
		return "", false
	}
}
