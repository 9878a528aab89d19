package subscription

import (
	"time"

	"github.com/zllovesuki/prepme/plan"
)

// StartOfMonth truncates the given time to the first instant of its calendar
// month, in UTC. This is the period boundary for usage counters.
func StartOfMonth(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NeedsRollover reports if the subscription's counting period predates the
// current calendar month. The caller is responsible for persisting the reset
// via ApplyPeriodRollover before trusting the raw counters.
func NeedsRollover(s *Subscription, now time.Time) bool {
	return s.UsageResetDate.Before(StartOfMonth(now))
}

// effectiveUsage returns the counter value as of now: a subscription whose
// period has rolled over but hasn't been reset yet counts as zero.
func effectiveUsage(s *Subscription, f Feature, now time.Time) int {
	if NeedsRollover(s, now) {
		return 0
	}
	return s.UsedFor(f)
}

// CanUse is the entitlement verdict: may this subscription use the feature
// right now. It is a pure function over the subscription row and its plan.
//
// An inactive (or nil) subscription can use nothing. Countable features
// compare effective usage against the plan limit, where limit 0 means
// unlimited. Boolean features return the plan flag. Unknown features are
// denied.
func CanUse(s *Subscription, p *plan.Plan, f Feature, now time.Time) bool {
	if s == nil || p == nil {
		return false
	}
	if !s.IsActive(now) {
		return false
	}
	switch f {
	case FeatureInterview, FeatureCV, FeatureBusinessCard:
		limit := LimitFor(p, f)
		if limit == 0 {
			return true
		}
		return effectiveUsage(s, f, now) < limit
	case FeatureAIFeedback:
		return p.AIFeedback
	case FeatureAdvancedAnalytics:
		return p.AdvancedAnalytics
	case FeaturePrioritySupport:
		return p.PrioritySupport
	case FeatureCustomBranding:
		return p.CustomBranding
	default:
		return false
	}
}
