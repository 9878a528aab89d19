package subscription

import (
	"testing"
	"time"

	"github.com/zllovesuki/prepme/plan"

	"github.com/stretchr/testify/require"
)

func basicPlan() *plan.Plan {
	return &plan.Plan{
		ID:                    "basic",
		MaxInterviewsPerMonth: 20,
		MaxCVs:                5,
		MaxBusinessCards:      3,
		AIFeedback:            true,
		Active:                true,
	}
}

func activeSub() *Subscription {
	now := time.Now()
	return &Subscription{
		ID:             "sub_1",
		CustomerID:     "cust_1",
		PlanID:         "basic",
		Status:         StatusActive,
		BillingCycle:   CycleMonthly,
		StartDate:      now,
		UsageResetDate: StartOfMonth(now),
	}
}

func TestStartOfMonth(t *testing.T) {
	at := time.Date(2024, time.March, 17, 15, 4, 5, 0, time.UTC)
	require.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), StartOfMonth(at))
}

func TestIsActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name     string
		sub      *Subscription
		expected bool
	}{
		{
			name:     "nil subscription",
			sub:      nil,
			expected: false,
		},
		{
			name:     "active without end date",
			sub:      &Subscription{Status: StatusActive},
			expected: true,
		},
		{
			name:     "pending",
			sub:      &Subscription{Status: StatusPending},
			expected: false,
		},
		{
			name:     "suspended",
			sub:      &Subscription{Status: StatusSuspended},
			expected: false,
		},
		{
			name:     "expired",
			sub:      &Subscription{Status: StatusExpired, EndDate: &future},
			expected: false,
		},
		{
			name:     "cancelled at period end keeps access",
			sub:      &Subscription{Status: StatusCancelled, EndDate: &future},
			expected: true,
		},
		{
			name:     "cancelled past the boundary",
			sub:      &Subscription{Status: StatusCancelled, EndDate: &past},
			expected: false,
		},
		{
			name:     "cancelled without end date grants nothing",
			sub:      &Subscription{Status: StatusCancelled},
			expected: false,
		},
		{
			name:     "active past its end date",
			sub:      &Subscription{Status: StatusActive, EndDate: &past},
			expected: false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.expected, c.sub.IsActive(now))
		})
	}
}

func TestCanUseCountable(t *testing.T) {
	now := time.Now()
	p := basicPlan()

	sub := activeSub()
	require.True(t, CanUse(sub, p, FeatureCV, now))

	sub.CVsCreated = 4
	require.True(t, CanUse(sub, p, FeatureCV, now))

	sub.CVsCreated = 5
	require.False(t, CanUse(sub, p, FeatureCV, now))

	// the other counters are unaffected
	require.True(t, CanUse(sub, p, FeatureInterview, now))
}

func TestCanUseUnlimited(t *testing.T) {
	now := time.Now()
	p := basicPlan()
	p.MaxCVs = 0 // unlimited

	sub := activeSub()
	sub.CVsCreated = 100000
	require.True(t, CanUse(sub, p, FeatureCV, now))
}

func TestCanUseBooleanFeatures(t *testing.T) {
	now := time.Now()
	p := basicPlan()
	sub := activeSub()

	require.True(t, CanUse(sub, p, FeatureAIFeedback, now))
	require.False(t, CanUse(sub, p, FeatureAdvancedAnalytics, now))
	require.False(t, CanUse(sub, p, FeaturePrioritySupport, now))
	require.False(t, CanUse(sub, p, FeatureCustomBranding, now))
}

func TestCanUseDeniesUnknownFeature(t *testing.T) {
	now := time.Now()
	require.False(t, CanUse(activeSub(), basicPlan(), Feature("teleportation"), now))
}

func TestCanUseInactiveSubscription(t *testing.T) {
	now := time.Now()
	p := basicPlan()

	sub := activeSub()
	sub.Status = StatusSuspended
	require.False(t, CanUse(sub, p, FeatureCV, now))
	require.False(t, CanUse(sub, p, FeatureAIFeedback, now))

	require.False(t, CanUse(nil, p, FeatureCV, now))
	require.False(t, CanUse(activeSub(), nil, FeatureCV, now))
}

func TestCanUseSeesPendingRollover(t *testing.T) {
	now := time.Now()
	p := basicPlan()

	sub := activeSub()
	sub.CVsCreated = 5
	sub.UsageResetDate = StartOfMonth(now).AddDate(0, -1, 0)

	// the stale counter does not block a new period, even before the
	// reset is persisted
	require.True(t, NeedsRollover(sub, now))
	require.True(t, CanUse(sub, p, FeatureCV, now))
}

func TestParseFeature(t *testing.T) {
	f, ok := ParseFeature("cv")
	require.True(t, ok)
	require.Equal(t, FeatureCV, f)
	require.True(t, f.Countable())

	f, ok = ParseFeature("ai_feedback")
	require.True(t, ok)
	require.False(t, f.Countable())

	_, ok = ParseFeature("nonsense")
	require.False(t, ok)
}
