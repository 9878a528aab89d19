package plan

import (
	"context"

	"github.com/shopspring/decimal"
)

// DefaultPlans defines the catalog created on first run. Admins can adjust
// limits and prices afterwards; the IDs stay fixed.
func DefaultPlans() []Plan {
	return []Plan{
		{
			ID:                    "free",
			Name:                  "Free Plan",
			NameAr:                "الخطة المجانية",
			Description:           "Basic features for getting started",
			DescriptionAr:         "الميزات الأساسية للبدء",
			PriceMonthly:          decimal.Zero,
			PriceYearly:           decimal.Zero,
			Currency:              "USD",
			MaxInterviewsPerMonth: 3,
			MaxCVs:                1,
			MaxBusinessCards:      1,
			Active:                true,
		},
		{
			ID:                    "basic",
			Name:                  "Basic Plan",
			NameAr:                "الخطة الأساسية",
			Description:           "Perfect for individual job seekers",
			DescriptionAr:         "مثالية للباحثين عن عمل الأفراد",
			PriceMonthly:          decimal.NewFromFloat(9.99),
			PriceYearly:           decimal.NewFromFloat(99.99),
			Currency:              "USD",
			MaxInterviewsPerMonth: 20,
			MaxCVs:                5,
			MaxBusinessCards:      3,
			AIFeedback:            true,
			Active:                true,
		},
		{
			ID:                "premium",
			Name:              "Premium Plan",
			NameAr:            "الخطة المميزة",
			Description:       "Advanced features for serious professionals",
			DescriptionAr:     "ميزات متقدمة للمهنيين الجادين",
			PriceMonthly:      decimal.NewFromFloat(19.99),
			PriceYearly:       decimal.NewFromFloat(199.99),
			Currency:          "USD",
			AIFeedback:        true,
			AdvancedAnalytics: true,
			PrioritySupport:   true,
			Active:            true,
		},
		{
			ID:                "enterprise",
			Name:              "Enterprise Plan",
			NameAr:            "خطة المؤسسات",
			Description:       "Complete solution for organizations",
			DescriptionAr:     "حل شامل للمؤسسات",
			PriceMonthly:      decimal.NewFromFloat(49.99),
			PriceYearly:       decimal.NewFromFloat(499.99),
			Currency:          "USD",
			AIFeedback:        true,
			AdvancedAnalytics: true,
			PrioritySupport:   true,
			CustomBranding:    true,
			Active:            true,
		},
	}
}

// Seed inserts any of the default plans missing from the catalog
func (m *Manager) Seed(ctx context.Context) error {
	for _, p := range DefaultPlans() {
		existing, err := m.Get(ctx, p.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		seed := p
		if err := m.Create(ctx, &seed); err != nil {
			return err
		}
	}
	return nil
}
