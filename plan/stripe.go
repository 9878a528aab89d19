package plan

import (
	"context"

	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"go.uber.org/zap"
)

// EnsureStripe will ensure that every paid plan in the catalog has a
// corresponding Product and a monthly + yearly Price on Stripe, populating
// the stored IDs. Already-synchronized plans are skipped, so this is safe to
// run at every startup.
func (m *Manager) EnsureStripe(ctx context.Context) error {
	plans, err := m.List(ctx, ListOption{IncludeInactive: true})
	if err != nil {
		return extErrors.Wrap(err, "Cannot list plans for Stripe synchronization")
	}
	for k := range plans {
		p := &plans[k]
		if p.Free() {
			continue
		}
		if len(p.StripePriceIDMonthly) > 0 && len(p.StripePriceIDYearly) > 0 {
			continue
		}
		if err := m.createOnStripe(ctx, p); err != nil {
			return err
		}
		result := m.DB.WithContext(ctx).Model(p).Updates(map[string]interface{}{
			"stripe_product_id":       p.StripeProductID,
			"stripe_price_id_monthly": p.StripePriceIDMonthly,
			"stripe_price_id_yearly":  p.StripePriceIDYearly,
		})
		if result.Error != nil {
			return extErrors.Wrap(result.Error, "Cannot persist Stripe ids for plan")
		}
		m.Logger.Info("Synchronized plan to Stripe",
			zap.String("PlanID", p.ID),
			zap.String("ProductID", p.StripeProductID),
		)
	}
	return nil
}

// createOnStripe will create missing Product/Prices on Stripe for a paid plan
func (m *Manager) createOnStripe(ctx context.Context, p *Plan) error {
	if len(p.StripeProductID) == 0 {
		prodParams := &stripe.ProductParams{
			Params: stripe.Params{
				Context: ctx,
				Metadata: map[string]string{
					"plan_id": p.ID,
				},
			},
			Active:      stripe.Bool(true),
			Name:        stripe.String(p.Name),
			Description: stripe.String(p.Description),
		}
		stripeProduct, err := m.StripeClient.Products.New(prodParams)
		if err != nil {
			return extErrors.Wrap(err, "Cannot create Plan as Product on Stripe")
		}
		p.StripeProductID = stripeProduct.ID
	}

	if len(p.StripePriceIDMonthly) == 0 {
		monthly, err := m.createPrice(ctx, p, "month", p.PriceMonthly.Shift(2).IntPart())
		if err != nil {
			return extErrors.Wrap(err, "Cannot create monthly Price on Stripe")
		}
		p.StripePriceIDMonthly = monthly
	}

	if len(p.StripePriceIDYearly) == 0 {
		yearly, err := m.createPrice(ctx, p, "year", p.PriceYearly.Shift(2).IntPart())
		if err != nil {
			return extErrors.Wrap(err, "Cannot create yearly Price on Stripe")
		}
		p.StripePriceIDYearly = yearly
	}

	return nil
}

func (m *Manager) createPrice(ctx context.Context, p *Plan, interval string, amountInCents int64) (string, error) {
	pParams := &stripe.PriceParams{
		Params: stripe.Params{
			Context: ctx,
			Metadata: map[string]string{
				"plan_id":  p.ID,
				"interval": interval,
			},
		},
		Active:        stripe.Bool(true),
		Nickname:      stripe.String(p.Name + " (" + interval + "ly)"),
		BillingScheme: stripe.String("per_unit"),
		Currency:      stripe.String(p.Currency),
		UnitAmount:    stripe.Int64(amountInCents),
		Product:       stripe.String(p.StripeProductID),
		Recurring: &stripe.PriceRecurringParams{
			Interval:      stripe.String(interval),
			IntervalCount: stripe.Int64(1),
			UsageType:     stripe.String("licensed"),
		},
	}
	price, err := m.StripeClient.Prices.New(pParams)
	if err != nil {
		return "", err
	}
	return price.ID, nil
}
