package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zllovesuki/prepme/customer"
	"github.com/zllovesuki/prepme/plan"
	"github.com/zllovesuki/prepme/transaction"
	"github.com/zllovesuki/prepme/voucher"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Distinct outcomes callers branch on. Entitlement denial and lifecycle
// violations are expected results, not system faults.
var (
	ErrPlanNotFound       = errors.New("plan not found")
	ErrPlanUnavailable    = errors.New("plan is not available for purchase")
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrAlreadySubscribed  = errors.New("an active subscription already exists")
	ErrNoSubscription     = errors.New("no active subscription found")
	ErrEntitlementDenied  = errors.New("feature usage limit reached or not available in current plan")
	ErrNotCountable       = errors.New("feature does not have a usage counter")
	ErrConflict           = errors.New("concurrent usage update conflict")
	ErrPriceNotConfigured = errors.New("billing price not configured for this plan")
)

// ManagerOptions contains the dependencies for the subscription Manager
type ManagerOptions struct {
	DB              *gorm.DB
	StripeClient    *client.API
	Logger          *zap.Logger
	PlanManager     *plan.Manager
	VoucherManager  *voucher.Manager
	CustomerManager *customer.Manager
}

// Manager handles the subscription lifecycle, the entitlement checks and the
// usage accounting
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for subscriptions
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.StripeClient == nil {
		return nil, fmt.Errorf("nil StripeClient is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.PlanManager == nil {
		return nil, fmt.Errorf("nil PlanManager is invalid")
	}
	if option.VoucherManager == nil {
		return nil, fmt.Errorf("nil VoucherManager is invalid")
	}
	if option.CustomerManager == nil {
		return nil, fmt.Errorf("nil CustomerManager is invalid")
	}
	if err := option.DB.AutoMigrate(&Subscription{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize subscription.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

func (m *Manager) getCurrent(db *gorm.DB, customerID string) (*Subscription, error) {
	var sub Subscription
	result := db.
		Preload("Plan").
		Where("customer_id = ?", customerID).
		Where("status <> ?", StatusExpired).
		Order("created_at desc").
		First(&sub)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return &sub, nil
}

// GetCurrent returns the customer's newest non-expired subscription, or
// (nil, nil) if they never subscribed. Callers decide access via IsActive.
func (m *Manager) GetCurrent(ctx context.Context, customerID string) (*Subscription, error) {
	return m.getCurrent(m.DB.WithContext(ctx), customerID)
}

// applyPeriodRollover resets the usage counters if the counting period
// predates the current calendar month. The reset is a conditional update on
// the previously-read reset date so two concurrent requests reset at most
// once; the loser reloads the row.
func (m *Manager) applyPeriodRollover(tx *gorm.DB, sub *Subscription, now time.Time) error {
	if !NeedsRollover(sub, now) {
		return nil
	}
	boundary := StartOfMonth(now)
	res := tx.Model(&Subscription{}).
		Where("id = ?", sub.ID).
		Where("usage_reset_date = ?", sub.UsageResetDate).
		Updates(map[string]interface{}{
			"interviews_used_this_month": 0,
			"cvs_created":                0,
			"business_cards_created":     0,
			"usage_reset_date":           boundary,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// someone else rolled the period over first
		return tx.First(sub, "id = ?", sub.ID).Error
	}
	sub.InterviewsUsedThisMonth = 0
	sub.CVsCreated = 0
	sub.BusinessCardsCreated = 0
	sub.UsageResetDate = boundary
	return nil
}

// ApplyPeriodRollover persists the monthly counter reset for a subscription
// if it is due. It is invoked before any usage read or write.
func (m *Manager) ApplyPeriodRollover(ctx context.Context, sub *Subscription) error {
	return m.applyPeriodRollover(m.DB.WithContext(ctx), sub, time.Now())
}

// CheckFeature evaluates the entitlement verdict for the customer's current
// subscription, persisting a due period rollover first. A missing
// subscription is a plain denial, not an error.
func (m *Manager) CheckFeature(ctx context.Context, customerID string, f Feature) (bool, *Subscription, error) {
	sub, err := m.GetCurrent(ctx, customerID)
	if err != nil {
		return false, nil, err
	}
	if sub == nil {
		return false, nil, nil
	}
	now := time.Now()
	if err := m.ApplyPeriodRollover(ctx, sub); err != nil {
		return false, nil, err
	}
	return CanUse(sub, &sub.Plan, f, now), sub, nil
}

func featureColumn(f Feature) string {
	switch f {
	case FeatureInterview:
		return "interviews_used_this_month"
	case FeatureCV:
		return "cvs_created"
	case FeatureBusinessCard:
		return "business_cards_created"
	default:
		return ""
	}
}

func setUsage(sub *Subscription, f Feature, count int) {
	switch f {
	case FeatureInterview:
		sub.InterviewsUsedThisMonth = count
	case FeatureCV:
		sub.CVsCreated = count
	case FeatureBusinessCard:
		sub.BusinessCardsCreated = count
	}
}

// IncrementUsage consumes one unit of a countable feature. The entitlement
// check and the increment happen in one transaction, and the increment is
// conditional on the counter value read in that transaction, so two
// concurrent requests can never both pass the limit check and overshoot. A
// lost conditional update is retried once with a fresh read before ErrConflict
// surfaces.
func (m *Manager) IncrementUsage(ctx context.Context, customerID string, f Feature) (*Subscription, error) {
	if !f.Countable() {
		return nil, ErrNotCountable
	}
	var out *Subscription
	for attempt := 0; attempt < 2; attempt++ {
		err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			sub, err := m.getCurrent(tx, customerID)
			if err != nil {
				return err
			}
			if sub == nil {
				return ErrNoSubscription
			}
			now := time.Now()
			if err := m.applyPeriodRollover(tx, sub, now); err != nil {
				return err
			}
			if !CanUse(sub, &sub.Plan, f, now) {
				return ErrEntitlementDenied
			}
			prev := sub.UsedFor(f)
			col := featureColumn(f)
			res := tx.Model(&Subscription{}).
				Where("id = ?", sub.ID).
				Where(col+" = ?", prev).
				UpdateColumn(col, prev+1)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrConflict
			}
			setUsage(sub, f, prev+1)
			out = sub
			return nil
		})
		if errors.Is(err, ErrConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, ErrConflict
}

func nextBilling(now time.Time, cycle BillingCycle) time.Time {
	if cycle == CycleYearly {
		return now.AddDate(1, 0, 0)
	}
	return now.AddDate(0, 1, 0)
}

// SubscribeOption describes a purchase request
type SubscribeOption struct {
	CustomerID  string
	PlanID      string
	Cycle       BillingCycle
	VoucherCode string
}

// SubscribeResult carries the new subscription plus what the frontend needs
// to confirm the payment
type SubscribeResult struct {
	Subscription    *Subscription       `json:"subscription"`
	ClientSecret    string              `json:"clientSecret,omitempty"`
	PaymentIntentID string              `json:"paymentIntentId,omitempty"`
	Redemption      *voucher.Redemption `json:"redemption,omitempty"`
}

// Subscribe binds the customer to a plan. Free plans activate immediately
// and replace any existing active subscription; paid plans are created
// pending on Stripe and activate on the first successful payment event.
func (m *Manager) Subscribe(ctx context.Context, opt SubscribeOption) (*SubscribeResult, error) {
	if !opt.Cycle.Valid() {
		return nil, fmt.Errorf("invalid billing cycle: %s", opt.Cycle)
	}
	p, err := m.PlanManager.Get(ctx, opt.PlanID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPlanNotFound
	}
	if !p.Active {
		return nil, ErrPlanUnavailable
	}

	now := time.Now()
	existing, err := m.GetCurrent(ctx, opt.CustomerID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsActive(now) && !p.Free() {
		return nil, ErrAlreadySubscribed
	}

	if p.Free() {
		return m.createFreeSubscription(ctx, opt.CustomerID, p, now)
	}

	cust, err := m.CustomerManager.EnsureStripeCustomer(ctx, opt.CustomerID)
	if err != nil {
		return nil, err
	}
	if cust == nil {
		return nil, ErrCustomerNotFound
	}

	priceID := p.StripePriceIDMonthly
	originalAmount := p.PriceMonthly
	if opt.Cycle == CycleYearly {
		priceID = p.StripePriceIDYearly
		originalAmount = p.PriceYearly
	}
	if len(priceID) == 0 {
		return nil, ErrPriceNotConfigured
	}

	var vch *voucher.Voucher
	if len(opt.VoucherCode) > 0 {
		vch, err = m.VoucherManager.Validate(ctx, voucher.ValidateOption{
			Code:       opt.VoucherCode,
			CustomerID: opt.CustomerID,
			PlanID:     opt.PlanID,
		})
		if err != nil {
			return nil, err
		}
	}

	// Reserve locally before touching the gateway. The pending row and the
	// voucher redemption commit or roll back together, so a failed redemption
	// can never leave a durable subscription behind, and no coupon is minted
	// until the redemption is secured.
	next := nextBilling(now, opt.Cycle)
	sub := &Subscription{
		ID:               shortuuid.New(),
		CustomerID:       opt.CustomerID,
		PlanID:           p.ID,
		Plan:             *p,
		Status:           StatusPending,
		BillingCycle:     opt.Cycle,
		StartDate:        now,
		NextBillingDate:  &next,
		StripeCustomerID: cust.StripeCustomerID,
		UsageResetDate:   StartOfMonth(now),
	}
	var redemption *voucher.Redemption
	err = m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Plan").Create(sub).Error; err != nil {
			m.Logger.Error("Unable to create new subscription in database",
				zap.Error(err),
			)
			return extErrors.Wrap(err, "Cannot create subscription")
		}
		if vch == nil {
			return nil
		}
		var rErr error
		redemption, rErr = m.VoucherManager.RedeemWithTx(tx, voucher.RedeemOption{
			Code:           vch.Code,
			CustomerID:     opt.CustomerID,
			SubscriptionID: sub.ID,
			OriginalAmount: originalAmount,
		})
		return rErr
	})
	if err != nil {
		return nil, err
	}

	var couponID string
	if vch != nil {
		couponID, err = m.VoucherManager.CreateStripeCoupon(ctx, vch, cust.StripeCustomerID)
		if err != nil {
			m.releaseReservation(ctx, sub, redemption)
			return nil, err
		}
	}

	sParams := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context: ctx,
			Metadata: map[string]string{
				"customer_id": opt.CustomerID,
				"plan_id":     opt.PlanID,
				"cycle":       string(opt.Cycle),
			},
		},
		Customer: stripe.String(cust.StripeCustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price: stripe.String(priceID),
			},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	sParams.AddExpand("latest_invoice.payment_intent")
	if len(couponID) > 0 {
		sParams.Coupon = stripe.String(couponID)
	}

	stripeSub, err := m.StripeClient.Subscriptions.New(sParams)
	if err != nil {
		m.releaseReservation(ctx, sub, redemption)
		return nil, extErrors.Wrap(err, "Unable to create subscription on Stripe")
	}

	out := &SubscribeResult{
		Subscription: sub,
		Redemption:   redemption,
	}
	if stripeSub.LatestInvoice != nil && stripeSub.LatestInvoice.PaymentIntent != nil {
		out.ClientSecret = stripeSub.LatestInvoice.PaymentIntent.ClientSecret
		out.PaymentIntentID = stripeSub.LatestInvoice.PaymentIntent.ID
	}

	result := m.DB.WithContext(ctx).Model(&Subscription{}).
		Where("id = ?", sub.ID).
		Update("stripe_subscription_id", stripeSub.ID)
	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot record gateway subscription id")
	}
	sub.StripeSubscriptionID = stripeSub.ID

	if redemption != nil && len(out.PaymentIntentID) > 0 {
		if err := m.VoucherManager.AttachPaymentIntent(ctx, redemption.ID, out.PaymentIntentID); err != nil {
			m.Logger.Error("Unable to record payment intent on redemption",
				zap.Error(err),
				zap.String("RedemptionID", redemption.ID),
			)
		} else {
			redemption.StripePaymentIntentID = out.PaymentIntentID
		}
	}

	return out, nil
}

// releaseReservation undoes the local rows written before a gateway call that
// then failed. The provider holds no subscription at this point, so deleting
// the pending row and returning the voucher use restores the pre-purchase
// state.
func (m *Manager) releaseReservation(ctx context.Context, sub *Subscription, redemption *voucher.Redemption) {
	if redemption != nil {
		if err := m.VoucherManager.ReleaseRedemption(ctx, redemption.ID); err != nil {
			m.Logger.Error("Unable to release voucher redemption",
				zap.Error(err),
				zap.String("RedemptionID", redemption.ID),
			)
		}
	}
	if result := m.DB.WithContext(ctx).Delete(&Subscription{}, "id = ?", sub.ID); result.Error != nil {
		m.Logger.Error("Unable to remove pending subscription reservation",
			zap.Error(result.Error),
			zap.String("SubscriptionID", sub.ID),
		)
	}
}

// createFreeSubscription activates a free plan immediately. Any prior active
// subscription is cancelled with end date now in the same transaction that
// creates the replacement, so the one-active-per-customer invariant holds
// while history is preserved.
func (m *Manager) createFreeSubscription(ctx context.Context, customerID string, p *plan.Plan, now time.Time) (*SubscribeResult, error) {
	sub := &Subscription{
		ID:             shortuuid.New(),
		CustomerID:     customerID,
		PlanID:         p.ID,
		Plan:           *p,
		Status:         StatusActive,
		BillingCycle:   CycleMonthly,
		StartDate:      now,
		EndDate:        nil, // free plans don't expire
		UsageResetDate: StartOfMonth(now),
	}
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Subscription{}).
			Where("customer_id = ?", customerID).
			Where("status = ?", StatusActive).
			Updates(map[string]interface{}{
				"status":       StatusCancelled,
				"cancelled_at": now,
				"end_date":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		return tx.Omit("Plan").Create(sub).Error
	})
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot create free subscription")
	}
	return &SubscribeResult{
		Subscription: sub,
	}, nil
}

// Cancel ends the customer's active subscription. Immediate cancellation
// revokes access now; otherwise the subscription stays usable until the
// current period boundary and simply won't renew.
func (m *Manager) Cancel(ctx context.Context, customerID string, immediate bool) (*Subscription, error) {
	sub, err := m.GetCurrent(ctx, customerID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if sub == nil || sub.Status != StatusActive {
		return nil, ErrNoSubscription
	}

	if len(sub.StripeSubscriptionID) > 0 {
		if immediate {
			if _, err := m.StripeClient.Subscriptions.Cancel(sub.StripeSubscriptionID, &stripe.SubscriptionCancelParams{
				Params: stripe.Params{
					Context: ctx,
				},
			}); err != nil {
				return nil, extErrors.Wrap(err, "Unable to cancel subscription on Stripe")
			}
		} else {
			if _, err := m.StripeClient.Subscriptions.Update(sub.StripeSubscriptionID, &stripe.SubscriptionParams{
				Params: stripe.Params{
					Context: ctx,
				},
				CancelAtPeriodEnd: stripe.Bool(true),
			}); err != nil {
				return nil, extErrors.Wrap(err, "Unable to cancel subscription on Stripe")
			}
		}
	}

	return m.markCancelled(ctx, sub, immediate, now)
}

// markCancelled persists the cancellation. Access ends now for an immediate
// cancel; a gateway-backed subscription cancelled at period end keeps access
// until the next billing date.
func (m *Manager) markCancelled(ctx context.Context, sub *Subscription, immediate bool, now time.Time) (*Subscription, error) {
	endDate := now
	if !immediate && len(sub.StripeSubscriptionID) > 0 && sub.NextBillingDate != nil {
		// access continues until the period boundary
		endDate = *sub.NextBillingDate
	}

	updates := map[string]interface{}{
		"status":       StatusCancelled,
		"cancelled_at": now,
		"end_date":     endDate,
	}
	if result := m.DB.WithContext(ctx).Model(&Subscription{}).Where("id = ?", sub.ID).Updates(updates); result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Unable to mark subscription as cancelled in database")
	}
	sub.Status = StatusCancelled
	sub.CancelledAt = &now
	sub.EndDate = &endDate
	return sub, nil
}

func (m *Manager) getByStripeID(db *gorm.DB, stripeSubscriptionID string) (*Subscription, error) {
	var sub Subscription
	result := db.First(&sub, "stripe_subscription_id = ?", stripeSubscriptionID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &sub, nil
}

// HandlePaymentSucceeded transitions a pending or suspended subscription to
// active, advances the next billing date, and appends the completed
// transaction record, all in one database transaction.
func (m *Manager) HandlePaymentSucceeded(ctx context.Context, stripeSubscriptionID string, amount decimal.Decimal, currency string, invoiceID string) error {
	return m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := m.getByStripeID(tx, stripeSubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			m.Logger.Warn("Payment succeeded for unknown subscription",
				zap.String("StripeSubscriptionID", stripeSubscriptionID),
			)
			return nil
		}
		now := time.Now()
		next := nextBilling(now, sub.BillingCycle)
		updates := map[string]interface{}{
			"next_billing_date": next,
		}
		if sub.Status == StatusPending || sub.Status == StatusSuspended {
			updates["status"] = StatusActive
		}
		if res := tx.Model(&Subscription{}).Where("id = ?", sub.ID).Updates(updates); res.Error != nil {
			return res.Error
		}
		return tx.Create(&transaction.Transaction{
			ID:              shortuuid.New(),
			CustomerID:      sub.CustomerID,
			SubscriptionID:  sub.ID,
			Type:            transaction.TypeSubscription,
			Status:          transaction.StatusCompleted,
			Amount:          amount,
			Currency:        currency,
			StripeInvoiceID: invoiceID,
			Description:     fmt.Sprintf("Subscription payment for %s", sub.PlanID),
		}).Error
	})
}

// HandlePaymentFailed suspends the subscription and appends the failed
// transaction record. Reactivation happens on the next successful payment
// event; there is no automatic reversal.
func (m *Manager) HandlePaymentFailed(ctx context.Context, stripeSubscriptionID string, amount decimal.Decimal, currency string, invoiceID string) error {
	return m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := m.getByStripeID(tx, stripeSubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			m.Logger.Warn("Payment failed for unknown subscription",
				zap.String("StripeSubscriptionID", stripeSubscriptionID),
			)
			return nil
		}
		if sub.Status == StatusActive {
			if res := tx.Model(&Subscription{}).Where("id = ?", sub.ID).Update("status", StatusSuspended); res.Error != nil {
				return res.Error
			}
		}
		return tx.Create(&transaction.Transaction{
			ID:              shortuuid.New(),
			CustomerID:      sub.CustomerID,
			SubscriptionID:  sub.ID,
			Type:            transaction.TypeSubscription,
			Status:          transaction.StatusFailed,
			Amount:          amount,
			Currency:        currency,
			StripeInvoiceID: invoiceID,
			Description:     fmt.Sprintf("Failed subscription payment for %s", sub.PlanID),
		}).Error
	})
}

// HandleSubscriptionDeleted marks the local row cancelled with access
// revoked now, mirroring the provider-side deletion.
func (m *Manager) HandleSubscriptionDeleted(ctx context.Context, stripeSubscriptionID string) error {
	sub, err := m.getByStripeID(m.DB.WithContext(ctx), stripeSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		m.Logger.Warn("Deletion event for unknown subscription",
			zap.String("StripeSubscriptionID", stripeSubscriptionID),
		)
		return nil
	}
	now := time.Now()
	result := m.DB.WithContext(ctx).Model(&Subscription{}).Where("id = ?", sub.ID).Updates(map[string]interface{}{
		"status":       StatusCancelled,
		"cancelled_at": now,
		"end_date":     now,
	})
	if result.Error != nil {
		return extErrors.Wrap(result.Error, "Unable to mark subscription as cancelled in database")
	}
	return nil
}

// ExpireLapsed moves every subscription whose access window has closed to
// the expired status, and returns how many rows changed
func (m *Manager) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	result := m.DB.WithContext(ctx).Model(&Subscription{}).
		Where("status IN ?", []Status{StatusActive, StatusCancelled, StatusSuspended}).
		Where("end_date IS NOT NULL").
		Where("end_date <= ?", now).
		Update("status", StatusExpired)
	if result.Error != nil {
		return 0, extErrors.Wrap(result.Error, "Unable to expire lapsed subscriptions")
	}
	return result.RowsAffected, nil
}

// ListOption paginates the subscription listing. CustomerID empty lists all
// customers (admin surface).
type ListOption struct {
	CustomerID string
	Status     Status
	Page       int
	PerPage    int
}

// List returns one page of subscriptions, newest first, with the total count
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Subscription, int64, error) {
	if opt.Page < 1 {
		opt.Page = 1
	}
	if opt.PerPage < 1 {
		opt.PerPage = 20
	}
	baseQuery := m.DB.WithContext(ctx).Model(&Subscription{})
	if len(opt.CustomerID) > 0 {
		baseQuery = baseQuery.Where("customer_id = ?", opt.CustomerID)
	}
	if len(opt.Status) > 0 {
		baseQuery = baseQuery.Where("status = ?", opt.Status)
	}
	var total int64
	if result := baseQuery.Count(&total); result.Error != nil {
		return nil, 0, result.Error
	}
	results := make([]Subscription, 0, opt.PerPage)
	result := baseQuery.
		Preload("Plan").
		Order("created_at desc").
		Offset((opt.Page - 1) * opt.PerPage).
		Limit(opt.PerPage).
		Find(&results)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, 0, result.Error
	}
	return results, total, nil
}

// PlanCount is one bucket of the active plan distribution
type PlanCount struct {
	PlanID string `json:"planId"`
	Count  int64  `json:"count"`
}

// Stats summarizes subscriptions for the admin analytics surface
type Stats struct {
	Total            int64       `json:"total"`
	Active           int64       `json:"active"`
	Cancelled        int64       `json:"cancelled"`
	PlanDistribution []PlanCount `json:"planDistribution"`
}

// GetStats returns subscription-wide counters and the active plan distribution
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if result := m.DB.WithContext(ctx).Model(&Subscription{}).Count(&stats.Total); result.Error != nil {
		return nil, result.Error
	}
	if result := m.DB.WithContext(ctx).Model(&Subscription{}).Where("status = ?", StatusActive).Count(&stats.Active); result.Error != nil {
		return nil, result.Error
	}
	if result := m.DB.WithContext(ctx).Model(&Subscription{}).Where("status = ?", StatusCancelled).Count(&stats.Cancelled); result.Error != nil {
		return nil, result.Error
	}
	stats.PlanDistribution = make([]PlanCount, 0, 4)
	result := m.DB.WithContext(ctx).Model(&Subscription{}).
		Select("plan_id, count(*) as count").
		Where("status = ?", StatusActive).
		Group("plan_id").
		Scan(&stats.PlanDistribution)
	if result.Error != nil {
		return nil, result.Error
	}
	return &stats, nil
}
