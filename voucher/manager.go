package voucher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Validation failures are distinct outcomes, not faults. Callers branch on
// them and surface the message to the user.
var (
	ErrNotFound     = errors.New("invalid voucher code")
	ErrInactive     = errors.New("voucher is not active")
	ErrNotStarted   = errors.New("voucher is not yet valid")
	ErrExpired      = errors.New("voucher has expired")
	ErrExhausted    = errors.New("voucher usage limit reached")
	ErrPlanMismatch = errors.New("voucher not applicable to this plan")
	ErrAlreadyUsed  = errors.New("voucher already used by this user")
)

var hundred = decimal.NewFromInt(100)

// ManagerOptions contains the dependencies for the voucher Manager
type ManagerOptions struct {
	DB           *gorm.DB
	StripeClient *client.API
	Logger       *zap.Logger
}

// Manager handles the voucher ledger
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for the voucher ledger
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
	if err := option.DB.AutoMigrate(&Voucher{}, &Redemption{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize voucher.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// CalculateDiscount computes the discount a Voucher yields on the given
// amount. Percentage vouchers take amount * value/100; fixed vouchers are
// clamped to the amount so the final charge can never go negative. The
// result is rounded to 2 decimal places, half away from zero (half-up).
func (v *Voucher) CalculateDiscount(originalAmount decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch v.DiscountType {
	case TypePercentage:
		discount = originalAmount.Mul(v.DiscountValue).Div(hundred)
	case TypeFixedAmount:
		discount = decimal.Min(v.DiscountValue, originalAmount)
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount.Round(2)
}

// checkValidity runs the ordered validation checks against an already-loaded
// Voucher row, short-circuiting on the first failure. A ValidUntil equal to
// now counts as expired.
func checkValidity(db *gorm.DB, v *Voucher, customerID, planID string, now time.Time) error {
	if !v.Active {
		return ErrInactive
	}
	if now.Before(v.ValidFrom) {
		return ErrNotStarted
	}
	if !now.Before(v.ValidUntil) {
		return ErrExpired
	}
	if v.UsedCount >= v.MaxUses {
		return ErrExhausted
	}
	if len(planID) > 0 && len(v.ApplicablePlans) > 0 && !v.ApplicablePlans.Contains(planID) {
		return ErrPlanMismatch
	}
	if len(customerID) > 0 && v.SingleUsePerUser {
		var count int64
		result := db.Model(&Redemption{}).
			Where("voucher_id = ?", v.ID).
			Where("customer_id = ?", customerID).
			Count(&count)
		if result.Error != nil {
			return result.Error
		}
		if count > 0 {
			return ErrAlreadyUsed
		}
	}
	return nil
}

// ValidateOption identifies the voucher and the optional context to check it
// against. CustomerID and PlanID may be empty for a pre-purchase check.
type ValidateOption struct {
	Code       string
	CustomerID string
	PlanID     string
}

// Validate returns the voucher record if every check passes, or one of the
// distinct validation errors
func (m *Manager) Validate(ctx context.Context, opt ValidateOption) (*Voucher, error) {
	v, err := m.getByCode(m.DB.WithContext(ctx), opt.Code)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	if err := checkValidity(m.DB.WithContext(ctx), v, opt.CustomerID, opt.PlanID, time.Now()); err != nil {
		return nil, err
	}
	return v, nil
}

func (m *Manager) getByCode(db *gorm.DB, code string) (*Voucher, error) {
	var v Voucher
	result := db.First(&v, "code = ?", code)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return &v, nil
}

// RedeemOption describes one redemption attempt
type RedeemOption struct {
	Code                  string
	CustomerID            string
	SubscriptionID        string
	OriginalAmount        decimal.Decimal
	StripePaymentIntentID string
}

// RedeemWithTx validates the voucher again inside the caller-supplied
// transaction, increments used_count with a conditional update so concurrent
// attempts can never overshoot max_uses, and writes the Redemption row. The
// ledger writes commit or roll back together with whatever else the caller
// does in the same transaction.
func (m *Manager) RedeemWithTx(tx *gorm.DB, opt RedeemOption) (*Redemption, error) {
	v, err := m.getByCode(tx, opt.Code)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	if err := checkValidity(tx, v, opt.CustomerID, "", time.Now()); err != nil {
		return nil, err
	}

	res := tx.Model(&Voucher{}).
		Where("id = ?", v.ID).
		Where("used_count < max_uses").
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// lost the race to the last use
		return nil, ErrExhausted
	}

	discount := v.CalculateDiscount(opt.OriginalAmount)
	redemption := &Redemption{
		ID:                    shortuuid.New(),
		VoucherID:             v.ID,
		CustomerID:            opt.CustomerID,
		SubscriptionID:        opt.SubscriptionID,
		OriginalAmount:        opt.OriginalAmount.Round(2),
		DiscountAmount:        discount,
		FinalAmount:           opt.OriginalAmount.Round(2).Sub(discount),
		Currency:              v.Currency,
		StripePaymentIntentID: opt.StripePaymentIntentID,
	}
	if err := tx.Create(redemption).Error; err != nil {
		return nil, err
	}
	return redemption, nil
}

// Redeem is the standalone variant of RedeemWithTx, running in its own
// transaction
func (m *Manager) Redeem(ctx context.Context, opt RedeemOption) (*Redemption, error) {
	var redemption *Redemption
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rErr error
		redemption, rErr = m.RedeemWithTx(tx, opt)
		return rErr
	})
	if err != nil {
		return nil, err
	}
	return redemption, nil
}

// ReleaseRedemption deletes a redemption row and returns its use to the
// voucher. This compensates a purchase that failed at the payment gateway
// after the ledger write had already committed. Releasing an unknown
// redemption is a no-op.
func (m *Manager) ReleaseRedemption(ctx context.Context, redemptionID string) error {
	return m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r Redemption
		result := tx.First(&r, "id = ?", redemptionID)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil
		}
		if result.Error != nil {
			return result.Error
		}
		res := tx.Model(&Voucher{}).
			Where("id = ?", r.VoucherID).
			Where("used_count > 0").
			UpdateColumn("used_count", gorm.Expr("used_count - 1"))
		if res.Error != nil {
			return res.Error
		}
		return tx.Delete(&Redemption{}, "id = ?", redemptionID).Error
	})
}

// AttachPaymentIntent backfills the gateway payment reference on a redemption
// created before the gateway call
func (m *Manager) AttachPaymentIntent(ctx context.Context, redemptionID, paymentIntentID string) error {
	if len(paymentIntentID) == 0 {
		return nil
	}
	result := m.DB.WithContext(ctx).Model(&Redemption{}).
		Where("id = ?", redemptionID).
		Update("stripe_payment_intent_id", paymentIntentID)
	return result.Error
}

func validateVoucher(v *Voucher) error {
	if len(v.Code) == 0 {
		return fmt.Errorf("voucher code is required")
	}
	switch v.DiscountType {
	case TypePercentage:
		if v.DiscountValue.IsNegative() || v.DiscountValue.GreaterThan(hundred) {
			return fmt.Errorf("percentage discount must be between 0 and 100")
		}
	case TypeFixedAmount:
		if v.DiscountValue.IsNegative() {
			return fmt.Errorf("fixed discount cannot be negative")
		}
	default:
		return fmt.Errorf("invalid discount type")
	}
	if v.MaxUses < 1 {
		return fmt.Errorf("max uses must be at least 1")
	}
	if !v.ValidUntil.After(v.ValidFrom) {
		return fmt.Errorf("valid until must be after valid from")
	}
	return nil
}

// Create will insert a new Voucher after validation
func (m *Manager) Create(ctx context.Context, v *Voucher) error {
	if err := validateVoucher(v); err != nil {
		return err
	}
	existing, err := m.getByCode(m.DB.WithContext(ctx), v.Code)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("voucher code already exists")
	}
	if len(v.ID) == 0 {
		v.ID = shortuuid.New()
	}
	if v.ValidFrom.IsZero() {
		v.ValidFrom = time.Now()
	}
	result := m.DB.WithContext(ctx).Create(v)
	if result.Error != nil {
		m.Logger.Error("Unable to create new voucher in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create voucher")
	}
	return nil
}

// UpdateOption is a partial merge over the mutable fields of a Voucher
type UpdateOption struct {
	Active     *bool      `json:"active"`
	MaxUses    *int       `json:"maxUses"`
	ValidUntil *time.Time `json:"validUntil"`
}

// Update applies the partial merge and returns the updated Voucher. The
// used_count is never writable through this path.
func (m *Manager) Update(ctx context.Context, id string, opt UpdateOption) (*Voucher, error) {
	var v Voucher
	result := m.DB.WithContext(ctx).First(&v, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}

	if opt.Active != nil {
		v.Active = *opt.Active
	}
	if opt.MaxUses != nil {
		v.MaxUses = *opt.MaxUses
	}
	if opt.ValidUntil != nil {
		v.ValidUntil = *opt.ValidUntil
	}
	if err := validateVoucher(&v); err != nil {
		return nil, err
	}
	if v.MaxUses < v.UsedCount {
		return nil, fmt.Errorf("max uses cannot be lower than the current used count")
	}

	result = m.DB.WithContext(ctx).Save(&v)
	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot update voucher")
	}
	return &v, nil
}

// ListOption paginates the voucher listing
type ListOption struct {
	Page    int
	PerPage int
}

// List returns one page of vouchers, newest first, with the total row count
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Voucher, int64, error) {
	if opt.Page < 1 {
		opt.Page = 1
	}
	if opt.PerPage < 1 {
		opt.PerPage = 20
	}
	var total int64
	if result := m.DB.WithContext(ctx).Model(&Voucher{}).Count(&total); result.Error != nil {
		return nil, 0, result.Error
	}
	results := make([]Voucher, 0, opt.PerPage)
	result := m.DB.WithContext(ctx).
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

// Stats summarizes the ledger for the admin analytics surface
type Stats struct {
	Total            int64 `json:"total"`
	Active           int64 `json:"active"`
	TotalRedemptions int64 `json:"totalRedemptions"`
}

// GetStats returns ledger-wide voucher counters
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if result := m.DB.WithContext(ctx).Model(&Voucher{}).Count(&stats.Total); result.Error != nil {
		return nil, result.Error
	}
	if result := m.DB.WithContext(ctx).Model(&Voucher{}).Where("active = ?", true).Count(&stats.Active); result.Error != nil {
		return nil, result.Error
	}
	if result := m.DB.WithContext(ctx).Model(&Redemption{}).Count(&stats.TotalRedemptions); result.Error != nil {
		return nil, result.Error
	}
	return &stats, nil
}

// CreateStripeCoupon creates a single-use coupon on Stripe mirroring the
// voucher's discount, to be attached to a new subscription. The returned ID
// is stored verbatim; Stripe applies the actual discount at invoicing.
func (m *Manager) CreateStripeCoupon(ctx context.Context, v *Voucher, customerID string) (string, error) {
	couponID := fmt.Sprintf("voucher_%s_%s", v.ID, uuid.New().String())
	params := &stripe.CouponParams{
		Params: stripe.Params{
			Context: ctx,
			Metadata: map[string]string{
				"voucher_id":  v.ID,
				"customer_id": customerID,
			},
		},
		ID:       stripe.String(couponID),
		Duration: stripe.String("once"),
	}
	switch v.DiscountType {
	case TypePercentage:
		f, _ := v.DiscountValue.Float64()
		params.PercentOff = stripe.Float64(f)
	case TypeFixedAmount:
		params.AmountOff = stripe.Int64(v.DiscountValue.Shift(2).IntPart())
		params.Currency = stripe.String(v.Currency)
	}
	coupon, err := m.StripeClient.Coupons.New(params)
	if err != nil {
		return "", extErrors.Wrap(err, "Cannot create coupon on Stripe")
	}
	return coupon.ID, nil
}
