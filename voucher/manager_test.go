package voucher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zllovesuki/prepme/external"

	"github.com/lithammer/shortuuid/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", shortuuid.New())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// sqlite gets grumpy with concurrent writers; serialize on one connection
	sqlDB.SetMaxOpenConns(1)

	m, err := NewManager(ManagerOptions{
		DB:           db,
		StripeClient: external.NewStripeClient("sk_test_x"),
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	return m
}

func percentVoucher(code string, value int64) *Voucher {
	return &Voucher{
		Code:          code,
		DiscountType:  TypePercentage,
		DiscountValue: decimal.NewFromInt(value),
		MaxUses:       10,
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidUntil:    time.Now().Add(time.Hour),
		Active:        true,
	}
}

func TestCalculateDiscount(t *testing.T) {
	cases := []struct {
		name     string
		voucher  Voucher
		amount   decimal.Decimal
		expected string
	}{
		{
			name: "percentage",
			voucher: Voucher{
				DiscountType:  TypePercentage,
				DiscountValue: decimal.NewFromInt(20),
			},
			amount:   decimal.NewFromInt(100),
			expected: "20",
		},
		{
			name: "percentage rounds half up",
			voucher: Voucher{
				DiscountType:  TypePercentage,
				DiscountValue: decimal.NewFromInt(10),
			},
			amount:   decimal.RequireFromString("33.33"),
			expected: "3.33",
		},
		{
			name: "fixed amount",
			voucher: Voucher{
				DiscountType:  TypeFixedAmount,
				DiscountValue: decimal.NewFromInt(5),
			},
			amount:   decimal.RequireFromString("9.99"),
			expected: "5",
		},
		{
			name: "fixed amount clamped to the charge",
			voucher: Voucher{
				DiscountType:  TypeFixedAmount,
				DiscountValue: decimal.NewFromInt(150),
			},
			amount:   decimal.NewFromInt(100),
			expected: "100",
		},
		{
			name: "negative value yields no discount",
			voucher: Voucher{
				DiscountType:  TypePercentage,
				DiscountValue: decimal.NewFromInt(-20),
			},
			amount:   decimal.NewFromInt(100),
			expected: "0",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			discount := c.voucher.CalculateDiscount(c.amount)
			require.True(t, decimal.RequireFromString(c.expected).Equal(discount),
				"expected %s, got %s", c.expected, discount)
		})
	}
}

func TestValidateOutcomes(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, percentVoucher("GOOD20", 20)))

	inactive := percentVoucher("INACTIVE", 20)
	inactive.Active = false
	require.NoError(t, m.Create(ctx, inactive))

	notStarted := percentVoucher("SOON", 20)
	notStarted.ValidFrom = time.Now().Add(time.Hour)
	notStarted.ValidUntil = time.Now().Add(2 * time.Hour)
	require.NoError(t, m.Create(ctx, notStarted))

	expired := percentVoucher("LATE", 20)
	expired.ValidFrom = time.Now().Add(-2 * time.Hour)
	expired.ValidUntil = time.Now().Add(-time.Hour)
	require.NoError(t, m.Create(ctx, expired))

	scoped := percentVoucher("PREMIUMONLY", 20)
	scoped.ApplicablePlans = PlanList{"premium"}
	require.NoError(t, m.Create(ctx, scoped))

	cases := []struct {
		name     string
		opt      ValidateOption
		expected error
	}{
		{
			name:     "valid voucher",
			opt:      ValidateOption{Code: "GOOD20"},
			expected: nil,
		},
		{
			name:     "unknown code",
			opt:      ValidateOption{Code: "NOPE"},
			expected: ErrNotFound,
		},
		{
			name:     "code is case sensitive",
			opt:      ValidateOption{Code: "good20"},
			expected: ErrNotFound,
		},
		{
			name:     "deactivated",
			opt:      ValidateOption{Code: "INACTIVE"},
			expected: ErrInactive,
		},
		{
			name:     "not yet valid",
			opt:      ValidateOption{Code: "SOON"},
			expected: ErrNotStarted,
		},
		{
			name:     "expired",
			opt:      ValidateOption{Code: "LATE"},
			expected: ErrExpired,
		},
		{
			name:     "wrong plan",
			opt:      ValidateOption{Code: "PREMIUMONLY", PlanID: "basic"},
			expected: ErrPlanMismatch,
		},
		{
			name:     "matching plan",
			opt:      ValidateOption{Code: "PREMIUMONLY", PlanID: "premium"},
			expected: nil,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v, err := m.Validate(ctx, c.opt)
			if c.expected == nil {
				require.NoError(t, err)
				require.NotNil(t, v)
			} else {
				require.ErrorIs(t, err, c.expected)
			}
		})
	}
}

func TestValidateSingleUsePerUser(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	v := percentVoucher("ONCE", 50)
	v.SingleUsePerUser = true
	require.NoError(t, m.Create(ctx, v))

	_, err := m.Redeem(ctx, RedeemOption{
		Code:           "ONCE",
		CustomerID:     "cust_1",
		OriginalAmount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	_, err = m.Validate(ctx, ValidateOption{Code: "ONCE", CustomerID: "cust_1"})
	require.ErrorIs(t, err, ErrAlreadyUsed)

	// a different customer is still fine
	_, err = m.Validate(ctx, ValidateOption{Code: "ONCE", CustomerID: "cust_2"})
	require.NoError(t, err)

	// and so is an anonymous pre-purchase check
	_, err = m.Validate(ctx, ValidateOption{Code: "ONCE"})
	require.NoError(t, err)
}

func TestRedeemRecordsAmounts(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, percentVoucher("TWENTY", 20)))

	redemption, err := m.Redeem(ctx, RedeemOption{
		Code:           "TWENTY",
		CustomerID:     "cust_1",
		SubscriptionID: "sub_1",
		OriginalAmount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(100).Equal(redemption.OriginalAmount))
	require.True(t, decimal.NewFromInt(20).Equal(redemption.DiscountAmount))
	require.True(t, decimal.NewFromInt(80).Equal(redemption.FinalAmount))

	v, err := m.Validate(ctx, ValidateOption{Code: "TWENTY"})
	require.NoError(t, err)
	require.Equal(t, 1, v.UsedCount)
}

func TestRedeemConcurrentNeverOvershoots(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	v := percentVoucher("LASTONE", 10)
	v.MaxUses = 1
	v.SingleUsePerUser = false
	require.NoError(t, m.Create(ctx, v))

	const attempts = 10
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Redeem(ctx, RedeemOption{
				Code:           "LASTONE",
				CustomerID:     fmt.Sprintf("cust_%d", i),
				OriginalAmount: decimal.NewFromInt(10),
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var succeeded, exhausted int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, ErrExhausted)
			exhausted++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, attempts-1, exhausted)

	var count int64
	require.NoError(t, m.DB.Model(&Redemption{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestUpdateGuards(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	v := percentVoucher("ADJUST", 10)
	v.MaxUses = 3
	v.SingleUsePerUser = false
	require.NoError(t, m.Create(ctx, v))

	for i := 0; i < 2; i++ {
		_, err := m.Redeem(ctx, RedeemOption{
			Code:           "ADJUST",
			CustomerID:     fmt.Sprintf("cust_%d", i),
			OriginalAmount: decimal.NewFromInt(10),
		})
		require.NoError(t, err)
	}

	lower := 1
	_, err := m.Update(ctx, v.ID, UpdateOption{MaxUses: &lower})
	require.Error(t, err)

	higher := 5
	updated, err := m.Update(ctx, v.ID, UpdateOption{MaxUses: &higher})
	require.NoError(t, err)
	require.Equal(t, 5, updated.MaxUses)
	require.Equal(t, 2, updated.UsedCount)

	missing, err := m.Update(ctx, "does-not-exist", UpdateOption{MaxUses: &higher})
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRedeemWithTxRollsBackWithCaller(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, percentVoucher("BUNDLED", 20)))

	declined := fmt.Errorf("gateway declined")
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		redemption, err := m.RedeemWithTx(tx, RedeemOption{
			Code:           "BUNDLED",
			CustomerID:     "cust_1",
			SubscriptionID: "sub_1",
			OriginalAmount: decimal.RequireFromString("9.99"),
		})
		require.NoError(t, err)
		require.NotNil(t, redemption)
		return declined
	})
	require.ErrorIs(t, err, declined)

	// the increment and the redemption row rolled back with the caller
	v, err := m.Validate(ctx, ValidateOption{Code: "BUNDLED"})
	require.NoError(t, err)
	require.Equal(t, 0, v.UsedCount)

	var count int64
	require.NoError(t, m.DB.Model(&Redemption{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestReleaseRedemptionReturnsUse(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	v := percentVoucher("REFUND", 10)
	v.MaxUses = 1
	require.NoError(t, m.Create(ctx, v))

	redemption, err := m.Redeem(ctx, RedeemOption{
		Code:           "REFUND",
		CustomerID:     "cust_1",
		OriginalAmount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	_, err = m.Validate(ctx, ValidateOption{Code: "REFUND"})
	require.ErrorIs(t, err, ErrExhausted)

	require.NoError(t, m.ReleaseRedemption(ctx, redemption.ID))

	reloaded, err := m.Validate(ctx, ValidateOption{Code: "REFUND"})
	require.NoError(t, err)
	require.Equal(t, 0, reloaded.UsedCount)

	var count int64
	require.NoError(t, m.DB.Model(&Redemption{}).Count(&count).Error)
	require.EqualValues(t, 0, count)

	// releasing an unknown redemption is a no-op
	require.NoError(t, m.ReleaseRedemption(ctx, "does-not-exist"))
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, percentVoucher("DUP", 10)))
	err := m.Create(ctx, percentVoucher("DUP", 20))
	require.Error(t, err)
}
