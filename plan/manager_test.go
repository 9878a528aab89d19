package plan

import (
	"context"
	"fmt"
	"testing"

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
	sqlDB.SetMaxOpenConns(1)

	m, err := NewManager(ManagerOptions{
		DB:           db,
		StripeClient: external.NewStripeClient("sk_test_x"),
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	return m
}

func validPlan(id string) *Plan {
	return &Plan{
		ID:           id,
		Name:         "Test Plan",
		NameAr:       "خطة تجريبية",
		PriceMonthly: decimal.NewFromInt(5),
		PriceYearly:  decimal.NewFromInt(50),
		Currency:     "USD",
		MaxCVs:       3,
		Active:       true,
	}
}

func TestCreateValidation(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Plan)
	}{
		{
			name:   "uppercase id",
			mutate: func(p *Plan) { p.ID = "Basic" },
		},
		{
			name:   "id with spaces",
			mutate: func(p *Plan) { p.ID = "my plan" },
		},
		{
			name:   "empty id",
			mutate: func(p *Plan) { p.ID = "" },
		},
		{
			name:   "missing localized name",
			mutate: func(p *Plan) { p.NameAr = "" },
		},
		{
			name:   "negative price",
			mutate: func(p *Plan) { p.PriceMonthly = decimal.NewFromInt(-1) },
		},
		{
			name:   "negative limit",
			mutate: func(p *Plan) { p.MaxCVs = -1 },
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := validPlan("test_plan")
			c.mutate(p)
			require.Error(t, m.Create(ctx, p))
		})
	}

	require.NoError(t, m.Create(ctx, validPlan("test_plan")))
	require.Error(t, m.Create(ctx, validPlan("test_plan")), "duplicate id must be rejected")
}

func TestGetMissingPlan(t *testing.T) {
	m := testManager(t)
	p, err := m.Get(context.Background(), "ghost")
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestListFiltersInactive(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Seed(ctx))

	hidden := validPlan("hidden")
	hidden.Active = false
	require.NoError(t, m.Create(ctx, hidden))

	visible, err := m.List(ctx, ListOption{})
	require.NoError(t, err)
	for _, p := range visible {
		require.True(t, p.Active)
	}
	require.Len(t, visible, 4)

	all, err := m.List(ctx, ListOption{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestUpdateMergesPartially(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, validPlan("test_plan")))

	newPrice := decimal.RequireFromString("7.50")
	flag := true
	updated, err := m.Update(ctx, "test_plan", UpdateOption{
		PriceMonthly: &newPrice,
		AIFeedback:   &flag,
	})
	require.NoError(t, err)
	require.True(t, newPrice.Equal(updated.PriceMonthly))
	require.True(t, updated.AIFeedback)
	// untouched fields survive the merge
	require.Equal(t, "Test Plan", updated.Name)
	require.Equal(t, 3, updated.MaxCVs)

	negative := decimal.NewFromInt(-1)
	_, err = m.Update(ctx, "test_plan", UpdateOption{PriceMonthly: &negative})
	require.Error(t, err)

	missing, err := m.Update(ctx, "ghost", UpdateOption{PriceMonthly: &newPrice})
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestDeleteRefusesWhenReferenced(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, validPlan("test_plan")))
	require.NoError(t, m.DB.Exec("CREATE TABLE subscriptions (id text primary key, plan_id text)").Error)

	require.NoError(t, m.DB.Exec("INSERT INTO subscriptions (id, plan_id) VALUES ('sub_1', 'test_plan')").Error)
	require.ErrorIs(t, m.Delete(ctx, "test_plan"), ErrPlanInUse)

	require.NoError(t, m.DB.Exec("DELETE FROM subscriptions").Error)
	require.NoError(t, m.Delete(ctx, "test_plan"))

	p, err := m.Get(ctx, "test_plan")
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestLimitColumnsRoundTrip(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	// the CV limit column is referenced by name from raw queries elsewhere
	require.True(t, m.DB.Migrator().HasColumn(&Plan{}, "max_cvs"))

	require.NoError(t, m.Create(ctx, validPlan("test_plan")))
	var limit int
	require.NoError(t, m.DB.Model(&Plan{}).Where("id = ?", "test_plan").Select("max_cvs").Scan(&limit).Error)
	require.Equal(t, 3, limit)
}

func TestFree(t *testing.T) {
	free := &Plan{PriceMonthly: decimal.Zero, PriceYearly: decimal.Zero}
	require.True(t, free.Free())

	paid := validPlan("paid")
	require.False(t, paid.Free())
}

func TestDefaultPlansAreValid(t *testing.T) {
	for _, p := range DefaultPlans() {
		seed := p
		require.NoError(t, validatePlan(&seed), "default plan %s must pass validation", p.ID)
	}
	m := testManager(t)
	ctx := context.Background()
	require.NoError(t, m.Seed(ctx))
	// seeding twice is idempotent
	require.NoError(t, m.Seed(ctx))
	all, err := m.List(ctx, ListOption{})
	require.NoError(t, err)
	require.Len(t, all, 4)
}
