package customer

import (
	"context"
	"fmt"
	"testing"

	"github.com/zllovesuki/prepme/external"

	"github.com/lithammer/shortuuid/v3"
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

	m, err := NewManager(zap.NewNop(), db, external.NewStripeClient("sk_test_x"))
	require.NoError(t, err)
	return m
}

func TestCustomerLifecycle(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	cust, err := m.NewCustomer(ctx, "someone@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, cust.ID)

	byID, err := m.GetByID(ctx, cust.ID)
	require.NoError(t, err)
	require.Equal(t, cust.Email, byID.Email)

	byEmail, err := m.GetByEmail(ctx, "someone@example.com")
	require.NoError(t, err)
	require.Equal(t, cust.ID, byEmail.ID)

	missing, err := m.GetByID(ctx, "ghost")
	require.NoError(t, err)
	require.Nil(t, missing)

	updated, err := m.UpdateProfile(ctx, cust.ID, "Some One")
	require.NoError(t, err)
	require.Equal(t, "Some One", updated.FullName)

	// duplicate email violates the unique index
	_, err = m.NewCustomer(ctx, "someone@example.com")
	require.Error(t, err)
}

func TestEnsureStripeCustomerShortCircuits(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	cust, err := m.NewCustomer(ctx, "linked@example.com")
	require.NoError(t, err)
	require.NoError(t, m.db.Model(cust).Update("stripe_customer_id", "cus_existing").Error)

	// an already-linked customer never hits the gateway
	linked, err := m.EnsureStripeCustomer(ctx, cust.ID)
	require.NoError(t, err)
	require.Equal(t, "cus_existing", linked.StripeCustomerID)

	missing, err := m.EnsureStripeCustomer(ctx, "ghost")
	require.NoError(t, err)
	require.Nil(t, missing)
}
