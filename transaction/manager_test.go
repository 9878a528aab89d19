package transaction

import (
	"context"
	"fmt"
	"testing"
	"time"

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

	m, err := NewManager(zap.NewNop(), db)
	require.NoError(t, err)
	return m
}

func TestCreateRequiresCustomer(t *testing.T) {
	m := testManager(t)
	err := m.Create(context.Background(), &Transaction{
		Amount: decimal.NewFromInt(10),
	})
	require.Error(t, err)
}

func TestStatusTransitions(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	newPending := func() *Transaction {
		tx := &Transaction{
			CustomerID: "cust_1",
			Type:       TypeSubscription,
			Status:     StatusPending,
			Amount:     decimal.RequireFromString("9.99"),
		}
		require.NoError(t, m.Create(ctx, tx))
		return tx
	}

	// pending -> completed -> refunded
	tx := newPending()
	updated, err := m.UpdateStatus(ctx, tx.ID, StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, updated.Status)
	updated, err = m.UpdateStatus(ctx, tx.ID, StatusRefunded)
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, updated.Status)

	// refunded is terminal
	_, err = m.UpdateStatus(ctx, tx.ID, StatusPending)
	require.ErrorIs(t, err, ErrTerminalStatus)

	// pending -> failed is terminal
	tx = newPending()
	_, err = m.UpdateStatus(ctx, tx.ID, StatusFailed)
	require.NoError(t, err)
	_, err = m.UpdateStatus(ctx, tx.ID, StatusCompleted)
	require.ErrorIs(t, err, ErrTerminalStatus)

	// pending cannot skip straight to refunded
	tx = newPending()
	_, err = m.UpdateStatus(ctx, tx.ID, StatusRefunded)
	require.ErrorIs(t, err, ErrTerminalStatus)

	missing, err := m.UpdateStatus(ctx, "does-not-exist", StatusCompleted)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestListScopesByCustomer(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Create(ctx, &Transaction{
			CustomerID: "cust_1",
			Amount:     decimal.NewFromInt(int64(i + 1)),
		}))
	}
	require.NoError(t, m.Create(ctx, &Transaction{
		CustomerID: "cust_2",
		Amount:     decimal.NewFromInt(10),
	}))

	scoped, total, err := m.List(ctx, ListOption{CustomerID: "cust_1"})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, scoped, 3)

	all, total, err := m.List(ctx, ListOption{})
	require.NoError(t, err)
	require.EqualValues(t, 4, total)
	require.Len(t, all, 4)

	paged, total, err := m.List(ctx, ListOption{Page: 2, PerPage: 3})
	require.NoError(t, err)
	require.EqualValues(t, 4, total)
	require.Len(t, paged, 1)
}

func TestRevenueSince(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, &Transaction{
		CustomerID: "cust_1",
		Status:     StatusCompleted,
		Amount:     decimal.RequireFromString("9.99"),
	}))
	require.NoError(t, m.Create(ctx, &Transaction{
		CustomerID: "cust_2",
		Status:     StatusCompleted,
		Amount:     decimal.RequireFromString("19.99"),
	}))
	// failed payments don't count
	require.NoError(t, m.Create(ctx, &Transaction{
		CustomerID: "cust_3",
		Status:     StatusFailed,
		Amount:     decimal.RequireFromString("49.99"),
	}))

	revenue, err := m.RevenueSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("29.98").Equal(revenue),
		"expected 29.98, got %s", revenue)

	empty, err := m.RevenueSince(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.True(t, empty.IsZero())
}
