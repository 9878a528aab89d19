package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrTerminalStatus is returned when a status transition is attempted on a
// transaction already in a terminal state
var ErrTerminalStatus = errors.New("transaction status can no longer change")

// Manager handles the database operations relating to Transactions
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for billing transactions
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Transaction{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize transaction.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Create will append one Transaction row
func (m *Manager) Create(ctx context.Context, t *Transaction) error {
	if len(t.CustomerID) == 0 {
		return fmt.Errorf("Transaction.CustomerID is required")
	}
	if len(t.ID) == 0 {
		t.ID = shortuuid.New()
	}
	result := m.db.WithContext(ctx).Create(t)
	if result.Error != nil {
		m.logger.Error("Unable to create transaction in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create transaction")
	}
	return nil
}

var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusRefunded},
}

// UpdateStatus transitions a Transaction to a new status. Terminal rows are
// immutable; invalid transitions are rejected.
func (m *Manager) UpdateStatus(ctx context.Context, id string, next Status) (*Transaction, error) {
	var t Transaction
	result := m.db.WithContext(ctx).First(&t, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	allowed := false
	for _, s := range allowedTransitions[t.Status] {
		if s == next {
			allowed = true
		}
	}
	if !allowed {
		return nil, ErrTerminalStatus
	}
	result = m.db.WithContext(ctx).Model(&t).Update("status", next)
	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot update transaction status")
	}
	t.Status = next
	return &t, nil
}

// ListOption paginates the transaction listing. CustomerID empty lists all
// customers (admin surface).
type ListOption struct {
	CustomerID string
	Page       int
	PerPage    int
}

// List returns one page of transactions, newest first, with the total count
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Transaction, int64, error) {
	if opt.Page < 1 {
		opt.Page = 1
	}
	if opt.PerPage < 1 {
		opt.PerPage = 10
	}
	baseQuery := m.db.WithContext(ctx).Model(&Transaction{})
	if len(opt.CustomerID) > 0 {
		baseQuery = baseQuery.Where("customer_id = ?", opt.CustomerID)
	}
	var total int64
	if result := baseQuery.Count(&total); result.Error != nil {
		return nil, 0, result.Error
	}
	results := make([]Transaction, 0, opt.PerPage)
	result := baseQuery.
		Order("created_at desc").
		Offset((opt.Page - 1) * opt.PerPage).
		Limit(opt.PerPage).
		Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, 0, result.Error
	}
	return results, total, nil
}

// RevenueSince sums completed transaction amounts created after the given time
func (m *Manager) RevenueSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	// sum() over zero rows is NULL, not 0
	var raw sql.NullString
	result := m.db.WithContext(ctx).Model(&Transaction{}).
		Select("sum(amount)").
		Where("status = ?", StatusCompleted).
		Where("created_at >= ?", since).
		Scan(&raw)
	if result.Error != nil {
		return decimal.Zero, result.Error
	}
	if !raw.Valid {
		return decimal.Zero, nil
	}
	sum, err := decimal.NewFromString(raw.String)
	if err != nil {
		return decimal.Zero, extErrors.Wrap(err, "Cannot parse revenue sum")
	}
	return sum, nil
}
