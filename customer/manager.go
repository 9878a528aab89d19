package customer

import (
	"context"
	"errors"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the database operations relating to Customers
type Manager struct {
	db           *gorm.DB
	stripeClient *client.API
	logger       *zap.Logger
}

// NewManager returns a new Manager for customers
func NewManager(logger *zap.Logger, db *gorm.DB, stripeClient *client.API) (*Manager, error) {
	if err := db.AutoMigrate(&Customer{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize customer.Manager")
	}
	return &Manager{
		db:           db,
		stripeClient: stripeClient,
		logger:       logger,
	}, nil
}

// NewCustomer will create a new customer profile in the database
func (m *Manager) NewCustomer(ctx context.Context, email string) (*Customer, error) {
	newCustomer := &Customer{
		ID:    shortuuid.New(),
		Email: email,
	}

	result := m.db.WithContext(ctx).Create(newCustomer)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create a new Customer")
	}

	return newCustomer, nil
}

// GetByID will try to return the customer in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Customer, error) {
	var cust Customer

	result := m.db.WithContext(ctx).First(&cust, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get customer by id")
	}

	return &cust, nil
}

// GetByEmail will try to return the customer in the database by email address
func (m *Manager) GetByEmail(ctx context.Context, email string) (*Customer, error) {
	var cust Customer

	result := m.db.WithContext(ctx).First(&cust, "email = ?", email)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get customer by email")
	}

	return &cust, nil
}

// UpdateProfile updates the mutable profile fields of a customer
func (m *Manager) UpdateProfile(ctx context.Context, id string, fullName string) (*Customer, error) {
	cust, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cust == nil {
		return nil, nil
	}
	cust.FullName = fullName
	result := m.db.WithContext(ctx).Model(cust).Update("full_name", fullName)
	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot update customer profile")
	}
	return cust, nil
}

// EnsureStripeCustomer will create the Stripe counterpart of a customer if
// one doesn't exist yet, and persist its ID. The Stripe ID is stored verbatim
// and never interpreted.
func (m *Manager) EnsureStripeCustomer(ctx context.Context, id string) (*Customer, error) {
	cust, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cust == nil {
		return nil, nil
	}
	if len(cust.StripeCustomerID) > 0 {
		return cust, nil
	}

	params := &stripe.CustomerParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Email: stripe.String(cust.Email),
		Name:  stripe.String(cust.FullName),
	}
	sc, err := m.stripeClient.Customers.New(params)
	if err != nil {
		m.logger.Error("Stripe returned error",
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot create Customer on Stripe")
	}

	result := m.db.WithContext(ctx).Model(cust).Update("stripe_customer_id", sc.ID)
	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot persist Stripe customer id")
	}
	cust.StripeCustomerID = sc.ID

	return cust, nil
}
