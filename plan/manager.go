package plan

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var planIDRegex = regexp.MustCompile("^[a-z0-9_]+$")

// ErrPlanInUse is returned when deactivation-by-delete is attempted while
// subscriptions still reference the plan
var ErrPlanInUse = errors.New("plan is referenced by existing subscriptions")

// ManagerOptions contains the dependencies for the plan Manager
type ManagerOptions struct {
	DB           *gorm.DB
	StripeClient *client.API
	Logger       *zap.Logger
}

// Manager handles the plan catalog
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for the plan catalog
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
	if err := option.DB.AutoMigrate(&Plan{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize plan.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

func validatePlan(p *Plan) error {
	if !planIDRegex.MatchString(p.ID) {
		return fmt.Errorf("plan id must be lowercase alphanumeric")
	}
	if len(p.Name) == 0 || len(p.NameAr) == 0 {
		return fmt.Errorf("plan names are required in both locales")
	}
	if p.PriceMonthly.IsNegative() || p.PriceYearly.IsNegative() {
		return fmt.Errorf("plan prices cannot be negative")
	}
	if p.MaxInterviewsPerMonth < 0 || p.MaxCVs < 0 || p.MaxBusinessCards < 0 {
		return fmt.Errorf("plan limits cannot be negative")
	}
	return nil
}

// Create will insert a new Plan after validating numeric fields and ID uniqueness
func (m *Manager) Create(ctx context.Context, p *Plan) error {
	if err := validatePlan(p); err != nil {
		return err
	}
	existing, err := m.Get(ctx, p.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("plan with id %s already exists", p.ID)
	}
	result := m.DB.WithContext(ctx).Create(p)
	if result.Error != nil {
		m.Logger.Error("Unable to create new plan in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create plan")
	}
	return nil
}

// Get will try to return the Plan by its id. A missing plan yields (nil, nil)
func (m *Manager) Get(ctx context.Context, id string) (*Plan, error) {
	var p Plan
	result := m.DB.WithContext(ctx).First(&p, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return &p, nil
}

// ListOption filters the plan listing
type ListOption struct {
	IncludeInactive bool
}

// List returns the catalog, active plans only unless IncludeInactive is set
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Plan, error) {
	baseQuery := m.DB.WithContext(ctx).Order("price_monthly asc")
	if !opt.IncludeInactive {
		baseQuery = baseQuery.Where("active = ?", true)
	}
	results := make([]Plan, 0, 4)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// UpdateOption is a partial merge over the mutable fields of a Plan. The ID
// is immutable after creation.
type UpdateOption struct {
	Name                  *string          `json:"name"`
	NameAr                *string          `json:"nameAr"`
	Description           *string          `json:"description"`
	DescriptionAr         *string          `json:"descriptionAr"`
	PriceMonthly          *decimal.Decimal `json:"priceMonthly"`
	PriceYearly           *decimal.Decimal `json:"priceYearly"`
	MaxInterviewsPerMonth *int             `json:"maxInterviewsPerMonth"`
	MaxCVs                *int             `json:"maxCvs"`
	MaxBusinessCards      *int             `json:"maxBusinessCards"`
	AIFeedback            *bool            `json:"aiFeedback"`
	AdvancedAnalytics     *bool            `json:"advancedAnalytics"`
	PrioritySupport       *bool            `json:"prioritySupport"`
	CustomBranding        *bool            `json:"customBranding"`
	Active                *bool            `json:"active"`
}

// Update applies the partial merge and returns the updated Plan
func (m *Manager) Update(ctx context.Context, id string, opt UpdateOption) (*Plan, error) {
	p, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	if opt.Name != nil {
		p.Name = *opt.Name
	}
	if opt.NameAr != nil {
		p.NameAr = *opt.NameAr
	}
	if opt.Description != nil {
		p.Description = *opt.Description
	}
	if opt.DescriptionAr != nil {
		p.DescriptionAr = *opt.DescriptionAr
	}
	if opt.PriceMonthly != nil {
		p.PriceMonthly = *opt.PriceMonthly
	}
	if opt.PriceYearly != nil {
		p.PriceYearly = *opt.PriceYearly
	}
	if opt.MaxInterviewsPerMonth != nil {
		p.MaxInterviewsPerMonth = *opt.MaxInterviewsPerMonth
	}
	if opt.MaxCVs != nil {
		p.MaxCVs = *opt.MaxCVs
	}
	if opt.MaxBusinessCards != nil {
		p.MaxBusinessCards = *opt.MaxBusinessCards
	}
	if opt.AIFeedback != nil {
		p.AIFeedback = *opt.AIFeedback
	}
	if opt.AdvancedAnalytics != nil {
		p.AdvancedAnalytics = *opt.AdvancedAnalytics
	}
	if opt.PrioritySupport != nil {
		p.PrioritySupport = *opt.PrioritySupport
	}
	if opt.CustomBranding != nil {
		p.CustomBranding = *opt.CustomBranding
	}
	if opt.Active != nil {
		p.Active = *opt.Active
	}

	if err := validatePlan(p); err != nil {
		return nil, err
	}

	result := m.DB.WithContext(ctx).Save(p)
	if result.Error != nil {
		m.Logger.Error("Unable to update plan in database",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot update plan")
	}
	return p, nil
}

// Delete removes a Plan from the catalog. Plans referenced by any
// subscription cannot be removed; deactivate them instead.
func (m *Manager) Delete(ctx context.Context, id string) error {
	var count int64
	result := m.DB.WithContext(ctx).Table("subscriptions").Where("plan_id = ?", id).Count(&count)
	if result.Error != nil {
		return extErrors.Wrap(result.Error, "Cannot check plan references")
	}
	if count > 0 {
		return ErrPlanInUse
	}
	result = m.DB.WithContext(ctx).Delete(&Plan{}, "id = ?", id)
	if result.Error != nil {
		return extErrors.Wrap(result.Error, "Cannot delete plan")
	}
	return nil
}
