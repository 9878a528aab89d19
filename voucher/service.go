package voucher

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/zllovesuki/prepme/auth"
	resp "github.com/zllovesuki/prepme/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	VoucherManager *Manager
	Logger         *zap.Logger
}

// Service is the voucher API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the voucher API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.VoucherManager == nil {
		return nil, fmt.Errorf("nil VoucherManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// ValidateRequest is the model for a pre-purchase voucher check
type ValidateRequest struct {
	Code   string `json:"code" validate:"required"`
	PlanID string `json:"planId"`
}

// ValidateResponse carries the outcome of a voucher check. An invalid
// voucher is a 200 with Valid=false and the distinct reason, not an error.
type ValidateResponse struct {
	Valid   bool     `json:"valid"`
	Reason  string   `json:"reason,omitempty"`
	Voucher *Voucher `json:"voucher,omitempty"`
}

func (s *Service) validateVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("code is required"))
		return
	}

	// validation works pre-login too; claims are optional here
	var customerID string
	if claims, ok := ctx.Value(auth.Context).(*auth.Claims); ok {
		customerID = claims.ID
	}

	v, err := s.VoucherManager.Validate(ctx, ValidateOption{
		Code:       req.Code,
		CustomerID: customerID,
		PlanID:     req.PlanID,
	})
	if err != nil {
		if reason, ok := validationReason(err); ok {
			resp.WriteResponse(w, r, ValidateResponse{
				Valid:  false,
				Reason: reason,
			})
			return
		}
		s.Logger.Error("Unable to validate voucher",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteResponse(w, r, ValidateResponse{
		Valid:   true,
		Voucher: v,
	})
}

func validationReason(err error) (string, bool) {
	for _, known := range []error{
		ErrNotFound,
		ErrInactive,
		ErrNotStarted,
		ErrExpired,
		ErrExhausted,
		ErrPlanMismatch,
		ErrAlreadyUsed,
	} {
		if errors.Is(err, known) {
			return known.Error(), true
		}
	}
	return "", false
}

// CreateRequest is the model for creating a voucher
type CreateRequest struct {
	Code             string          `json:"code" validate:"required"`
	Description      string          `json:"description"`
	DiscountType     DiscountType    `json:"discountType" validate:"required"`
	DiscountValue    decimal.Decimal `json:"discountValue"`
	Currency         string          `json:"currency"`
	MaxUses          int             `json:"maxUses" validate:"required,min=1"`
	SingleUsePerUser *bool           `json:"singleUsePerUser"`
	ValidFrom        *time.Time      `json:"validFrom"`
	ValidUntil       time.Time       `json:"validUntil" validate:"required"`
	ApplicablePlans  []string        `json:"applicablePlans"`
}

func (s *Service) adminCreateVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	v := Voucher{
		Code:             req.Code,
		Description:      req.Description,
		DiscountType:     req.DiscountType,
		DiscountValue:    req.DiscountValue,
		Currency:         req.Currency,
		MaxUses:          req.MaxUses,
		SingleUsePerUser: true,
		ValidUntil:       req.ValidUntil,
		ApplicablePlans:  req.ApplicablePlans,
		Active:           true,
		CreatedBy:        claims.ID,
	}
	if len(v.Currency) == 0 {
		v.Currency = "USD"
	}
	if req.SingleUsePerUser != nil {
		v.SingleUsePerUser = *req.SingleUsePerUser
	}
	if req.ValidFrom != nil {
		v.ValidFrom = *req.ValidFrom
	}

	if err := s.VoucherManager.Create(ctx, &v); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}
	resp.WriteResponse(w, r, v)
}

func (s *Service) adminUpdateVoucher(w http.ResponseWriter, r *http.Request) {
	voucherID := chi.URLParam(r, "id")
	var opt UpdateOption
	if err := json.NewDecoder(r.Body).Decode(&opt); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	v, err := s.VoucherManager.Update(r.Context(), voucherID, opt)
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}
	if v == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find voucher with specific ID"))
		return
	}
	resp.WriteResponse(w, r, v)
}

func (s *Service) adminListVouchers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	vouchers, total, err := s.VoucherManager.List(r.Context(), ListOption{
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		s.Logger.Error("Unable to list vouchers",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, resp.Paginated{
		Items:      vouchers,
		Pagination: resp.NewPagination(page, perPage, total),
	})
}

// Router will return the public routes under the voucher API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/validate", s.validateVoucher)

	return r
}

// AdminRouter will return the admin routes for ledger management. The
// caller is responsible for gating it behind an authorization policy.
func (s *Service) AdminRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.adminListVouchers)
	r.Post("/", s.adminCreateVoucher)
	r.Put("/{id}", s.adminUpdateVoucher)

	return r
}
