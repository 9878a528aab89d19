package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/zllovesuki/prepme/auth"
	"github.com/zllovesuki/prepme/broker"
	resp "github.com/zllovesuki/prepme/response"
	"github.com/zllovesuki/prepme/transaction"
	"github.com/zllovesuki/prepme/voucher"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// Stripe recommends capping webhook payloads it sends
const maxWebhookBodySize = 65536

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	SubscriptionManager *Manager
	TransactionManager  *transaction.Manager
	VoucherManager      *voucher.Manager
	Producer            broker.Producer
	Auth                *auth.Auth
	Logger              *zap.Logger
	WebhookSecret       string
}

// Service is the subscription API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the subscription API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.TransactionManager == nil {
		return nil, fmt.Errorf("nil TransactionManager is invalid")
	}
	if option.VoucherManager == nil {
		return nil, fmt.Errorf("nil VoucherManager is invalid")
	}
	if option.Producer == nil {
		return nil, fmt.Errorf("nil Producer is invalid")
	}
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if len(option.WebhookSecret) == 0 {
		return nil, fmt.Errorf("empty WebhookSecret is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func (s *Service) getCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	sub, err := s.SubscriptionManager.GetCurrent(ctx, claims.ID)
	if err != nil {
		s.Logger.Error("Unable to get current subscription",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if sub == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No subscription found"))
		return
	}
	resp.WriteResponse(w, r, sub)
}

// SubscribeRequest is the model for purchasing a subscription
type SubscribeRequest struct {
	PlanID      string       `json:"planId" validate:"required"`
	Cycle       BillingCycle `json:"billingCycle"`
	VoucherCode string       `json:"voucherCode"`
}

func (s *Service) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("planId is required"))
		return
	}
	if len(req.Cycle) == 0 {
		req.Cycle = CycleMonthly
	}

	result, err := s.SubscriptionManager.Subscribe(ctx, SubscribeOption{
		CustomerID:  claims.ID,
		PlanID:      req.PlanID,
		Cycle:       req.Cycle,
		VoucherCode: req.VoucherCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrPlanNotFound):
			resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find plan with specific ID"))
		case errors.Is(err, ErrPlanUnavailable),
			errors.Is(err, ErrPriceNotConfigured):
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		case errors.Is(err, ErrAlreadySubscribed):
			resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
		default:
			if reason, ok := voucherReason(err); ok {
				resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(reason))
				return
			}
			s.Logger.Error("Unable to create subscription",
				zap.String("PlanID", req.PlanID),
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrUnexpected())
		}
		return
	}
	resp.WriteResponse(w, r, result)
}

func voucherReason(err error) (string, bool) {
	for _, known := range []error{
		voucher.ErrNotFound,
		voucher.ErrInactive,
		voucher.ErrNotStarted,
		voucher.ErrExpired,
		voucher.ErrExhausted,
		voucher.ErrPlanMismatch,
		voucher.ErrAlreadyUsed,
	} {
		if errors.Is(err, known) {
			return known.Error(), true
		}
	}
	return "", false
}

// CancelRequest is the model for cancelling a subscription
type CancelRequest struct {
	Immediate bool `json:"immediate"`
}

func (s *Service) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	var req CancelRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			resp.WriteError(w, r, resp.ErrInvalidJson())
			return
		}
	}

	sub, err := s.SubscriptionManager.Cancel(ctx, claims.ID, req.Immediate)
	if err != nil {
		if errors.Is(err, ErrNoSubscription) {
			resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No active subscription found"))
			return
		}
		s.Logger.Error("Unable to cancel subscription",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, sub)
}

// FeatureUsage is one countable feature's position against its plan limit.
// Limit 0 means unlimited.
type FeatureUsage struct {
	Used    int  `json:"used"`
	Limit   int  `json:"limit"`
	Allowed bool `json:"allowed"`
}

// UsageReport is the full entitlement picture for the current subscription
type UsageReport struct {
	PlanID            string                   `json:"planId"`
	Status            Status                   `json:"status"`
	PeriodStart       time.Time                `json:"periodStart"`
	Counters          map[Feature]FeatureUsage `json:"counters"`
	AIFeedback        bool                     `json:"aiFeedback"`
	AdvancedAnalytics bool                     `json:"advancedAnalytics"`
	PrioritySupport   bool                     `json:"prioritySupport"`
	CustomBranding    bool                     `json:"customBranding"`
}

func (s *Service) getUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	sub, err := s.SubscriptionManager.GetCurrent(ctx, claims.ID)
	if err != nil {
		s.Logger.Error("Unable to get current subscription",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if sub == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No subscription found"))
		return
	}
	if err := s.SubscriptionManager.ApplyPeriodRollover(ctx, sub); err != nil {
		s.Logger.Error("Unable to roll usage period over",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	now := time.Now()
	report := UsageReport{
		PlanID:      sub.PlanID,
		Status:      sub.Status,
		PeriodStart: sub.UsageResetDate,
		Counters:    make(map[Feature]FeatureUsage),
	}
	for _, f := range []Feature{FeatureInterview, FeatureCV, FeatureBusinessCard} {
		report.Counters[f] = FeatureUsage{
			Used:    sub.UsedFor(f),
			Limit:   LimitFor(&sub.Plan, f),
			Allowed: CanUse(sub, &sub.Plan, f, now),
		}
	}
	report.AIFeedback = CanUse(sub, &sub.Plan, FeatureAIFeedback, now)
	report.AdvancedAnalytics = CanUse(sub, &sub.Plan, FeatureAdvancedAnalytics, now)
	report.PrioritySupport = CanUse(sub, &sub.Plan, FeaturePrioritySupport, now)
	report.CustomBranding = CanUse(sub, &sub.Plan, FeatureCustomBranding, now)

	resp.WriteResponse(w, r, report)
}

// FeatureRequest names the feature for a check or an increment
type FeatureRequest struct {
	Feature string `json:"feature" validate:"required"`
}

// CheckResponse is the entitlement verdict for one feature
type CheckResponse struct {
	Feature Feature `json:"feature"`
	Allowed bool    `json:"allowed"`
}

func (s *Service) checkFeature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	var req FeatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	f, ok := ParseFeature(req.Feature)
	if !ok {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Unknown feature"))
		return
	}

	allowed, _, err := s.SubscriptionManager.CheckFeature(ctx, claims.ID, f)
	if err != nil {
		s.Logger.Error("Unable to evaluate entitlement",
			zap.String("Feature", string(f)),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, CheckResponse{
		Feature: f,
		Allowed: allowed,
	})
}

func (s *Service) incrementUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	var req FeatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	f, ok := ParseFeature(req.Feature)
	if !ok {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Unknown feature"))
		return
	}

	sub, err := s.SubscriptionManager.IncrementUsage(ctx, claims.ID, f)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotCountable):
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		case errors.Is(err, ErrNoSubscription):
			resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No active subscription found"))
		case errors.Is(err, ErrEntitlementDenied):
			resp.WriteError(w, r, resp.ErrForbidden().AddMessages(err.Error()))
		case errors.Is(err, ErrConflict):
			resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
		default:
			s.Logger.Error("Unable to increment usage",
				zap.String("Feature", string(f)),
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrUnexpected())
		}
		return
	}
	resp.WriteResponse(w, r, sub)
}

func (s *Service) listTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}

	transactions, total, err := s.TransactionManager.List(ctx, transaction.ListOption{
		CustomerID: claims.ID,
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		s.Logger.Error("Unable to list transactions",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, resp.Paginated{
		Items:      transactions,
		Pagination: resp.NewPagination(page, perPage, total),
	})
}

// handleWebhook verifies the Stripe signature, reduces the event to the
// narrow billing Event, and hands it to the broker. The actual state
// transitions run in the task worker so the gateway gets its 200 fast.
func (s *Service) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest())
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), s.WebhookSecret)
	if err != nil {
		s.Logger.Warn("Rejecting webhook with invalid signature",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid signature"))
		return
	}

	var billingEvent *broker.Event
	switch event.Type {
	case "invoice.payment_succeeded", "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			s.Logger.Error("Unable to decode invoice from webhook",
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrBadRequest())
			return
		}
		if invoice.Subscription == nil {
			// one-off invoice, nothing for us
			break
		}
		eventType := broker.EventPaymentSucceeded
		amount := invoice.AmountPaid
		if event.Type == "invoice.payment_failed" {
			eventType = broker.EventPaymentFailed
			amount = invoice.AmountDue
		}
		billingEvent = &broker.Event{
			Type:                 eventType,
			StripeSubscriptionID: invoice.Subscription.ID,
			StripeInvoiceID:      invoice.ID,
			Amount:               decimal.New(amount, -2),
			Currency:             string(invoice.Currency),
			OccurredAt:           time.Now(),
		}
	case "customer.subscription.deleted":
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			s.Logger.Error("Unable to decode subscription from webhook",
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrBadRequest())
			return
		}
		billingEvent = &broker.Event{
			Type:                 broker.EventSubscriptionDeleted,
			StripeSubscriptionID: stripeSub.ID,
			OccurredAt:           time.Now(),
		}
	default:
		// unhandled event types still get a 200 so Stripe stops retrying
	}

	if billingEvent != nil {
		if err := s.Producer.PublishBillingEvent(r.Context(), *billingEvent); err != nil {
			s.Logger.Error("Unable to publish billing event",
				zap.String("EventType", string(billingEvent.Type)),
				zap.Error(err),
			)
			// non-200 makes Stripe redeliver later
			resp.WriteError(w, r, resp.ErrUnexpected())
			return
		}
	}

	resp.WriteResponse(w, r, "ok")
}

func (s *Service) adminListSubscriptions(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	subscriptions, total, err := s.SubscriptionManager.List(r.Context(), ListOption{
		CustomerID: r.URL.Query().Get("customerId"),
		Status:     Status(r.URL.Query().Get("status")),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		s.Logger.Error("Unable to list subscriptions",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, resp.Paginated{
		Items:      subscriptions,
		Pagination: resp.NewPagination(page, perPage, total),
	})
}

// Analytics is the admin dashboard summary
type Analytics struct {
	Subscriptions *Stats          `json:"subscriptions"`
	Vouchers      *voucher.Stats  `json:"vouchers"`
	Revenue30d    decimal.Decimal `json:"revenue30d"`
}

func (s *Service) adminAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subStats, err := s.SubscriptionManager.GetStats(ctx)
	if err != nil {
		s.Logger.Error("Unable to get subscription stats",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	voucherStats, err := s.VoucherManager.GetStats(ctx)
	if err != nil {
		s.Logger.Error("Unable to get voucher stats",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	revenue, err := s.TransactionManager.RevenueSince(ctx, time.Now().AddDate(0, 0, -30))
	if err != nil {
		s.Logger.Error("Unable to sum recent revenue",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteResponse(w, r, Analytics{
		Subscriptions: subStats,
		Vouchers:      voucherStats,
		Revenue30d:    revenue,
	})
}

func (s *Service) adminListTransactions(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	transactions, total, err := s.TransactionManager.List(r.Context(), transaction.ListOption{
		CustomerID: r.URL.Query().Get("customerId"),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		s.Logger.Error("Unable to list transactions",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, resp.Paginated{
		Items:      transactions,
		Pagination: resp.NewPagination(page, perPage, total),
	})
}

// Router will return the routes under subscription API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	// Stripe signs this one; auth middleware would reject it
	r.Post("/webhook", s.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Middleware())
		r.Use(s.Auth.ClaimCheck())

		r.Get("/current", s.getCurrent)
		r.Post("/", s.subscribe)
		r.Post("/cancel", s.cancel)
		r.Get("/usage", s.getUsage)
		r.Post("/usage", s.incrementUsage)
		r.Post("/check", s.checkFeature)
		r.Get("/transactions", s.listTransactions)
	})

	return r
}

// AdminRouter will return the admin routes for subscription oversight. The
// caller is responsible for gating it behind an authorization policy.
func (s *Service) AdminRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.adminListSubscriptions)
	r.Get("/transactions", s.adminListTransactions)
	r.Get("/analytics", s.adminAnalytics)

	return r
}
