package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	resp "github.com/zllovesuki/prepme/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	PlanManager *Manager
	Logger      *zap.Logger
}

// Service is the plan catalog API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the plan catalog API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.PlanManager == nil {
		return nil, fmt.Errorf("nil PlanManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func (s *Service) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.PlanManager.List(r.Context(), ListOption{})
	if err != nil {
		s.Logger.Error("Unable to list plans",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the plan catalog"))
		return
	}
	resp.WriteResponse(w, r, plans)
}

func (s *Service) getPlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "id")
	p, err := s.PlanManager.Get(r.Context(), planID)
	if err != nil {
		s.Logger.Error("Unable to query plan",
			zap.Error(err),
			zap.String("PlanID", planID),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if p == nil || !p.Active {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find plan with specific ID"))
		return
	}
	resp.WriteResponse(w, r, p)
}

func (s *Service) adminCreatePlan(w http.ResponseWriter, r *http.Request) {
	var p Plan
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := s.PlanManager.Create(r.Context(), &p); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}
	resp.WriteResponse(w, r, p)
}

func (s *Service) adminUpdatePlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "id")
	var opt UpdateOption
	if err := json.NewDecoder(r.Body).Decode(&opt); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	p, err := s.PlanManager.Update(r.Context(), planID, opt)
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}
	if p == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find plan with specific ID"))
		return
	}
	resp.WriteResponse(w, r, p)
}

func (s *Service) adminDeletePlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "id")
	if err := s.PlanManager.Delete(r.Context(), planID); err != nil {
		if errors.Is(err, ErrPlanInUse) {
			resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
			return
		}
		s.Logger.Error("Unable to delete plan",
			zap.Error(err),
			zap.String("PlanID", planID),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, planID)
}

func (s *Service) adminListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.PlanManager.List(r.Context(), ListOption{IncludeInactive: true})
	if err != nil {
		s.Logger.Error("Unable to list plans",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, plans)
}

// Router will return the public routes under the plan catalog API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listPlans)
	r.Get("/{id}", s.getPlan)

	return r
}

// AdminRouter will return the admin routes for catalog management. The
// caller is responsible for gating it behind an authorization policy.
func (s *Service) AdminRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.adminListPlans)
	r.Post("/", s.adminCreatePlan)
	r.Put("/{id}", s.adminUpdatePlan)
	r.Delete("/{id}", s.adminDeletePlan)

	return r
}
