package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zonecraft/portal-backend/api/responses"
	planssvc "github.com/zonecraft/portal-backend/internal/plans"
	"github.com/zonecraft/portal-backend/pkg/db/models"
	pkgerrors "github.com/zonecraft/portal-backend/pkg/errors"
	"github.com/zonecraft/portal-backend/pkg/logger"
)

type planResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	MonthlyPrice string    `json:"monthly_price"`
	MaxDomains   int       `json:"max_domains"`
	MaxRecords   int       `json:"max_records"`
	Features     []string  `json:"features"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// PlansList returns the purchasable catalog. Retired plans are hidden;
// they remain resolvable by id for existing subscribers.
func PlansList(svc planssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		plans, err := svc.List(r.Context(), true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]planResponse, 0, len(plans))
		for i := range plans {
			out = append(out, newPlanResponse(&plans[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func newPlanResponse(plan *models.Plan) planResponse {
	features := make([]string, len(plan.Features))
	copy(features, plan.Features)
	return planResponse{
		ID:           plan.ID,
		Name:         plan.Name,
		MonthlyPrice: plan.MonthlyPrice.StringFixed(2),
		MaxDomains:   plan.MaxDomains,
		MaxRecords:   plan.MaxRecords,
		Features:     features,
		IsActive:     plan.IsActive,
		CreatedAt:    plan.CreatedAt,
	}
}
