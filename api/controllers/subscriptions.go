package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zonecraft/portal-backend/api/middleware"
	"github.com/zonecraft/portal-backend/api/responses"
	"github.com/zonecraft/portal-backend/api/validators"
	subsvc "github.com/zonecraft/portal-backend/internal/subscriptions"
	"github.com/zonecraft/portal-backend/pkg/db/models"
	pkgerrors "github.com/zonecraft/portal-backend/pkg/errors"
	"github.com/zonecraft/portal-backend/pkg/logger"
)

type subscriptionPurchaseRequest struct {
	PlanID string `json:"plan_id" validate:"required,uuid"`
}

type subscriptionChangeRequest struct {
	TargetPlanID  string   `json:"target_plan_id" validate:"required,uuid"`
	KeepDomainIDs []string `json:"keep_domain_ids,omitempty" validate:"dive,uuid"`
}

type subscriptionResponse struct {
	ID              uuid.UUID  `json:"id"`
	PlanID          uuid.UUID  `json:"plan_id"`
	Status          string     `json:"status"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `json:"end_date"`
	AutoRenew       bool       `json:"auto_renew"`
	LastPaymentDate *time.Time `json:"last_payment_date,omitempty"`
	NextPaymentDate *time.Time `json:"next_payment_date,omitempty"`
}

type purchaseResponse struct {
	Subscription        *subscriptionResponse `json:"subscription"`
	Plan                *planResponse         `json:"plan,omitempty"`
	TokensDebited       int64                 `json:"tokens_debited"`
	LedgerTransactionID uuid.UUID             `json:"ledger_transaction_id"`
}

type changeResponse struct {
	Subscription        *subscriptionResponse     `json:"subscription"`
	OldPlan             *planResponse             `json:"old_plan,omitempty"`
	NewPlan             *planResponse             `json:"new_plan,omitempty"`
	ProratedAmount      string                    `json:"prorated_amount"`
	DomainsRemoved      int                       `json:"domains_removed"`
	Eviction            *subsvc.EvictionResult    `json:"eviction,omitempty"`
	SettlementWarning   *subsvc.SettlementWarning `json:"settlement_warning,omitempty"`
	LedgerTransactionID uuid.UUID                 `json:"ledger_transaction_id"`
}

type activeSubscriptionResponse struct {
	Subscription *subscriptionResponse `json:"subscription"`
	Plan         *planResponse         `json:"plan,omitempty"`
}

func SubscriptionPurchase(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := middleware.ResolveUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload subscriptionPurchaseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		planID, err := validators.ParsePathUUID(payload.PlanID, "plan_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Purchase(r.Context(), subsvc.PurchaseInput{
			UserID: userID,
			PlanID: planID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newPurchaseResponse(result))
	}
}

func SubscriptionChange(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := middleware.ResolveUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload subscriptionChangeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		targetPlanID, err := validators.ParsePathUUID(payload.TargetPlanID, "target_plan_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		keep := make([]uuid.UUID, 0, len(payload.KeepDomainIDs))
		for _, raw := range payload.KeepDomainIDs {
			id, err := validators.ParsePathUUID(raw, "keep_domain_ids")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			keep = append(keep, id)
		}

		result, err := svc.Change(r.Context(), subsvc.ChangeInput{
			UserID:        userID,
			TargetPlanID:  targetPlanID,
			KeepDomainIDs: keep,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newChangeResponse(result))
	}
}

func SubscriptionCancel(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := middleware.ResolveUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subscriptionID, err := validators.ParsePathUUID(chi.URLParam(r, "subscriptionId"), "subscriptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Cancel(r.Context(), subsvc.CancelInput{
			UserID:         userID,
			SubscriptionID: subscriptionID,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}

func SubscriptionFetchActive(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := middleware.ResolveUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		active, err := svc.GetActive(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, &activeSubscriptionResponse{
			Subscription: newSubscriptionResponse(active.Subscription),
			Plan:         newPlanResponsePtr(active.Plan),
		})
	}
}

func newSubscriptionResponse(sub *models.Subscription) *subscriptionResponse {
	if sub == nil {
		return nil
	}
	return &subscriptionResponse{
		ID:              sub.ID,
		PlanID:          sub.PlanID,
		Status:          string(sub.Status),
		StartDate:       sub.StartDate,
		EndDate:         sub.EndDate,
		AutoRenew:       sub.AutoRenew,
		LastPaymentDate: sub.LastPaymentDate,
		NextPaymentDate: sub.NextPaymentDate,
	}
}

func newPlanResponsePtr(plan *models.Plan) *planResponse {
	if plan == nil {
		return nil
	}
	resp := newPlanResponse(plan)
	return &resp
}

func newPurchaseResponse(result *subsvc.PurchaseResult) *purchaseResponse {
	if result == nil {
		return nil
	}
	return &purchaseResponse{
		Subscription:        newSubscriptionResponse(result.Subscription),
		Plan:                newPlanResponsePtr(result.Plan),
		TokensDebited:       result.TokensDebited,
		LedgerTransactionID: result.LedgerTransactionID,
	}
}

func newChangeResponse(result *subsvc.ChangeResult) *changeResponse {
	if result == nil {
		return nil
	}
	return &changeResponse{
		Subscription:        newSubscriptionResponse(result.Subscription),
		OldPlan:             newPlanResponsePtr(result.OldPlan),
		NewPlan:             newPlanResponsePtr(result.NewPlan),
		ProratedAmount:      result.ProratedAmount.StringFixed(2),
		DomainsRemoved:      result.DomainsRemoved,
		Eviction:            result.Eviction,
		SettlementWarning:   result.SettlementWarning,
		LedgerTransactionID: result.LedgerTransactionID,
	}
}
