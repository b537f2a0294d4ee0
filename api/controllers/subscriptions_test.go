package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zonecraft/portal-backend/api/middleware"
	subsvc "github.com/zonecraft/portal-backend/internal/subscriptions"
	"github.com/zonecraft/portal-backend/pkg/db/models"
	"github.com/zonecraft/portal-backend/pkg/enums"
	pkgerrors "github.com/zonecraft/portal-backend/pkg/errors"
	"github.com/zonecraft/portal-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type stubSubscriptionService struct {
	purchaseInput  subsvc.PurchaseInput
	purchaseResult *subsvc.PurchaseResult
	purchaseErr    error

	changeInput  subsvc.ChangeInput
	changeResult *subsvc.ChangeResult
	changeErr    error

	cancelInput subsvc.CancelInput
	cancelErr   error

	active    *subsvc.ActiveSubscription
	activeErr error
}

func (s *stubSubscriptionService) Purchase(ctx context.Context, input subsvc.PurchaseInput) (*subsvc.PurchaseResult, error) {
	s.purchaseInput = input
	return s.purchaseResult, s.purchaseErr
}

func (s *stubSubscriptionService) Change(ctx context.Context, input subsvc.ChangeInput) (*subsvc.ChangeResult, error) {
	s.changeInput = input
	return s.changeResult, s.changeErr
}

func (s *stubSubscriptionService) Cancel(ctx context.Context, input subsvc.CancelInput) error {
	s.cancelInput = input
	return s.cancelErr
}

func (s *stubSubscriptionService) GetActive(ctx context.Context, userID uuid.UUID) (*subsvc.ActiveSubscription, error) {
	return s.active, s.activeErr
}

func authedRequest(method, target string, body []byte, userID uuid.UUID) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	return req
}

func TestSubscriptionPurchaseSuccess(t *testing.T) {
	userID := uuid.New()
	planID := uuid.New()
	txID := uuid.New()
	svc := &stubSubscriptionService{
		purchaseResult: &subsvc.PurchaseResult{
			Subscription: &models.Subscription{
				ID:      uuid.New(),
				UserID:  userID,
				PlanID:  planID,
				Status:  enums.SubscriptionStatusActive,
				EndDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			},
			Plan:                &models.Plan{ID: planID, Name: "basic", MonthlyPrice: decimal.RequireFromString("5.00")},
			TokensDebited:       500,
			LedgerTransactionID: txID,
		},
	}
	handler := SubscriptionPurchase(svc, testLogger())

	body, _ := json.Marshal(subscriptionPurchaseRequest{PlanID: planID.String()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/subscriptions", body, userID))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.purchaseInput.UserID != userID || svc.purchaseInput.PlanID != planID {
		t.Fatalf("service got wrong input: %+v", svc.purchaseInput)
	}

	var envelope struct {
		Data purchaseResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.TokensDebited != 500 {
		t.Fatalf("expected 500 tokens debited, got %d", envelope.Data.TokensDebited)
	}
	if envelope.Data.LedgerTransactionID != txID {
		t.Fatalf("expected ledger transaction id in payload")
	}
}

func TestSubscriptionPurchaseRequiresAuth(t *testing.T) {
	handler := SubscriptionPurchase(&stubSubscriptionService{}, testLogger())

	body, _ := json.Marshal(subscriptionPurchaseRequest{PlanID: uuid.NewString()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", bytes.NewReader(body)))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user context, got %d", resp.Code)
	}
}

func TestSubscriptionPurchaseRejectsBadBody(t *testing.T) {
	handler := SubscriptionPurchase(&stubSubscriptionService{}, testLogger())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/subscriptions", []byte(`{"plan_id":"not-a-uuid"}`), uuid.New()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid plan id, got %d", resp.Code)
	}
}

func TestSubscriptionPurchaseInsufficientFundsPassesDetails(t *testing.T) {
	svc := &stubSubscriptionService{
		purchaseErr: pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient token balance").
			WithDetails(map[string]int64{"required": 500, "available": 120}),
	}
	handler := SubscriptionPurchase(svc, testLogger())

	body, _ := json.Marshal(subscriptionPurchaseRequest{PlanID: uuid.NewString()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/subscriptions", body, uuid.New()))

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
	var envelope struct {
		Error struct {
			Details map[string]int64 `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Details["required"] != 500 || envelope.Error.Details["available"] != 120 {
		t.Fatalf("expected balance details, got %+v", envelope.Error.Details)
	}
}

func TestSubscriptionChangeForwardsKeepList(t *testing.T) {
	userID := uuid.New()
	targetPlanID := uuid.New()
	keepA, keepB := uuid.New(), uuid.New()
	svc := &stubSubscriptionService{
		changeResult: &subsvc.ChangeResult{
			Subscription:   &models.Subscription{ID: uuid.New(), PlanID: targetPlanID, Status: enums.SubscriptionStatusActive},
			ProratedAmount: decimal.RequireFromString("-10.20"),
			DomainsRemoved: 1,
			Eviction: &subsvc.EvictionResult{
				Successful: []string{"old.example"},
			},
			LedgerTransactionID: uuid.New(),
		},
	}
	handler := SubscriptionChange(svc, testLogger())

	body, _ := json.Marshal(subscriptionChangeRequest{
		TargetPlanID:  targetPlanID.String(),
		KeepDomainIDs: []string{keepA.String(), keepB.String()},
	})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/subscriptions/change", body, userID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.changeInput.KeepDomainIDs) != 2 || svc.changeInput.KeepDomainIDs[0] != keepA || svc.changeInput.KeepDomainIDs[1] != keepB {
		t.Fatalf("keep list not forwarded: %+v", svc.changeInput.KeepDomainIDs)
	}

	var envelope struct {
		Data changeResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ProratedAmount != "-10.20" {
		t.Fatalf("expected prorated amount -10.20, got %s", envelope.Data.ProratedAmount)
	}
	if envelope.Data.Eviction == nil || len(envelope.Data.Eviction.Successful) != 1 {
		t.Fatalf("expected eviction outcome in payload")
	}
}

func TestSubscriptionChangeSurfacesSettlementWarning(t *testing.T) {
	txID := uuid.New()
	svc := &stubSubscriptionService{
		changeResult: &subsvc.ChangeResult{
			Subscription:   &models.Subscription{ID: uuid.New(), Status: enums.SubscriptionStatusActive},
			ProratedAmount: decimal.RequireFromString("3.97"),
			SettlementWarning: &subsvc.SettlementWarning{
				Step:                "wallet_debit",
				LedgerTransactionID: txID,
				Error:               "wallet unreachable",
			},
			LedgerTransactionID: txID,
		},
	}
	handler := SubscriptionChange(svc, testLogger())

	body, _ := json.Marshal(subscriptionChangeRequest{TargetPlanID: uuid.NewString()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/subscriptions/change", body, uuid.New()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 despite settlement warning, got %d", resp.Code)
	}
	var envelope struct {
		Data changeResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.SettlementWarning == nil || envelope.Data.SettlementWarning.Step != "wallet_debit" {
		t.Fatalf("expected settlement warning in payload, got %+v", envelope.Data.SettlementWarning)
	}
}

func TestSubscriptionCancelParsesPathID(t *testing.T) {
	userID := uuid.New()
	subscriptionID := uuid.New()
	svc := &stubSubscriptionService{}

	r := chi.NewRouter()
	r.Post("/api/v1/subscriptions/{subscriptionId}/cancel", SubscriptionCancel(svc, testLogger()))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/subscriptions/"+subscriptionID.String()+"/cancel", nil, userID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.cancelInput.SubscriptionID != subscriptionID || svc.cancelInput.UserID != userID {
		t.Fatalf("service got wrong cancel input: %+v", svc.cancelInput)
	}
}

func TestSubscriptionCancelRejectsMalformedID(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/subscriptions/{subscriptionId}/cancel", SubscriptionCancel(&stubSubscriptionService{}, testLogger()))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/subscriptions/not-a-uuid/cancel", nil, uuid.New()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", resp.Code)
	}
}

func TestSubscriptionFetchActiveNotFound(t *testing.T) {
	svc := &stubSubscriptionService{
		activeErr: pkgerrors.New(pkgerrors.CodeNotFound, "no active subscription"),
	}
	handler := SubscriptionFetchActive(svc, testLogger())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/subscriptions/active", nil, uuid.New()))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestSubscriptionFetchActiveSuccess(t *testing.T) {
	planID := uuid.New()
	svc := &stubSubscriptionService{
		active: &subsvc.ActiveSubscription{
			Subscription: &models.Subscription{ID: uuid.New(), PlanID: planID, Status: enums.SubscriptionStatusActive},
			Plan:         &models.Plan{ID: planID, Name: "pro", MonthlyPrice: decimal.RequireFromString("12.00")},
		},
	}
	handler := SubscriptionFetchActive(svc, testLogger())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/subscriptions/active", nil, uuid.New()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var envelope struct {
		Data activeSubscriptionResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Plan == nil || envelope.Data.Plan.Name != "pro" {
		t.Fatalf("expected plan in payload, got %+v", envelope.Data.Plan)
	}
}
