package subscriptions

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zonecraft/portal-backend/pkg/db/models"
)

// PurchaseInput starts a subscription on a plan.
type PurchaseInput struct {
	UserID uuid.UUID
	PlanID uuid.UUID
}

// PurchaseResult reports the created subscription and money moved.
type PurchaseResult struct {
	Subscription        *models.Subscription
	Plan                *models.Plan
	TokensDebited       int64
	LedgerTransactionID uuid.UUID
}

// ChangeInput switches the active subscription to a different plan.
// KeepDomainIDs is required only for quota-reducing downgrades where the
// user's domain count exceeds the target quota.
type ChangeInput struct {
	UserID        uuid.UUID
	TargetPlanID  uuid.UUID
	KeepDomainIDs []uuid.UUID
}

// ChangeResult reports the plan transition, the signed prorated amount
// (negative = refund to the user), and eviction/settlement outcomes.
type ChangeResult struct {
	Subscription        *models.Subscription
	OldPlan             *models.Plan
	NewPlan             *models.Plan
	ProratedAmount      decimal.Decimal
	DomainsRemoved      int
	Eviction            *EvictionResult
	SettlementWarning   *SettlementWarning
	LedgerTransactionID uuid.UUID
}

// CancelInput ends a subscription. No money moves.
type CancelInput struct {
	UserID         uuid.UUID
	SubscriptionID uuid.UUID
}

// ActiveSubscription pairs the active subscription with its plan.
type ActiveSubscription struct {
	Subscription *models.Subscription
	Plan         *models.Plan
}

// EvictionResult is the per-domain outcome of the quota-eviction sub-saga.
// Partial failure is reported here, never raised as an error.
type EvictionResult struct {
	Successful          []string          `json:"successful"`
	Failed              []EvictionFailure `json:"failed"`
	SkippedNoExternalID []string          `json:"skipped_no_external_id"`
}

// EvictionFailure names one domain that could not be removed and why.
type EvictionFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// SettlementWarning flags a post-commit token settlement that failed. The
// plan change itself is final; the ledger row stays pending/failed for
// manual reconciliation keyed by the transaction id.
type SettlementWarning struct {
	Step                string    `json:"step"`
	LedgerTransactionID uuid.UUID `json:"ledger_transaction_id"`
	Error               string    `json:"error"`
}
