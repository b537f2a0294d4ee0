package subscriptions

import (
	"github.com/google/uuid"

	pkgerrors "github.com/zonecraft/portal-backend/pkg/errors"
)

func errAlreadySubscribed() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "already subscribed to this plan")
}

func errConflictingPlan(activePlanID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "a different plan is already active; use the change workflow").
		WithDetails(map[string]any{"active_plan_id": activePlanID})
}

func errNoActiveSubscription() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "no active subscription")
}

func errAlreadyOnPlan() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is already on this plan")
}

func errInsufficientFunds(required, available int64) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient token balance").
		WithDetails(map[string]int64{"required": required, "available": available})
}

func errInvalidDomainSelection(need int, got int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "domain selection does not match the target quota").
		WithDetails(map[string]int{"need": need, "got": got})
}

func errExternalDebitFailed(err error, txID uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "external token debit failed").
		WithDetails(map[string]any{"ledger_transaction_id": txID})
}
