package enums

import "fmt"

// LedgerTransactionType maps to the ledger_transaction_type enum in Postgres.
type LedgerTransactionType string

const (
	LedgerTransactionTypePlanPurchase  LedgerTransactionType = "plan_purchase"
	LedgerTransactionTypePlanUpgrade   LedgerTransactionType = "plan_upgrade"
	LedgerTransactionTypePlanDowngrade LedgerTransactionType = "plan_downgrade"
	LedgerTransactionTypePlanRefund    LedgerTransactionType = "plan_refund"
	LedgerTransactionTypeAutoDeduction LedgerTransactionType = "auto_deduction"
)

var validLedgerTransactionTypes = []LedgerTransactionType{
	LedgerTransactionTypePlanPurchase,
	LedgerTransactionTypePlanUpgrade,
	LedgerTransactionTypePlanDowngrade,
	LedgerTransactionTypePlanRefund,
	LedgerTransactionTypeAutoDeduction,
}

// IsValid reports whether the value matches the canonical enum.
func (t LedgerTransactionType) IsValid() bool {
	for _, candidate := range validLedgerTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerTransactionType converts raw input into LedgerTransactionType.
func ParseLedgerTransactionType(value string) (LedgerTransactionType, error) {
	for _, candidate := range validLedgerTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger transaction type %q", value)
}
