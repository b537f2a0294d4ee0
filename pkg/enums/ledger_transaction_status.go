package enums

import "fmt"

// LedgerTransactionStatus maps to the ledger_transaction_status enum in Postgres.
type LedgerTransactionStatus string

const (
	LedgerTransactionStatusPending   LedgerTransactionStatus = "pending"
	LedgerTransactionStatusCompleted LedgerTransactionStatus = "completed"
	LedgerTransactionStatusFailed    LedgerTransactionStatus = "failed"
)

var validLedgerTransactionStatuses = []LedgerTransactionStatus{
	LedgerTransactionStatusPending,
	LedgerTransactionStatusCompleted,
	LedgerTransactionStatusFailed,
}

// IsValid reports whether the value is known.
func (s LedgerTransactionStatus) IsValid() bool {
	for _, candidate := range validLedgerTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLedgerTransactionStatus converts raw input into LedgerTransactionStatus.
func ParseLedgerTransactionStatus(value string) (LedgerTransactionStatus, error) {
	for _, candidate := range validLedgerTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger transaction status %q", value)
}
