package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zonecraft/portal-backend/pkg/enums"
)

// LedgerTransaction records an immutable monetary event. Amounts are signed;
// negative means a debit from the user. Rows are append-only except for the
// pending -> completed/failed status flip.
type LedgerTransaction struct {
	ID          uuid.UUID                     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID                     `gorm:"column:user_id;type:uuid;not null;index"`
	Amount      decimal.Decimal               `gorm:"column:amount;type:numeric(12,2);not null"`
	Type        enums.LedgerTransactionType   `gorm:"column:type;type:ledger_transaction_type;not null"`
	Status      enums.LedgerTransactionStatus `gorm:"column:status;type:ledger_transaction_status;not null;default:'pending'"`
	Description string                        `gorm:"column:description;not null"`
	CreatedAt   time.Time                     `gorm:"column:created_at;autoCreateTime"`
}
