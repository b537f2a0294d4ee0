package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/zonecraft/portal-backend/pkg/db/models"
	"github.com/zonecraft/portal-backend/pkg/enums"
	pkgerrors "github.com/zonecraft/portal-backend/pkg/errors"
	"github.com/zonecraft/portal-backend/pkg/pagination"
)

// Service defines operations that record monetary events.
type Service interface {
	RecordTransaction(ctx context.Context, input RecordTransactionInput) (*models.LedgerTransaction, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	SumByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error)
}

type service struct {
	repo Repository
}

// RecordTransactionInput captures the immutable data a ledger row requires.
// Amount is signed currency units; negative means a debit from the user.
type RecordTransactionInput struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Type        enums.LedgerTransactionType
	Status      enums.LedgerTransactionStatus
	Description string
}

// TransactionPage is one page of a user's ledger history.
type TransactionPage struct {
	Transactions []models.LedgerTransaction
	NextCursor   string
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RecordTransaction(ctx context.Context, input RecordTransactionInput) (*models.LedgerTransaction, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", input.Type))
	}
	status := input.Status
	if status == "" {
		status = enums.LedgerTransactionStatusPending
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction status %q", status))
	}
	if input.Description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}

	txn := &models.LedgerTransaction{
		UserID:      input.UserID,
		Amount:      input.Amount,
		Type:        input.Type,
		Status:      status,
		Description: input.Description,
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record ledger transaction")
	}
	return txn, nil
}

func (s *service) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return s.updateStatus(ctx, id, enums.LedgerTransactionStatusCompleted)
}

func (s *service) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return s.updateStatus(ctx, id, enums.LedgerTransactionStatusFailed)
}

func (s *service) updateStatus(ctx context.Context, id uuid.UUID, status enums.LedgerTransactionStatus) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "ledger transaction not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update ledger transaction status")
	}
	return nil
}

func (s *service) SumByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	if userID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	total, err := s.repo.SumCompletedByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger transactions")
	}
	return total, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	txns, err := s.repo.ListByUser(ctx, userID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger transactions")
	}

	page := &TransactionPage{Transactions: txns}
	if len(txns) > limit {
		page.Transactions = txns[:limit]
		last := page.Transactions[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}
