package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/zonecraft/portal-backend/pkg/db/models"
	"github.com/zonecraft/portal-backend/pkg/enums"
	pkgerrors "github.com/zonecraft/portal-backend/pkg/errors"
	"github.com/zonecraft/portal-backend/pkg/pagination"
)

type fakeRepository struct {
	createFn       func(ctx context.Context, txn *models.LedgerTransaction) error
	updateStatusFn func(ctx context.Context, id uuid.UUID, status enums.LedgerTransactionStatus) error
	listFn         func(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.LedgerTransaction, error)
	sumFn          func(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, txn *models.LedgerTransaction) error {
	if f.createFn != nil {
		return f.createFn(ctx, txn)
	}
	return nil
}

func (f *fakeRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.LedgerTransactionStatus) error {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, id, status)
	}
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerTransaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) ListByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.LedgerTransaction, error) {
	if f.listFn != nil {
		return f.listFn(ctx, userID, cursor, limit)
	}
	return nil, nil
}

func (f *fakeRepository) SumCompletedByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	if f.sumFn != nil {
		return f.sumFn(ctx, userID)
	}
	return decimal.Zero, nil
}

func (f *fakeRepository) ListRecentUserIDs(ctx context.Context, since int, limit int) ([]uuid.UUID, error) {
	return nil, nil
}

func TestService_RecordTransaction(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	input := RecordTransactionInput{
		UserID:      uuid.New(),
		Amount:      decimal.NewFromFloat(-5.00),
		Type:        enums.LedgerTransactionTypePlanPurchase,
		Description: "purchase of Starter plan",
	}

	var created *models.LedgerTransaction
	repo.createFn = func(ctx context.Context, txn *models.LedgerTransaction) error {
		created = txn
		return nil
	}

	got, err := svc.RecordTransaction(context.Background(), input)
	if err != nil {
		t.Fatalf("RecordTransaction error: %v", err)
	}
	if created == nil {
		t.Fatal("expected repository create to be called")
	}
	if got.Status != enums.LedgerTransactionStatusPending {
		t.Fatalf("expected default pending status, got %s", got.Status)
	}
	if !got.Amount.Equal(decimal.NewFromFloat(-5.00)) {
		t.Fatalf("unexpected amount %s", got.Amount)
	}
}

func TestService_RecordTransactionValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	tests := []struct {
		name  string
		input RecordTransactionInput
	}{
		{
			name: "missing user",
			input: RecordTransactionInput{
				Type:        enums.LedgerTransactionTypePlanPurchase,
				Description: "x",
			},
		},
		{
			name: "invalid type",
			input: RecordTransactionInput{
				UserID:      uuid.New(),
				Type:        enums.LedgerTransactionType("bogus"),
				Description: "x",
			},
		},
		{
			name: "missing description",
			input: RecordTransactionInput{
				UserID: uuid.New(),
				Type:   enums.LedgerTransactionTypePlanRefund,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordTransaction(context.Background(), tt.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation code, got %v", err)
			}
		})
	}
}

func TestService_MarkCompletedNotFound(t *testing.T) {
	repo := &fakeRepository{
		updateStatusFn: func(ctx context.Context, id uuid.UUID, status enums.LedgerTransactionStatus) error {
			return gorm.ErrRecordNotFound
		},
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	err = svc.MarkCompleted(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_ListByUserPaginates(t *testing.T) {
	userID := uuid.New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var rows []models.LedgerTransaction
	for i := 0; i < 30; i++ {
		rows = append(rows, models.LedgerTransaction{
			ID:        uuid.New(),
			UserID:    userID,
			Amount:    decimal.NewFromFloat(-1.00),
			Type:      enums.LedgerTransactionTypePlanPurchase,
			Status:    enums.LedgerTransactionStatusCompleted,
			CreatedAt: base.Add(time.Duration(-i) * time.Hour),
		})
	}

	repo := &fakeRepository{
		listFn: func(ctx context.Context, uid uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.LedgerTransaction, error) {
			if limit > len(rows) {
				limit = len(rows)
			}
			return rows[:limit], nil
		},
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	page, err := svc.ListByUser(context.Background(), userID, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(page.Transactions) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(page.Transactions))
	}
	if page.NextCursor == "" {
		t.Fatal("expected next cursor when more rows exist")
	}

	cursor, err := pagination.ParseCursor(page.NextCursor)
	if err != nil {
		t.Fatalf("parse returned cursor: %v", err)
	}
	if cursor.ID != page.Transactions[9].ID {
		t.Fatal("cursor should point at the last returned row")
	}
}

func TestService_SumByUser(t *testing.T) {
	repo := &fakeRepository{
		sumFn: func(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
			return decimal.NewFromFloat(-12.50), nil
		},
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	total, err := svc.SumByUser(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("sum error: %v", err)
	}
	if !total.Equal(decimal.NewFromFloat(-12.50)) {
		t.Fatalf("unexpected total %s", total)
	}
}
