package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/zonecraft/portal-backend/pkg/db/models"
	"github.com/zonecraft/portal-backend/pkg/enums"
	"github.com/zonecraft/portal-backend/pkg/pagination"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS ledger_transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  description TEXT NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedTransaction(t *testing.T, db *gorm.DB, userID uuid.UUID, amount string, status enums.LedgerTransactionStatus, createdAt time.Time) *models.LedgerTransaction {
	t.Helper()
	txn := &models.LedgerTransaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      decimal.RequireFromString(amount),
		Type:        enums.LedgerTransactionTypePlanPurchase,
		Status:      status,
		Description: "plan purchase: basic",
		CreatedAt:   createdAt,
	}
	require.NoError(t, db.Create(txn).Error)
	return txn
}

func TestRepositoryCreateAndFind(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	created := seedTransaction(t, db, userID, "-5.00", enums.LedgerTransactionStatusPending, time.Now().UTC())

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.True(t, found.Amount.Equal(decimal.RequireFromString("-5.00")))
	assert.Equal(t, enums.LedgerTransactionStatusPending, found.Status)
}

func TestRepositoryUpdateStatus(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	txn := seedTransaction(t, db, uuid.New(), "-5.00", enums.LedgerTransactionStatusPending, time.Now().UTC())

	require.NoError(t, repo.UpdateStatus(ctx, txn.ID, enums.LedgerTransactionStatusCompleted))
	found, err := repo.FindByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LedgerTransactionStatusCompleted, found.Status)

	err = repo.UpdateStatus(ctx, uuid.New(), enums.LedgerTransactionStatusFailed)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryListByUserPaginates(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var seeded []*models.LedgerTransaction
	for i := 0; i < 5; i++ {
		seeded = append(seeded, seedTransaction(t, db, userID, "-5.00", enums.LedgerTransactionStatusCompleted, base.Add(time.Duration(i)*time.Hour)))
	}
	// another user's row must never leak into the page
	seedTransaction(t, db, uuid.New(), "-99.00", enums.LedgerTransactionStatusCompleted, base)

	first, err := repo.ListByUser(ctx, userID, nil, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, seeded[4].ID, first[0].ID)
	assert.Equal(t, seeded[2].ID, first[2].ID)

	cursor := &pagination.Cursor{CreatedAt: first[2].CreatedAt, ID: first[2].ID}
	second, err := repo.ListByUser(ctx, userID, cursor, 3)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, seeded[1].ID, second[0].ID)
	assert.Equal(t, seeded[0].ID, second[1].ID)
}

func TestRepositorySumCompletedByUser(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	seedTransaction(t, db, userID, "-5.00", enums.LedgerTransactionStatusCompleted, now)
	seedTransaction(t, db, userID, "-12.00", enums.LedgerTransactionStatusCompleted, now)
	seedTransaction(t, db, userID, "5.00", enums.LedgerTransactionStatusCompleted, now)
	// pending and failed rows never count toward the net position
	seedTransaction(t, db, userID, "-7.00", enums.LedgerTransactionStatusPending, now)
	seedTransaction(t, db, userID, "-3.00", enums.LedgerTransactionStatusFailed, now)

	total, err := repo.SumCompletedByUser(ctx, userID)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("-12")), "got %s", total)

	empty, err := repo.SumCompletedByUser(ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}
