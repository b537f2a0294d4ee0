package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/zonecraft/portal-backend/pkg/db/models"
	"github.com/zonecraft/portal-backend/pkg/enums"
)

func seedUser(t *testing.T, tx *gorm.DB) *models.User {
	t.Helper()
	suffix := uuid.NewString()
	user := &models.User{
		Email:             fmt.Sprintf("billing-%s@example.com", suffix),
		ExternalBillingID: fmt.Sprintf("acct_%s", suffix),
	}
	if err := tx.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedPlan(t *testing.T, tx *gorm.DB, price string) *models.Plan {
	t.Helper()
	plan := &models.Plan{
		Name:         fmt.Sprintf("test-%s", uuid.NewString()),
		MonthlyPrice: decimal.RequireFromString(price),
		MaxDomains:   5,
		MaxRecords:   250,
		IsActive:     true,
	}
	if err := tx.Create(plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return plan
}

func seedSubscription(t *testing.T, tx *gorm.DB, user *models.User, plan *models.Plan) *models.Subscription {
	t.Helper()
	now := time.Now().UTC()
	end := now.AddDate(0, 1, 0)
	sub := &models.Subscription{
		UserID:          user.ID,
		PlanID:          plan.ID,
		Status:          enums.SubscriptionStatusActive,
		StartDate:       now,
		EndDate:         end,
		AutoRenew:       true,
		LastPaymentDate: &now,
		NextPaymentDate: &end,
	}
	if err := tx.Create(sub).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}

func TestRepositorySubscriptionLifecycle(t *testing.T) {
	conn := openTestDB(t)
	tx := conn.Begin()
	if tx.Error != nil {
		t.Fatalf("begin tx: %v", tx.Error)
	}
	t.Cleanup(func() {
		_ = tx.Rollback()
	})

	repo := NewRepository(tx)
	ctx := context.Background()
	user := seedUser(t, tx)
	plan := seedPlan(t, tx, "5.00")

	_, err := repo.FindActiveByUser(ctx, user.ID)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}

	sub := seedSubscription(t, tx, user, plan)

	found, err := repo.FindActiveByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if found.ID != sub.ID {
		t.Fatalf("expected subscription %s, got %s", sub.ID, found.ID)
	}

	locked, err := repo.FindActiveByUserForUpdate(ctx, user.ID)
	if err != nil {
		t.Fatalf("find active for update: %v", err)
	}
	if locked.ID != sub.ID {
		t.Fatalf("expected locked read of %s, got %s", sub.ID, locked.ID)
	}

	// Cancelling with the wrong owner must not touch the row.
	rows, err := repo.CancelSubscription(ctx, sub.ID, uuid.New())
	if err != nil {
		t.Fatalf("cancel with foreign user: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected 0 rows for foreign user, got %d", rows)
	}

	rows, err = repo.CancelSubscription(ctx, sub.ID, user.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected 1 row cancelled, got %d", rows)
	}

	// Cancelled rows are invisible to the active lookup and to re-cancels.
	if _, err := repo.FindActiveByUser(ctx, user.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found after cancel, got %v", err)
	}
	rows, err = repo.CancelSubscription(ctx, sub.ID, user.ID)
	if err != nil {
		t.Fatalf("re-cancel: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected 0 rows on re-cancel, got %d", rows)
	}

	cancelled, err := repo.FindSubscriptionByID(ctx, sub.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if cancelled.Status != enums.SubscriptionStatusCancelled || cancelled.AutoRenew {
		t.Fatalf("expected cancelled row with auto_renew off, got %+v", cancelled)
	}
}

func TestRepositoryCancelAllActiveForUser(t *testing.T) {
	conn := openTestDB(t)
	tx := conn.Begin()
	if tx.Error != nil {
		t.Fatalf("begin tx: %v", tx.Error)
	}
	t.Cleanup(func() {
		_ = tx.Rollback()
	})

	repo := NewRepository(tx)
	ctx := context.Background()
	user := seedUser(t, tx)
	plan := seedPlan(t, tx, "12.00")
	seedSubscription(t, tx, user, plan)

	rows, err := repo.CancelAllActiveForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("cancel all: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected 1 row, got %d", rows)
	}

	rows, err = repo.CancelAllActiveForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("cancel all again: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected 0 rows on repeat, got %d", rows)
	}
}

func TestRepositoryDomainQueries(t *testing.T) {
	conn := openTestDB(t)
	tx := conn.Begin()
	if tx.Error != nil {
		t.Fatalf("begin tx: %v", tx.Error)
	}
	t.Cleanup(func() {
		_ = tx.Rollback()
	})

	repo := NewRepository(tx)
	ctx := context.Background()
	owner := seedUser(t, tx)
	stranger := seedUser(t, tx)

	externalID := "zone-" + uuid.NewString()
	domains := []*models.ManagedDomain{
		{UserID: owner.ID, Name: fmt.Sprintf("alpha-%s.example", uuid.NewString()), ExternalID: &externalID},
		{UserID: owner.ID, Name: fmt.Sprintf("beta-%s.example", uuid.NewString())},
		{UserID: stranger.ID, Name: fmt.Sprintf("other-%s.example", uuid.NewString())},
	}
	for _, domain := range domains {
		if err := tx.Create(domain).Error; err != nil {
			t.Fatalf("seed domain: %v", err)
		}
	}

	count, err := repo.CountDomainsByUser(ctx, owner.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 domains, got %d", count)
	}

	listed, err := repo.ListDomainsByUser(ctx, owner.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 listed domains, got %d", len(listed))
	}

	// Ownership scoping: asking for the stranger's domain yields nothing.
	found, err := repo.FindDomainsByIDs(ctx, owner.ID, []uuid.UUID{domains[0].ID, domains[2].ID})
	if err != nil {
		t.Fatalf("find by ids: %v", err)
	}
	if len(found) != 1 || found[0].ID != domains[0].ID {
		t.Fatalf("expected only the owner's domain, got %+v", found)
	}

	if err := repo.DeleteDomainByID(ctx, domains[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	count, err = repo.CountDomainsByUser(ctx, owner.ID)
	if err != nil {
		t.Fatalf("recount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 domain after delete, got %d", count)
	}
}
