package plans

import (
	"context"
	"testing"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/zonecraft/portal-backend/pkg/db/models"
)

func TestRepositoryPlanReads(t *testing.T) {
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

	active := &models.Plan{
		Name:         "test-active",
		MonthlyPrice: decimal.NewFromFloat(5.00),
		MaxDomains:   5,
		MaxRecords:   250,
		Features:     pq.StringArray{"basic_dns"},
		IsActive:     true,
	}
	retired := &models.Plan{
		Name:         "test-retired",
		MonthlyPrice: decimal.NewFromFloat(2.00),
		MaxDomains:   1,
		MaxRecords:   50,
		Features:     pq.StringArray{"basic_dns"},
		IsActive:     false,
	}
	for _, plan := range []*models.Plan{active, retired} {
		if err := tx.Create(plan).Error; err != nil {
			t.Fatalf("seed plan: %v", err)
		}
	}

	all, err := repo.List(ctx, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	activeOnly, err := repo.List(ctx, true)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(all) < len(activeOnly) {
		t.Fatalf("active listing larger than full listing")
	}
	for _, plan := range activeOnly {
		if !plan.IsActive {
			t.Fatalf("retired plan %s leaked into active listing", plan.Name)
		}
	}

	found, err := repo.FindByID(ctx, active.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if !found.MonthlyPrice.Equal(active.MonthlyPrice) {
		t.Fatalf("expected price %s, got %s", active.MonthlyPrice, found.MonthlyPrice)
	}
}
