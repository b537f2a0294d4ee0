package cron

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/zonecraft/portal-backend/pkg/db/models"
	"github.com/zonecraft/portal-backend/pkg/logger"
	pkgerrors "github.com/zonecraft/portal-backend/pkg/errors"
	"github.com/zonecraft/portal-backend/pkg/tokenwallet"
)

type fakeBalanceLedger struct {
	userIDs  []uuid.UUID
	sums     map[uuid.UUID]decimal.Decimal
	gotHours int
	gotLimit int
}

func (f *fakeBalanceLedger) ListRecentUserIDs(ctx context.Context, sinceHours int, limit int) ([]uuid.UUID, error) {
	f.gotHours = sinceHours
	f.gotLimit = limit
	return f.userIDs, nil
}

func (f *fakeBalanceLedger) SumCompletedByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return f.sums[userID], nil
}

type fakeBalanceUsers struct {
	users map[uuid.UUID]*models.User
}

func (f *fakeBalanceUsers) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

type fakeBalanceWallet struct {
	balances map[string]int64
	errs     map[string]error
	reads    []string
}

func (f *fakeBalanceWallet) GetBalance(ctx context.Context, accountID string) (*tokenwallet.Balance, error) {
	f.reads = append(f.reads, accountID)
	if err := f.errs[accountID]; err != nil {
		return nil, err
	}
	return &tokenwallet.Balance{AccountID: accountID, Tokens: f.balances[accountID]}, nil
}

func TestBalanceReconcileJobSweep(t *testing.T) {
	clean := uuid.New()
	drifted := uuid.New()
	deleted := uuid.New()
	broken := uuid.New()

	ledgerRepo := &fakeBalanceLedger{
		userIDs: []uuid.UUID{clean, drifted, deleted, broken},
		sums: map[uuid.UUID]decimal.Decimal{
			clean:   decimal.RequireFromString("-5.00"),
			drifted: decimal.RequireFromString("-12.00"),
			broken:  decimal.RequireFromString("-1.00"),
		},
	}
	userRepo := &fakeBalanceUsers{users: map[uuid.UUID]*models.User{
		clean:   {ID: clean, ExternalBillingID: "acct_clean"},
		drifted: {ID: drifted, ExternalBillingID: "acct_drifted"},
		broken:  {ID: broken, ExternalBillingID: "acct_broken"},
	}}
	wallet := &fakeBalanceWallet{
		balances: map[string]int64{
			"acct_clean":   -500,
			"acct_drifted": -800, // ledger says -1200
		},
		errs: map[string]error{
			"acct_broken": pkgerrors.New(pkgerrors.CodeDependency, "wallet unavailable"),
		},
	}

	job, err := NewBalanceReconcileJob(BalanceReconcileJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		LedgerRepo: ledgerRepo,
		UserRepo:   userRepo,
		Wallet:     wallet,
		Lookback:   168 * time.Hour,
		Limit:      250,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	runErr := job.Run(context.Background())
	if runErr == nil {
		t.Fatal("expected the broken wallet read to surface in the aggregate error")
	}
	if ledgerRepo.gotHours != 168 || ledgerRepo.gotLimit != 250 {
		t.Fatalf("unexpected sweep window hours=%d limit=%d", ledgerRepo.gotHours, ledgerRepo.gotLimit)
	}

	// The deleted user is skipped without a wallet read; everyone else is read
	// even after an earlier user errors.
	if len(wallet.reads) != 3 {
		t.Fatalf("expected 3 wallet reads, got %v", wallet.reads)
	}
	for _, read := range wallet.reads {
		if read == "acct_deleted" {
			t.Fatal("missing users must not reach the wallet")
		}
	}
}

func TestBalanceReconcileJobName(t *testing.T) {
	job, err := NewBalanceReconcileJob(BalanceReconcileJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		LedgerRepo: &fakeBalanceLedger{},
		UserRepo:   &fakeBalanceUsers{},
		Wallet:     &fakeBalanceWallet{},
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "balance-reconcile" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
}
