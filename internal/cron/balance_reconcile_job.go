package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/zonecraft/portal-backend/pkg/db/models"
	"github.com/zonecraft/portal-backend/pkg/logger"
	"github.com/zonecraft/portal-backend/pkg/metrics"
	"github.com/zonecraft/portal-backend/pkg/tokenwallet"
)

const (
	defaultReconcileLookback = 168 * time.Hour
	defaultReconcileLimit    = 250
	tokensPerUnit            = 100
)

type balanceLedgerRepository interface {
	ListRecentUserIDs(ctx context.Context, sinceHours int, limit int) ([]uuid.UUID, error)
	SumCompletedByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}

type balanceUserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type walletBalanceReader interface {
	GetBalance(ctx context.Context, accountID string) (*tokenwallet.Balance, error)
}

// BalanceReconcileJobParams configures the nightly balance sweep.
type BalanceReconcileJobParams struct {
	Logger     *logger.Logger
	LedgerRepo balanceLedgerRepository
	UserRepo   balanceUserRepository
	Wallet     walletBalanceReader
	Metrics    *metrics.BillingMetrics
	Lookback   time.Duration
	Limit      int
}

// NewBalanceReconcileJob builds the job that compares each recently active
// user's net ledger position against their wallet balance. The job only
// observes and reports: post-commit settlement failures and provider-side
// auto-deductions both surface here as drift, and correcting them is an
// operator decision, never an automated write.
func NewBalanceReconcileJob(params BalanceReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.LedgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("token wallet client required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &balanceReconcileJob{
		logg:       params.Logger,
		ledgerRepo: params.LedgerRepo,
		userRepo:   params.UserRepo,
		wallet:     params.Wallet,
		metrics:    params.Metrics,
		lookback:   lookback,
		limit:      limit,
	}, nil
}

type balanceReconcileJob struct {
	logg       *logger.Logger
	ledgerRepo balanceLedgerRepository
	userRepo   balanceUserRepository
	wallet     walletBalanceReader
	metrics    *metrics.BillingMetrics
	lookback   time.Duration
	limit      int
}

func (j *balanceReconcileJob) Name() string { return "balance-reconcile" }

func (j *balanceReconcileJob) Run(ctx context.Context) error {
	userIDs, err := j.ledgerRepo.ListRecentUserIDs(ctx, int(j.lookback.Hours()), j.limit)
	if err != nil {
		return fmt.Errorf("list recently active users: %w", err)
	}

	var errs []error
	checked := 0
	for _, userID := range userIDs {
		if err := j.reconcileUser(ctx, userID); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		checked++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"checked": checked, "failed": len(errs)})
	j.logg.Info(logCtx, "balance sweep complete")
	return multierr.Combine(errs...)
}

func (j *balanceReconcileJob) reconcileUser(ctx context.Context, userID uuid.UUID) error {
	user, err := j.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Ledger rows can outlive a deleted account.
			j.logg.Warn(j.logg.WithUserID(ctx, userID.String()), "ledger rows reference a missing user")
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}

	sum, err := j.ledgerRepo.SumCompletedByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("sum ledger: %w", err)
	}
	balance, err := j.wallet.GetBalance(ctx, user.ExternalBillingID)
	if err != nil {
		return fmt.Errorf("read wallet balance: %w", err)
	}

	// The wallet also moves on top-ups the portal never sees, so the gauge
	// tracks the spread rather than asserting equality. Operators alert on
	// sudden per-user jumps, which is what a lost settlement looks like.
	ledgerTokens := sum.Mul(decimal.NewFromInt(tokensPerUnit)).Round(0).IntPart()
	drift := float64(balance.Tokens) - float64(ledgerTokens)
	j.metrics.SetBalanceDrift(userID.String(), drift)

	if drift != 0 {
		logCtx := j.logg.WithFields(j.logg.WithUserID(ctx, userID.String()), map[string]any{
			"wallet_tokens": balance.Tokens,
			"ledger_tokens": ledgerTokens,
			"drift_tokens":  drift,
		})
		j.logg.Warn(logCtx, "wallet and ledger have drifted")
	}
	return nil
}
