package subscriptions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/zonecraft/portal-backend/internal/billing"
	"github.com/zonecraft/portal-backend/internal/billingcycle"
	"github.com/zonecraft/portal-backend/internal/ledger"
	"github.com/zonecraft/portal-backend/pkg/db/models"
	"github.com/zonecraft/portal-backend/pkg/dnshost"
	"github.com/zonecraft/portal-backend/pkg/enums"
	pkgerrors "github.com/zonecraft/portal-backend/pkg/errors"
	"github.com/zonecraft/portal-backend/pkg/logger"
	"github.com/zonecraft/portal-backend/pkg/metrics"
	"github.com/zonecraft/portal-backend/pkg/tokenwallet"
)

// tokensPerUnit converts between wallet tokens and currency units.
const tokensPerUnit = 100

// prorationEpsilon is the threshold below which a price delta moves no money.
var prorationEpsilon = decimal.NewFromFloat(0.01)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type planLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

type userLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type tokenWallet interface {
	GetBalance(ctx context.Context, accountID string) (*tokenwallet.Balance, error)
	Debit(ctx context.Context, params tokenwallet.DebitParams) (*tokenwallet.Balance, error)
	Credit(ctx context.Context, params tokenwallet.CreditParams) (*tokenwallet.Balance, error)
}

type dnsHost interface {
	ListZones(ctx context.Context, accountID string) ([]dnshost.Zone, error)
	DeleteZone(ctx context.Context, zoneID string) error
}

// Service is the reconciliation engine: it keeps the local ledger, the
// external token balance, and the external zone inventory consistent through
// ordered steps with compensations instead of a single atomic transaction.
type Service interface {
	Purchase(ctx context.Context, input PurchaseInput) (*PurchaseResult, error)
	Change(ctx context.Context, input ChangeInput) (*ChangeResult, error)
	Cancel(ctx context.Context, input CancelInput) error
	GetActive(ctx context.Context, userID uuid.UUID) (*ActiveSubscription, error)
}

type service struct {
	tx      txRunner
	billing billing.Repository
	ledger  ledger.Repository
	plans   planLoader
	users   userLoader
	wallet  tokenWallet
	dns     dnsHost
	clock   billingcycle.Clock
	logger  *logger.Logger
	metrics *metrics.BillingMetrics
}

// NewService builds the reconciliation engine.
func NewService(
	tx txRunner,
	billingRepo billing.Repository,
	ledgerRepo ledger.Repository,
	plans planLoader,
	users userLoader,
	wallet tokenWallet,
	dns dnsHost,
	clock billingcycle.Clock,
	logg *logger.Logger,
	billingMetrics *metrics.BillingMetrics,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if billingRepo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if plans == nil {
		return nil, fmt.Errorf("plan loader required")
	}
	if users == nil {
		return nil, fmt.Errorf("user loader required")
	}
	if wallet == nil {
		return nil, fmt.Errorf("token wallet client required")
	}
	if dns == nil {
		return nil, fmt.Errorf("dns host client required")
	}
	if clock == nil {
		clock = billingcycle.SystemClock{}
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:      tx,
		billing: billingRepo,
		ledger:  ledgerRepo,
		plans:   plans,
		users:   users,
		wallet:  wallet,
		dns:     dns,
		clock:   clock,
		logger:  logg,
		metrics: billingMetrics,
	}, nil
}

// errRacedSubscription signals that another workflow created an active
// subscription between the precondition check and the local commit.
var errRacedSubscription = errors.New("concurrent active subscription detected")

func (s *service) Purchase(ctx context.Context, input PurchaseInput) (res *PurchaseResult, err error) {
	defer func() { s.countWorkflow("purchase", err) }()

	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	ctx = s.logger.WithUserID(ctx, input.UserID.String())

	user, err := s.loadUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	plan, err := s.loadPlan(ctx, input.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan is not available for purchase")
	}

	existing, err := s.billing.FindActiveByUser(ctx, input.UserID)
	if err == nil {
		if existing.PlanID == plan.ID {
			return nil, errAlreadySubscribed()
		}
		return nil, errConflictingPlan(existing.PlanID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active subscription")
	}

	required := tokensForAmount(plan.MonthlyPrice)
	balance, err := s.wallet.GetBalance(ctx, user.ExternalBillingID)
	if err != nil {
		return nil, err
	}
	if balance.Tokens < required {
		return nil, errInsufficientFunds(required, balance.Tokens)
	}

	// The pending row goes in before the external call so a crash after the
	// debit still leaves local evidence of the attempt.
	txn := &models.LedgerTransaction{
		UserID:      input.UserID,
		Amount:      plan.MonthlyPrice.Neg(),
		Type:        enums.LedgerTransactionTypePlanPurchase,
		Status:      enums.LedgerTransactionStatusPending,
		Description: fmt.Sprintf("purchase of plan %s", plan.Name),
	}
	if err := s.ledger.Create(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record purchase transaction")
	}
	ctx = s.logger.WithTransactionID(ctx, txn.ID.String())

	if _, err := s.wallet.Debit(ctx, tokenwallet.DebitParams{
		AccountID: user.ExternalBillingID,
		Tokens:    required,
		Reference: ledgerReference(txn.ID),
	}); err != nil {
		s.logger.Error(ctx, "purchase debit failed", err)
		if markErr := s.ledger.UpdateStatus(ctx, txn.ID, enums.LedgerTransactionStatusFailed); markErr != nil {
			s.logger.Error(ctx, "could not mark purchase transaction failed", markErr)
		}
		return nil, errExternalDebitFailed(err, txn.ID)
	}

	now := s.clock.Now(ctx)
	cycleEnd := billingcycle.CycleEnd(now)
	sub := &models.Subscription{
		UserID:          input.UserID,
		PlanID:          plan.ID,
		Status:          enums.SubscriptionStatusActive,
		StartDate:       now,
		EndDate:         cycleEnd,
		AutoRenew:       true,
		LastPaymentDate: &now,
		NextPaymentDate: &cycleEnd,
	}

	var racedPlanID uuid.UUID
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billing.WithTx(tx)
		ledgerRepo := s.ledger.WithTx(tx)

		locked, err := repo.FindActiveByUserForUpdate(ctx, input.UserID)
		if err == nil {
			racedPlanID = locked.PlanID
			return errRacedSubscription
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := ledgerRepo.UpdateStatus(ctx, txn.ID, enums.LedgerTransactionStatusCompleted); err != nil {
			return err
		}
		return repo.CreateSubscription(ctx, sub)
	})
	if errors.Is(txErr, errRacedSubscription) {
		s.refundPurchase(ctx, user, txn, required)
		if racedPlanID == plan.ID {
			return nil, errAlreadySubscribed()
		}
		return nil, errConflictingPlan(racedPlanID)
	}
	if txErr != nil {
		// Debited but not committed: the pending row keeps the evidence for
		// manual reconciliation and the sweep job.
		s.logger.Error(ctx, "purchase commit failed after external debit", txErr)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "finalize purchase")
	}

	s.logger.Info(ctx, "plan purchased")
	return &PurchaseResult{
		Subscription:        sub,
		Plan:                plan,
		TokensDebited:       required,
		LedgerTransactionID: txn.ID,
	}, nil
}

// refundPurchase compensates a debit whose subscription lost a concurrency
// race. Best effort: failures are logged, never returned, because the caller
// already has a definitive precondition error to report.
func (s *service) refundPurchase(ctx context.Context, user *models.User, origin *models.LedgerTransaction, tokens int64) {
	if err := s.ledger.UpdateStatus(ctx, origin.ID, enums.LedgerTransactionStatusFailed); err != nil {
		s.logger.Error(ctx, "could not mark raced purchase transaction failed", err)
	}

	refund := &models.LedgerTransaction{
		UserID:      user.ID,
		Amount:      origin.Amount.Neg(),
		Type:        enums.LedgerTransactionTypePlanRefund,
		Status:      enums.LedgerTransactionStatusPending,
		Description: fmt.Sprintf("refund of raced purchase %s", origin.ID),
	}
	if err := s.ledger.Create(ctx, refund); err != nil {
		s.logger.Error(ctx, "could not record purchase refund", err)
		return
	}
	if err := s.creditWithDetection(ctx, user, tokens, refund.ID); err != nil {
		s.logger.Error(ctx, "purchase refund credit failed", err)
		if markErr := s.ledger.UpdateStatus(ctx, refund.ID, enums.LedgerTransactionStatusFailed); markErr != nil {
			s.logger.Error(ctx, "could not mark purchase refund failed", markErr)
		}
		return
	}
	if err := s.ledger.UpdateStatus(ctx, refund.ID, enums.LedgerTransactionStatusCompleted); err != nil {
		s.logger.Error(ctx, "could not mark purchase refund completed", err)
	}
}

func (s *service) Change(ctx context.Context, input ChangeInput) (res *ChangeResult, err error) {
	defer func() { s.countWorkflow("change", err) }()

	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.TargetPlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target plan id is required")
	}
	ctx = s.logger.WithUserID(ctx, input.UserID.String())

	user, err := s.loadUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	target, err := s.loadPlan(ctx, input.TargetPlanID)
	if err != nil {
		return nil, err
	}
	if !target.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target plan is not available")
	}

	current, err := s.billing.FindActiveByUser(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNoActiveSubscription()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active subscription")
	}
	if current.PlanID == target.ID {
		return nil, errAlreadyOnPlan()
	}
	currentPlan, err := s.loadPlan(ctx, current.PlanID)
	if err != nil {
		return nil, err
	}

	// Proration anchors to the calendar month, never to the stored end date,
	// so a free plan's artificially distant endDate cannot skew the delta.
	now := s.clock.Now(ctx)
	days := billingcycle.DaysRemaining(now)
	delta := target.MonthlyPrice.Sub(currentPlan.MonthlyPrice).
		Mul(decimal.NewFromInt(int64(days))).
		Div(decimal.NewFromInt(30)).
		Round(2)
	isUpgrade := delta.GreaterThan(prorationEpsilon)
	isDowngrade := delta.LessThan(prorationEpsilon.Neg())
	settleTokens := tokensForAmount(delta.Abs())

	if isUpgrade {
		balance, err := s.wallet.GetBalance(ctx, user.ExternalBillingID)
		if err != nil {
			return nil, err
		}
		if balance.Tokens < settleTokens {
			return nil, errInsufficientFunds(settleTokens, balance.Tokens)
		}
	}

	keep, remove, err := s.planEviction(ctx, input, currentPlan, target)
	if err != nil {
		return nil, err
	}

	txnType := enums.LedgerTransactionTypePlanUpgrade
	if isDowngrade {
		txnType = enums.LedgerTransactionTypePlanDowngrade
	}
	txnStatus := enums.LedgerTransactionStatusPending
	if !isUpgrade && !isDowngrade {
		// No settlement will follow a negligible delta.
		txnStatus = enums.LedgerTransactionStatusCompleted
	}

	cycleEnd := billingcycle.CycleEnd(now)
	txn := &models.LedgerTransaction{
		UserID:      input.UserID,
		Amount:      delta.Neg(),
		Type:        txnType,
		Status:      txnStatus,
		Description: fmt.Sprintf("plan change %s -> %s", currentPlan.Name, target.Name),
	}
	sub := &models.Subscription{
		UserID:          input.UserID,
		PlanID:          target.ID,
		Status:          enums.SubscriptionStatusActive,
		StartDate:       now,
		EndDate:         cycleEnd,
		AutoRenew:       true,
		LastPaymentDate: current.LastPaymentDate,
		NextPaymentDate: &cycleEnd,
	}
	if isUpgrade || isDowngrade {
		sub.LastPaymentDate = &now
	}

	var eviction *EvictionResult
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billing.WithTx(tx)
		ledgerRepo := s.ledger.WithTx(tx)

		locked, err := repo.FindActiveByUserForUpdate(ctx, input.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errNoActiveSubscription()
			}
			return err
		}
		if locked.PlanID != currentPlan.ID {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription changed concurrently, retry")
		}

		if err := ledgerRepo.Create(ctx, txn); err != nil {
			return err
		}
		if len(remove) > 0 {
			eviction = s.evictDomains(ctx, repo, user.ExternalBillingID, keep, remove)
		}
		// Cancelling everything active, not just the known row, repairs any
		// prior violation of the single-active invariant.
		if _, err := repo.CancelAllActiveForUser(ctx, input.UserID); err != nil {
			return err
		}
		return repo.CreateSubscription(ctx, sub)
	})
	if txErr != nil {
		if typed := pkgerrors.As(txErr); typed != nil {
			return nil, txErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "apply plan change")
	}

	ctx = s.logger.WithTransactionID(ctx, txn.ID.String())
	warning := s.settleChange(ctx, user, txn, settleTokens, isUpgrade, isDowngrade)

	s.logger.Info(ctx, "plan changed")
	return &ChangeResult{
		Subscription:        sub,
		OldPlan:             currentPlan,
		NewPlan:             target,
		ProratedAmount:      delta,
		DomainsRemoved:      len(remove),
		Eviction:            eviction,
		SettlementWarning:   warning,
		LedgerTransactionID: txn.ID,
	}, nil
}

// planEviction validates keepDomainIds and splits the user's domains into
// kept and evicted sets. Empty results mean no eviction is needed.
func (s *service) planEviction(ctx context.Context, input ChangeInput, currentPlan, target *models.Plan) (keep, remove []models.ManagedDomain, err error) {
	if target.MaxDomains >= currentPlan.MaxDomains {
		return nil, nil, nil
	}
	count, err := s.billing.CountDomainsByUser(ctx, input.UserID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count managed domains")
	}
	if count <= int64(target.MaxDomains) {
		return nil, nil, nil
	}

	if len(input.KeepDomainIDs) != target.MaxDomains {
		return nil, nil, errInvalidDomainSelection(target.MaxDomains, len(input.KeepDomainIDs))
	}
	keep, err = s.billing.FindDomainsByIDs(ctx, input.UserID, input.KeepDomainIDs)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load kept domains")
	}
	if len(keep) != len(input.KeepDomainIDs) {
		// At least one id is missing or belongs to someone else.
		return nil, nil, errInvalidDomainSelection(target.MaxDomains, len(keep))
	}

	all, err := s.billing.ListDomainsByUser(ctx, input.UserID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list managed domains")
	}
	kept := make(map[uuid.UUID]bool, len(keep))
	for _, domain := range keep {
		kept[domain.ID] = true
	}
	for _, domain := range all {
		if !kept[domain.ID] {
			remove = append(remove, domain)
		}
	}
	return keep, remove, nil
}

// settleChange moves tokens after the local transition has committed. The
// plan change is final at this point: failures produce a warning and leave
// the ledger row for manual reconciliation, they never roll anything back.
func (s *service) settleChange(ctx context.Context, user *models.User, txn *models.LedgerTransaction, tokens int64, isUpgrade, isDowngrade bool) *SettlementWarning {
	var step string
	var settleErr error
	switch {
	case isUpgrade:
		step = "wallet_debit"
		_, settleErr = s.wallet.Debit(ctx, tokenwallet.DebitParams{
			AccountID: user.ExternalBillingID,
			Tokens:    tokens,
			Reference: ledgerReference(txn.ID),
		})
	case isDowngrade:
		step = "wallet_refund"
		settleErr = s.creditWithDetection(ctx, user, tokens, txn.ID)
	default:
		return nil
	}

	if settleErr != nil {
		s.logger.Error(ctx, "post-commit settlement failed", settleErr)
		s.metrics.IncSettlementWarning(step)
		if markErr := s.ledger.UpdateStatus(ctx, txn.ID, enums.LedgerTransactionStatusFailed); markErr != nil {
			s.logger.Error(ctx, "could not mark settlement transaction failed", markErr)
		}
		return &SettlementWarning{
			Step:                step,
			LedgerTransactionID: txn.ID,
			Error:               settleErr.Error(),
		}
	}
	if err := s.ledger.UpdateStatus(ctx, txn.ID, enums.LedgerTransactionStatusCompleted); err != nil {
		s.logger.Error(ctx, "could not mark settlement transaction completed", err)
	}
	return nil
}

// creditWithDetection wraps an external credit with the negative-balance
// detector. When the balance was negative before the credit, the provider
// silently absorbs that much of the incoming amount, so a compensating
// auto_deduction row keeps the local ledger sum honest. Balance reads are
// diagnostic: their failure skips detection, never the credit.
func (s *service) creditWithDetection(ctx context.Context, user *models.User, tokens int64, originTxID uuid.UUID) error {
	var initial *tokenwallet.Balance
	initial, err := s.wallet.GetBalance(ctx, user.ExternalBillingID)
	if err != nil {
		s.logger.Warn(ctx, "balance read before credit failed, auto-deduction detection skipped")
		initial = nil
	}

	if _, err := s.wallet.Credit(ctx, tokenwallet.CreditParams{
		AccountID: user.ExternalBillingID,
		Tokens:    tokens,
		Reference: ledgerReference(originTxID),
	}); err != nil {
		return err
	}

	if _, err := s.wallet.GetBalance(ctx, user.ExternalBillingID); err != nil {
		s.logger.Warn(ctx, "balance read after credit failed")
	}

	if initial == nil || initial.Tokens >= 0 {
		return nil
	}

	deduction := &models.LedgerTransaction{
		UserID: user.ID,
		// initial is negative, so this amount is negative currency units.
		Amount:      decimal.NewFromInt(initial.Tokens).Div(decimal.NewFromInt(tokensPerUnit)),
		Type:        enums.LedgerTransactionTypeAutoDeduction,
		Status:      enums.LedgerTransactionStatusCompleted,
		Description: fmt.Sprintf("auto deduction absorbed by credit %s", originTxID),
	}
	if err := s.ledger.Create(ctx, deduction); err != nil {
		s.logger.Error(ctx, "could not record auto-deduction compensation", err)
	}
	return nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (err error) {
	defer func() { s.countWorkflow("cancel", err) }()

	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.SubscriptionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	ctx = s.logger.WithUserID(ctx, input.UserID.String())
	ctx = s.logger.WithSubscriptionID(ctx, input.SubscriptionID.String())

	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billing.WithTx(tx)
		rows, err := repo.CancelSubscription(ctx, input.SubscriptionID, input.UserID)
		if err != nil {
			return err
		}
		if rows == 0 {
			// Missing, foreign, or already cancelled all look the same.
			return pkgerrors.New(pkgerrors.CodeNotFound, "active subscription not found")
		}
		return nil
	})
	if txErr != nil {
		if typed := pkgerrors.As(txErr); typed != nil {
			return txErr
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "cancel subscription")
	}

	s.logger.Info(ctx, "subscription cancelled")
	return nil
}

func (s *service) GetActive(ctx context.Context, userID uuid.UUID) (*ActiveSubscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	sub, err := s.billing.FindActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active subscription")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active subscription")
	}
	plan, err := s.loadPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	return &ActiveSubscription{Subscription: sub, Plan: plan}, nil
}

func (s *service) loadUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func (s *service) loadPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	plan, err := s.plans.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	return plan, nil
}

func (s *service) countWorkflow(workflow string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		if typed := pkgerrors.As(err); typed != nil {
			outcome = string(typed.Code())
		}
	}
	s.metrics.IncWorkflow(workflow, outcome)
}

func tokensForAmount(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(tokensPerUnit)).Round(0).IntPart()
}

func ledgerReference(txID uuid.UUID) string {
	return fmt.Sprintf("ledger:%s", txID)
}
