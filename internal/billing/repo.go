package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zonecraft/portal-backend/pkg/db/models"
	"github.com/zonecraft/portal-backend/pkg/enums"
)

// Repository is the Ledger Store surface for subscriptions and managed
// domains. The reconciliation engine drives every mutation through it.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	// FindActiveByUserForUpdate serializes concurrent workflows for the same
	// user before the read-check-write sequence. Must run inside a transaction.
	FindActiveByUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	CancelAllActiveForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	CancelSubscription(ctx context.Context, id uuid.UUID, userID uuid.UUID) (int64, error)

	ListDomainsByUser(ctx context.Context, userID uuid.UUID) ([]models.ManagedDomain, error)
	CountDomainsByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	FindDomainsByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.ManagedDomain, error)
	DeleteDomainByID(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.SubscriptionStatusActive).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindActiveByUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if err := r.acquireUserLock(ctx, userID); err != nil {
		return nil, err
	}
	return r.FindActiveByUser(ctx, userID)
}

// acquireUserLock takes a transaction-scoped advisory lock keyed on the user
// id so two workflows for the same user cannot interleave their subscription
// read-check-write. Released automatically at commit/rollback. Skipped on
// sqlite, which serializes writers anyway.
func (r *repository) acquireUserLock(ctx context.Context, userID uuid.UUID) error {
	if r.db.Dialector.Name() != "postgres" {
		return nil
	}
	return r.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", userID.String()).Error
}

func (r *repository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) CancelAllActiveForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ? AND status = ?", userID, enums.SubscriptionStatusActive).
		Updates(map[string]any{
			"status":     enums.SubscriptionStatusCancelled,
			"auto_renew": false,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repository) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// CancelSubscription flips a single active subscription owned by userID.
// Returns 0 rows affected when it is missing, foreign, or already cancelled.
func (r *repository) CancelSubscription(ctx context.Context, id uuid.UUID, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, enums.SubscriptionStatusActive).
		Updates(map[string]any{
			"status":     enums.SubscriptionStatusCancelled,
			"auto_renew": false,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repository) ListDomainsByUser(ctx context.Context, userID uuid.UUID) ([]models.ManagedDomain, error) {
	var domains []models.ManagedDomain
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&domains).Error
	if err != nil {
		return nil, err
	}
	return domains, nil
}

func (r *repository) CountDomainsByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ManagedDomain{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *repository) FindDomainsByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.ManagedDomain, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var domains []models.ManagedDomain
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Find(&domains).Error
	if err != nil {
		return nil, err
	}
	return domains, nil
}

func (r *repository) DeleteDomainByID(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.ManagedDomain{}).Error
}
