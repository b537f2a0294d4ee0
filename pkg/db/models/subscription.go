package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/zonecraft/portal-backend/pkg/enums"
)

// Subscription binds a user to a plan over a billing window. Rows are never
// mutated into a different plan; a plan change cancels the old row and
// inserts a new one.
type Subscription struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	PlanID          uuid.UUID                `gorm:"column:plan_id;type:uuid;not null"`
	Status          enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	StartDate       time.Time                `gorm:"column:start_date;not null"`
	EndDate         time.Time                `gorm:"column:end_date;not null"`
	AutoRenew       bool                     `gorm:"column:auto_renew;not null;default:true"`
	LastPaymentDate *time.Time               `gorm:"column:last_payment_date"`
	NextPaymentDate *time.Time               `gorm:"column:next_payment_date"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
