package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the portal account. ExternalBillingID is the account id on the
// token-wallet provider; all wallet calls key on it, not on our uuid.
type User struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email             string    `gorm:"column:email;uniqueIndex;not null"`
	ExternalBillingID string    `gorm:"column:external_billing_id;uniqueIndex;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
