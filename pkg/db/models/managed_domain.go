package models

import (
	"time"

	"github.com/google/uuid"
)

// ManagedDomain is a DNS zone a user hosts under their subscription.
// ExternalID is the zone id in the DNS host provider; nil when the zone
// was created locally but never provisioned upstream.
type ManagedDomain struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	ExternalID *string   `gorm:"column:external_id"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
