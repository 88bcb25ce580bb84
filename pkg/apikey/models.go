package apikey

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a credential bound to exactly one owner. Key material is
// generated once at creation and never regenerated.
type APIKey struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	Name       string     `gorm:"column:name" json:"name"`
	Key        string     `gorm:"column:key;uniqueIndex" json:"key"`
	Owner      string     `gorm:"column:owner;index" json:"owner"`
	IsActive   bool       `gorm:"column:is_active" json:"is_active"`
	ExpiresAt  *time.Time `gorm:"column:expires_at" json:"expires_at"`
	LastUsedAt *time.Time `gorm:"column:last_used_at" json:"last_used_at"`
	CreatedAt  time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (APIKey) TableName() string {
	return "api_keys"
}

type CreateKeyInput struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// UpdateKeyInput carries partial updates; the key material itself is immutable.
type UpdateKeyInput struct {
	Name      *string    `json:"name"`
	IsActive  *bool      `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at"`
}
