package apikey

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrKeyNotFound = errors.New("api key not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&APIKey{})
}

func (r *Repository) Create(ctx context.Context, key *APIKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}

func (r *Repository) Update(ctx context.Context, key *APIKey) error {
	return r.db.WithContext(ctx).Save(key).Error
}

func (r *Repository) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&APIKey{}, "id = ? AND owner = ?", id, owner)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// Get is owner-scoped: callers can only see their own keys.
func (r *Repository) Get(ctx context.Context, owner string, id uuid.UUID) (*APIKey, error) {
	var key APIKey
	result := r.db.WithContext(ctx).First(&key, "id = ? AND owner = ?", id, owner)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &key, nil
}

func (r *Repository) List(ctx context.Context, owner string, limit int) ([]APIKey, error) {
	if limit <= 0 {
		limit = 50
	}
	var keys []APIKey
	result := r.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("created_at desc").Limit(limit).Find(&keys)
	return keys, result.Error
}

// FindByKey looks a credential up by its material, for authentication.
func (r *Repository) FindByKey(ctx context.Context, key string) (*APIKey, error) {
	var record APIKey
	result := r.db.WithContext(ctx).First(&record, "key = ?", key)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &record, nil
}

func (r *Repository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}
