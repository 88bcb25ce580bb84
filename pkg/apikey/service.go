package apikey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/google/uuid"
)

var (
	ErrKeyInactive = errors.New("api key is inactive")
	ErrKeyExpired  = errors.New("api key has expired")
)

// Store is the persistence surface the service needs; *Repository satisfies it.
type Store interface {
	Create(ctx context.Context, key *APIKey) error
	Update(ctx context.Context, key *APIKey) error
	Delete(ctx context.Context, owner string, id uuid.UUID) error
	Get(ctx context.Context, owner string, id uuid.UUID) (*APIKey, error)
	List(ctx context.Context, owner string, limit int) ([]APIKey, error)
	FindByKey(ctx context.Context, key string) (*APIKey, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) Create(ctx context.Context, owner string, input CreateKeyInput) (*APIKey, error) {
	name := strings.TrimSpace(input.Name)
	if len(name) < 3 {
		return nil, fmt.Errorf("name must be at least 3 characters")
	}

	material, err := generateKey()
	if err != nil {
		return nil, fmt.Errorf("generating key material: %w", err)
	}

	key := &APIKey{
		ID:        uuid.New(),
		Name:      name,
		Key:       material,
		Owner:     owner,
		IsActive:  true,
		ExpiresAt: input.ExpiresAt,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	if err := s.store.Create(ctx, key); err != nil {
		return nil, err
	}

	logger.Log.WithFields(map[string]interface{}{
		"key_id": key.ID,
		"owner":  owner,
	}).Info("Creating new API key")

	return key, nil
}

func (s *Service) Update(ctx context.Context, owner string, id uuid.UUID, input UpdateKeyInput) (*APIKey, error) {
	key, err := s.store.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if len(name) < 3 {
			return nil, fmt.Errorf("name must be at least 3 characters")
		}
		key.Name = name
	}
	if input.IsActive != nil {
		key.IsActive = *input.IsActive
	}
	if input.ExpiresAt != nil {
		key.ExpiresAt = input.ExpiresAt
	}
	key.UpdatedAt = s.now()
	if err := s.store.Update(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *Service) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	return s.store.Delete(ctx, owner, id)
}

func (s *Service) Get(ctx context.Context, owner string, id uuid.UUID) (*APIKey, error) {
	return s.store.Get(ctx, owner, id)
}

func (s *Service) List(ctx context.Context, owner string, limit int) ([]APIKey, error) {
	return s.store.List(ctx, owner, limit)
}

// Authenticate resolves key material to its owning credential, enforcing the
// is_active flag and expiry, and touches last_used_at on success.
func (s *Service) Authenticate(ctx context.Context, material string) (*APIKey, error) {
	key, err := s.store.FindByKey(ctx, material)
	if err != nil {
		return nil, err
	}
	if !key.IsActive {
		return nil, ErrKeyInactive
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(s.now()) {
		return nil, ErrKeyExpired
	}
	if err := s.store.TouchLastUsed(ctx, key.ID, s.now()); err != nil {
		logger.Log.WithError(err).WithField("key_id", key.ID).Warn("failed to touch api key")
	}
	return key, nil
}

// generateKey returns 32 bytes of entropy, URL-safe base64 encoded.
func generateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
