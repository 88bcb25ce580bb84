package apikey

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeKeyStore struct {
	keys    map[uuid.UUID]*APIKey
	touched []uuid.UUID
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{keys: map[uuid.UUID]*APIKey{}}
}

func (f *fakeKeyStore) Create(ctx context.Context, key *APIKey) error {
	copied := *key
	f.keys[key.ID] = &copied
	return nil
}

func (f *fakeKeyStore) Update(ctx context.Context, key *APIKey) error {
	copied := *key
	f.keys[key.ID] = &copied
	return nil
}

func (f *fakeKeyStore) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	key, ok := f.keys[id]
	if !ok || key.Owner != owner {
		return ErrKeyNotFound
	}
	delete(f.keys, id)
	return nil
}

func (f *fakeKeyStore) Get(ctx context.Context, owner string, id uuid.UUID) (*APIKey, error) {
	key, ok := f.keys[id]
	if !ok || key.Owner != owner {
		return nil, ErrKeyNotFound
	}
	copied := *key
	return &copied, nil
}

func (f *fakeKeyStore) List(ctx context.Context, owner string, limit int) ([]APIKey, error) {
	var out []APIKey
	for _, key := range f.keys {
		if key.Owner == owner {
			out = append(out, *key)
		}
	}
	return out, nil
}

func (f *fakeKeyStore) FindByKey(ctx context.Context, material string) (*APIKey, error) {
	for _, key := range f.keys {
		if key.Key == material {
			copied := *key
			return &copied, nil
		}
	}
	return nil, ErrKeyNotFound
}

func (f *fakeKeyStore) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.touched = append(f.touched, id)
	if key, ok := f.keys[id]; ok {
		key.LastUsedAt = &at
	}
	return nil
}

func TestCreateGeneratesRandomKeyMaterial(t *testing.T) {
	svc := NewService(newFakeKeyStore())

	first, err := svc.Create(context.Background(), "alice", CreateKeyInput{Name: "ci-deploy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Create(context.Background(), "alice", CreateKeyInput{Name: "ci-release"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Key == second.Key {
		t.Fatal("expected distinct key material")
	}
	raw, err := base64.RawURLEncoding.DecodeString(first.Key)
	if err != nil {
		t.Fatalf("key material is not URL-safe base64: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 32 bytes of entropy, got %d", len(raw))
	}
	if !first.IsActive {
		t.Fatal("expected new key active")
	}
}

func TestCreateRejectsShortName(t *testing.T) {
	svc := NewService(newFakeKeyStore())

	if _, err := svc.Create(context.Background(), "alice", CreateKeyInput{Name: "ab"}); err == nil {
		t.Fatal("expected error for short name")
	}
}

func TestAuthenticateTouchesLastUsed(t *testing.T) {
	store := newFakeKeyStore()
	svc := NewService(store)

	created, err := svc.Create(context.Background(), "alice", CreateKeyInput{Name: "ci-deploy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key, err := svc.Authenticate(context.Background(), created.Key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.Owner != "alice" {
		t.Fatalf("expected owner alice, got %s", key.Owner)
	}
	if len(store.touched) != 1 || store.touched[0] != created.ID {
		t.Fatal("expected last_used_at to be touched")
	}
}

func TestAuthenticateRejectsInactiveKey(t *testing.T) {
	store := newFakeKeyStore()
	svc := NewService(store)

	created, err := svc.Create(context.Background(), "alice", CreateKeyInput{Name: "ci-deploy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.keys[created.ID].IsActive = false

	_, err = svc.Authenticate(context.Background(), created.Key)
	if !errors.Is(err, ErrKeyInactive) {
		t.Fatalf("expected ErrKeyInactive, got %v", err)
	}
}

func TestAuthenticateRejectsExpiredKey(t *testing.T) {
	store := newFakeKeyStore()
	svc := NewService(store)

	created, err := svc.Create(context.Background(), "alice", CreateKeyInput{Name: "ci-deploy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expired := time.Now().UTC().Add(-time.Minute)
	store.keys[created.ID].ExpiresAt = &expired

	_, err = svc.Authenticate(context.Background(), created.Key)
	if !errors.Is(err, ErrKeyExpired) {
		t.Fatalf("expected ErrKeyExpired, got %v", err)
	}
	if len(store.touched) != 0 {
		t.Fatal("expired key must not touch last_used_at")
	}
}

func TestGetKeyIsOwnerScoped(t *testing.T) {
	store := newFakeKeyStore()
	svc := NewService(store)

	created, err := svc.Create(context.Background(), "alice", CreateKeyInput{Name: "ci-deploy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Get(context.Background(), "mallory", created.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound for foreign owner, got %v", err)
	}
}
