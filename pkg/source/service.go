package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var (
	ErrDuplicateName     = errors.New("a data source with this name already exists")
	ErrInvalidSourceType = errors.New("invalid source type")
)

// Store is the persistence surface the service needs; *Repository satisfies it.
type Store interface {
	Create(ctx context.Context, src *DataSource) error
	Update(ctx context.Context, src *DataSource) error
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*DataSource, error)
	List(ctx context.Context, filter Filter) ([]DataSource, error)
	ExistsByName(ctx context.Context, name string, excludeID uuid.UUID) (bool, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Create(ctx context.Context, input CreateSourceInput) (*DataSource, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if !ValidType(input.SourceType) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSourceType, input.SourceType)
	}

	exists, err := s.store.ExistsByName(ctx, name, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateName
	}

	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	src := &DataSource{
		ID:               uuid.New(),
		Name:             name,
		SourceType:       input.SourceType,
		ConnectionString: input.ConnectionString,
		IsActive:         active,
		Metadata:         datatypes.JSONMap(input.Metadata),
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if err := s.store.Create(ctx, src); err != nil {
		return nil, err
	}

	logger.Log.WithFields(map[string]interface{}{
		"source_id":   src.ID,
		"name":        src.Name,
		"source_type": src.SourceType,
	}).Info("Created data source")

	return src, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateSourceInput) (*DataSource, error) {
	src, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, fmt.Errorf("name is required")
		}
		exists, err := s.store.ExistsByName(ctx, name, id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicateName
		}
		src.Name = name
	}
	if input.SourceType != nil {
		if !ValidType(*input.SourceType) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSourceType, *input.SourceType)
		}
		src.SourceType = *input.SourceType
	}
	if input.ConnectionString != nil {
		src.ConnectionString = *input.ConnectionString
	}
	if input.IsActive != nil {
		src.IsActive = *input.IsActive
	}
	if input.Metadata != nil {
		src.Metadata = datatypes.JSONMap(input.Metadata)
	}
	src.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, src); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*DataSource, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]DataSource, error) {
	return s.store.List(ctx, filter)
}
