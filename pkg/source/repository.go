package source

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrSourceNotFound = errors.New("data source not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&DataSource{})
}

func (r *Repository) Create(ctx context.Context, src *DataSource) error {
	return r.db.WithContext(ctx).Create(src).Error
}

func (r *Repository) Update(ctx context.Context, src *DataSource) error {
	return r.db.WithContext(ctx).Save(src).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&DataSource{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSourceNotFound
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*DataSource, error) {
	var src DataSource
	result := r.db.WithContext(ctx).First(&src, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrSourceNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	src.ETLJobsCount = r.countJobs(ctx, id)
	return &src, nil
}

func (r *Repository) List(ctx context.Context, filter Filter) ([]DataSource, error) {
	query := r.db.WithContext(ctx).Model(&DataSource{})
	if filter.SourceType != "" {
		query = query.Where("source_type = ?", filter.SourceType)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.NameSearch != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.NameSearch)+"%")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var sources []DataSource
	result := query.Order("name asc").Limit(limit).Find(&sources)
	if result.Error != nil {
		return nil, result.Error
	}
	for i := range sources {
		sources[i].ETLJobsCount = r.countJobs(ctx, sources[i].ID)
	}
	return sources, nil
}

// ExistsByName reports whether another record already uses the name,
// case-insensitively. excludeID allows updates to keep their own name.
func (r *Repository) ExistsByName(ctx context.Context, name string, excludeID uuid.UUID) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&DataSource{}).Where("LOWER(name) = ?", strings.ToLower(name))
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListUpdatedSince returns active sources touched after the cutoff, most
// recent first. Used by the pipeline's data availability sensor.
func (r *Repository) ListUpdatedSince(ctx context.Context, cutoff time.Time) ([]DataSource, error) {
	var sources []DataSource
	result := r.db.WithContext(ctx).
		Where("updated_at >= ? AND is_active = ?", cutoff, true).
		Order("updated_at desc").
		Find(&sources)
	return sources, result.Error
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&DataSource{}).Count(&count).Error
	return count, err
}

func (r *Repository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&DataSource{}).Where("is_active = ?", true).Count(&count).Error
	return count, err
}

func (r *Repository) countJobs(ctx context.Context, id uuid.UUID) int64 {
	var count int64
	r.db.WithContext(ctx).Table("etl_jobs").Where("data_source_id = ?", id).Count(&count)
	return count
}
