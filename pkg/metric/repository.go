package metric

import (
	"context"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&MetricData{})
}

func (r *Repository) Create(ctx context.Context, m *MetricData) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repository) List(ctx context.Context, filter Filter) ([]MetricData, error) {
	query := r.db.WithContext(ctx).Model(&MetricData{})

	if filter.NameSearch != "" {
		query = query.Where("LOWER(metric_name) LIKE ?", "%"+strings.ToLower(filter.NameSearch)+"%")
	}
	if filter.MetricType != "" {
		query = query.Where("metric_type = ?", filter.MetricType)
	}
	if filter.After != nil {
		query = query.Where("timestamp >= ?", *filter.After)
	}
	if filter.Before != nil {
		query = query.Where("timestamp <= ?", *filter.Before)
	}
	if filter.MinValue != nil {
		query = query.Where("metric_value >= ?", *filter.MinValue)
	}
	if filter.MaxValue != nil {
		query = query.Where("metric_value <= ?", *filter.MaxValue)
	}
	if filter.HasLabels != nil {
		if *filter.HasLabels {
			query = query.Where("COALESCE(labels::text, '{}') <> '{}'")
		} else {
			query = query.Where("COALESCE(labels::text, '{}') = '{}'")
		}
	}
	if filter.LabelKey != "" {
		query = query.Where(datatypes.JSONQuery("labels").HasKey(filter.LabelKey))
	}
	if filter.LabelValue != "" {
		// Approximate, non-indexed substring match across the serialized
		// label map; matches keys as well as values.
		query = query.Where("CAST(labels AS TEXT) LIKE ?", "%"+filter.LabelValue+"%")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var metrics []MetricData
	result := query.Order("timestamp desc").Limit(limit).Find(&metrics)
	return metrics, result.Error
}

// DeleteOlderThan removes observations recorded before the cutoff and
// reports how many rows were removed.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&MetricData{})
	return result.RowsAffected, result.Error
}
