package job

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrJobNotFound = errors.New("etl job not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Job{})
}

func (r *Repository) Create(ctx context.Context, j *Job) error {
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	var j Job
	result := r.db.WithContext(ctx).Preload("DataSource").First(&j, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &j, nil
}

func (r *Repository) List(ctx context.Context, filter Filter) ([]Job, error) {
	query := r.db.WithContext(ctx).Model(&Job{}).Preload("DataSource")

	if len(filter.Statuses) > 0 {
		query = query.Where("etl_jobs.status IN ?", filter.Statuses)
	}
	if filter.DataSourceID != uuid.Nil {
		query = query.Where("etl_jobs.data_source_id = ?", filter.DataSourceID)
	}
	if filter.DataSourceName != "" {
		query = query.
			Joins("JOIN data_sources ON data_sources.id = etl_jobs.data_source_id").
			Where("LOWER(data_sources.name) LIKE ?", "%"+strings.ToLower(filter.DataSourceName)+"%")
	}
	if filter.NameSearch != "" {
		query = query.Where("LOWER(etl_jobs.name) LIKE ?", "%"+strings.ToLower(filter.NameSearch)+"%")
	}
	if filter.CreatedAfter != nil {
		query = query.Where("etl_jobs.created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("etl_jobs.created_at <= ?", *filter.CreatedBefore)
	}
	if filter.StartedAfter != nil {
		query = query.Where("etl_jobs.started_at >= ?", *filter.StartedAfter)
	}
	if filter.StartedBefore != nil {
		query = query.Where("etl_jobs.started_at <= ?", *filter.StartedBefore)
	}
	if filter.CompletedAfter != nil {
		query = query.Where("etl_jobs.completed_at >= ?", *filter.CompletedAfter)
	}
	if filter.CompletedBefore != nil {
		query = query.Where("etl_jobs.completed_at <= ?", *filter.CompletedBefore)
	}
	if filter.MinRecords != nil {
		query = query.Where("etl_jobs.records_processed >= ?", *filter.MinRecords)
	}
	if filter.MaxRecords != nil {
		query = query.Where("etl_jobs.records_processed <= ?", *filter.MaxRecords)
	}
	if filter.HasErrors != nil {
		if *filter.HasErrors {
			query = query.Where("etl_jobs.error_message <> ''")
		} else {
			query = query.Where("etl_jobs.error_message = ''")
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var jobs []Job
	result := query.Order("etl_jobs.created_at desc").Limit(limit).Find(&jobs)
	return jobs, result.Error
}

// Transition applies a guarded status change: the UPDATE carries the set of
// expected prior statuses, so two writers can never interleave the same
// transition. Returns false when another writer got there first.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from []string, updates map[string]interface{}) (bool, error) {
	updates["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&Job{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListStuck returns running jobs whose started_at predates the cutoff.
func (r *Repository) ListStuck(ctx context.Context, cutoff time.Time) ([]Job, error) {
	var jobs []Job
	result := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", StatusRunning, cutoff).
		Find(&jobs)
	return jobs, result.Error
}

// ListFailedSince returns jobs finalized as failed after the cutoff whose
// error message contains the given fragment (case-insensitive). Used by the
// pipeline's failure recovery sensor.
func (r *Repository) ListFailedSince(ctx context.Context, cutoff time.Time, errorContains string) ([]Job, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND completed_at >= ?", StatusFailed, cutoff)
	if errorContains != "" {
		query = query.Where("LOWER(error_message) LIKE ?", "%"+strings.ToLower(errorContains)+"%")
	}
	var jobs []Job
	result := query.Order("completed_at asc").Find(&jobs)
	return jobs, result.Error
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Job{}).Count(&count).Error
	return count, err
}

func (r *Repository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Job{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func (r *Repository) CountCompletedBetween(ctx context.Context, status string, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Job{}).
		Where("status = ? AND completed_at >= ? AND completed_at < ?", status, from, to).
		Count(&count).Error
	return count, err
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Job, error) {
	var jobs []Job
	result := r.db.WithContext(ctx).Preload("DataSource").
		Order("created_at desc").Limit(limit).Find(&jobs)
	return jobs, result.Error
}

// ReportStatsBetween aggregates jobs created in [from, to) for the daily report.
func (r *Repository) ReportStatsBetween(ctx context.Context, from, to time.Time) (ReportStats, error) {
	var stats ReportStats
	base := r.db.WithContext(ctx).Model(&Job{}).Where("created_at >= ? AND created_at < ?", from, to)

	if err := base.Session(&gorm.Session{}).Count(&stats.TotalJobs).Error; err != nil {
		return stats, err
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", StatusCompleted).Count(&stats.CompletedJobs).Error; err != nil {
		return stats, err
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", StatusFailed).Count(&stats.FailedJobs).Error; err != nil {
		return stats, err
	}
	var records struct{ Total int64 }
	if err := base.Session(&gorm.Session{}).
		Select("COALESCE(SUM(records_processed), 0) AS total").
		Where("status = ?", StatusCompleted).
		Scan(&records).Error; err != nil {
		return stats, err
	}
	stats.RecordsProcessed = records.Total
	return stats, nil
}
