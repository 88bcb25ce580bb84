package dashboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/etlstack/platform/pkg/job"
	"github.com/redis/go-redis/v9"
)

const cacheKey = "dashboard:stats"

type Stats struct {
	TotalDataSources  int64     `json:"total_data_sources"`
	ActiveDataSources int64     `json:"active_data_sources"`
	TotalETLJobs      int64     `json:"total_etl_jobs"`
	RunningJobs       int64     `json:"running_jobs"`
	CompletedToday    int64     `json:"completed_jobs_today"`
	FailedToday       int64     `json:"failed_jobs_today"`
	RecentJobs        []job.Job `json:"recent_jobs"`
}

type JobStats interface {
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
	CountCompletedBetween(ctx context.Context, status string, from, to time.Time) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]job.Job, error)
}

type SourceStats interface {
	Count(ctx context.Context) (int64, error)
	CountActive(ctx context.Context) (int64, error)
}

type Service struct {
	jobs     JobStats
	sources  SourceStats
	cache    *redis.Client
	cacheTTL time.Duration
	now      func() time.Time
}

// NewService builds the aggregate view. cache may be nil, in which case every
// call recomputes.
func NewService(jobs JobStats, sources SourceStats, cache *redis.Client, cacheTTL time.Duration) *Service {
	return &Service{
		jobs:     jobs,
		sources:  sources,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached Stats
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	stats, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw, s.cacheTTL).Err(); err != nil {
				logger.Log.WithError(err).Warn("failed to cache dashboard stats")
			}
		}
	}
	return stats, nil
}

func (s *Service) compute(ctx context.Context) (*Stats, error) {
	var stats Stats
	var err error

	if stats.TotalDataSources, err = s.sources.Count(ctx); err != nil {
		return nil, err
	}
	if stats.ActiveDataSources, err = s.sources.CountActive(ctx); err != nil {
		return nil, err
	}
	if stats.TotalETLJobs, err = s.jobs.Count(ctx); err != nil {
		return nil, err
	}
	if stats.RunningJobs, err = s.jobs.CountByStatus(ctx, job.StatusRunning); err != nil {
		return nil, err
	}

	now := s.now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	todayEnd := todayStart.AddDate(0, 0, 1)
	if stats.CompletedToday, err = s.jobs.CountCompletedBetween(ctx, job.StatusCompleted, todayStart, todayEnd); err != nil {
		return nil, err
	}
	if stats.FailedToday, err = s.jobs.CountCompletedBetween(ctx, job.StatusFailed, todayStart, todayEnd); err != nil {
		return nil, err
	}
	if stats.RecentJobs, err = s.jobs.ListRecent(ctx, 5); err != nil {
		return nil, err
	}
	if stats.RecentJobs == nil {
		stats.RecentJobs = []job.Job{}
	}
	return &stats, nil
}
