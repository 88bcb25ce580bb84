package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/etlstack/platform/pkg/metric"
	"github.com/etlstack/platform/pkg/queue"
	"github.com/etlstack/platform/pkg/source"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var (
	ErrInvalidState   = errors.New("only failed or cancelled jobs can be retried")
	ErrInactiveSource = errors.New("cannot create job for inactive data source")
)

// Store is the persistence surface the lifecycle manager needs; *Repository
// satisfies it.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	List(ctx context.Context, filter Filter) ([]Job, error)
	Transition(ctx context.Context, id uuid.UUID, from []string, updates map[string]interface{}) (bool, error)
	ListStuck(ctx context.Context, cutoff time.Time) ([]Job, error)
	ReportStatsBetween(ctx context.Context, from, to time.Time) (ReportStats, error)
}

type SourceStore interface {
	Get(ctx context.Context, id uuid.UUID) (*source.DataSource, error)
}

// Service owns the ETL job state machine: pending -> running ->
// completed/failed/cancelled, with failed/cancelled re-enterable through
// Retry. All status changes go through guarded transitions; nothing mutates
// job rows from outside this type.
type Service struct {
	store       Store
	sources     SourceStore
	metrics     metric.Recorder
	dispatcher  queue.Publisher
	processor   *Processor
	maxRetries  int
	backoffBase time.Duration
	sleep       func(time.Duration)
	now         func() time.Time
}

func NewService(store Store, sources SourceStore, metrics metric.Recorder, dispatcher queue.Publisher, processor *Processor, backoffBase time.Duration) *Service {
	if backoffBase <= 0 {
		backoffBase = time.Minute
	}
	return &Service{
		store:       store,
		sources:     sources,
		metrics:     metrics,
		dispatcher:  dispatcher,
		processor:   processor,
		maxRetries:  MaxRetries,
		backoffBase: backoffBase,
		sleep:       time.Sleep,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create validates the owning source, persists the job as pending, and hands
// it to the queue without waiting for execution.
func (s *Service) Create(ctx context.Context, input CreateJobInput) (*Job, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	src, err := s.sources.Get(ctx, input.DataSourceID)
	if err != nil {
		return nil, err
	}
	if !src.IsActive {
		return nil, ErrInactiveSource
	}

	j := &Job{
		ID:            uuid.New(),
		Name:          name,
		Status:        StatusPending,
		DataSourceID:  src.ID,
		DataSource:    src,
		Configuration: datatypes.JSONMap(input.Configuration),
		CreatedAt:     s.now(),
		UpdatedAt:     s.now(),
	}
	if err := s.store.Create(ctx, j); err != nil {
		return nil, err
	}

	logger.Log.WithFields(map[string]interface{}{
		"job_id":      j.ID,
		"job_name":    j.Name,
		"data_source": src.Name,
	}).Info("Created ETL job")

	if err := s.dispatcher.Publish(ctx, queue.Dispatch{JobID: j.ID.String()}); err != nil {
		return nil, fmt.Errorf("dispatching job: %w", err)
	}
	return j, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]Job, error) {
	return s.store.List(ctx, filter)
}

// Execute runs one dispatched job to a terminal status. Failures are retried
// in place with exponential backoff (backoffBase * 2^attempt) up to the
// ceiling; only then does the job surface as failed.
func (s *Service) Execute(ctx context.Context, jobID string) error {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	j, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	srcName, srcType, err := s.resolveSource(ctx, j)
	if err != nil {
		s.finalizeFailed(ctx, j, srcName, err)
		return nil
	}

	startedAt := s.now()
	ok, err := s.store.Transition(ctx, j.ID, []string{StatusPending}, map[string]interface{}{
		"status":     StatusRunning,
		"started_at": startedAt,
	})
	if err != nil {
		return err
	}
	if !ok {
		logger.Log.WithFields(map[string]interface{}{
			"job_id": j.ID,
			"status": j.Status,
		}).Warn("Job is not pending, dropping dispatch")
		return nil
	}
	j.StartedAt = &startedAt

	logger.Log.WithFields(map[string]interface{}{
		"job_id":   j.ID,
		"job_name": j.Name,
	}).Info("Starting ETL job processing")

	s.record(ctx, "etl_jobs_started", 1, metric.TypeCounter, map[string]string{
		"job_name":    j.Name,
		"data_source": srcName,
	})

	var records int64
	var procErr error
	for attempt := 0; ; attempt++ {
		records, procErr = s.processor.Process(srcType, map[string]interface{}(j.Configuration))
		if procErr == nil {
			break
		}
		if attempt >= s.maxRetries {
			break
		}
		backoff := s.backoffBase * (1 << attempt)
		logger.Log.WithError(procErr).WithFields(map[string]interface{}{
			"job_id":  j.ID,
			"retry":   attempt + 1,
			"backoff": backoff.String(),
		}).Info("Retrying ETL job")
		s.sleep(backoff)
	}

	if procErr != nil {
		s.finalizeFailed(ctx, j, srcName, procErr)
		return nil
	}

	completedAt := s.now()
	ok, err = s.store.Transition(ctx, j.ID, []string{StatusRunning}, map[string]interface{}{
		"status":            StatusCompleted,
		"completed_at":      completedAt,
		"records_processed": records,
	})
	if err != nil {
		return err
	}
	if !ok {
		// Another writer finalized the job mid-run (reaper timeout, most
		// likely). The loser backs off without recording success.
		logger.Log.WithField("job_id", j.ID).Warn("Job was finalized by another writer, dropping completion")
		return nil
	}

	duration := completedAt.Sub(startedAt).Seconds()
	s.record(ctx, "etl_job_duration_seconds", duration, metric.TypeGauge, map[string]string{
		"job_name": j.Name,
		"status":   StatusCompleted,
	})
	s.record(ctx, "etl_records_processed", float64(records), metric.TypeGauge, map[string]string{
		"job_name":    j.Name,
		"data_source": srcName,
	})

	logger.Log.WithFields(map[string]interface{}{
		"job_id":            j.ID,
		"records_processed": records,
		"duration":          duration,
	}).Info("ETL job completed successfully")

	return nil
}

// Retry re-enters a failed or cancelled job into pending, clearing the error
// and timestamps, and re-dispatches it.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*Job, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}

	ok, err := s.store.Transition(ctx, id, []string{StatusFailed, StatusCancelled}, map[string]interface{}{
		"status":        StatusPending,
		"error_message": "",
		"started_at":    nil,
		"completed_at":  nil,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	if err := s.dispatcher.Publish(ctx, queue.Dispatch{
		JobID: id.String(),
		Tags:  map[string]string{"trigger": "retry"},
	}); err != nil {
		return nil, fmt.Errorf("dispatching job: %w", err)
	}

	logger.Log.WithField("job_id", id).Info("Retrying ETL job")
	return s.store.Get(ctx, id)
}

// ReapStuck force-fails every running job whose started_at is older than
// StuckJobTTL and returns how many were transitioned.
func (s *Service) ReapStuck(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-StuckJobTTL)
	stuck, err := s.store.ListStuck(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for i := range stuck {
		j := &stuck[i]
		logger.Log.WithFields(map[string]interface{}{
			"job_id":     j.ID,
			"started_at": j.StartedAt,
		}).Warn("Found stuck ETL job")

		ok, err := s.store.Transition(ctx, j.ID, []string{StatusRunning}, map[string]interface{}{
			"status":        StatusFailed,
			"error_message": TimeoutMessage,
			"completed_at":  s.now(),
		})
		if err != nil {
			return reaped, err
		}
		if !ok {
			continue
		}
		reaped++
		s.record(ctx, "etl_jobs_timeout", 1, metric.TypeCounter, map[string]string{
			"job_name": j.Name,
		})
	}
	return reaped, nil
}

// DailyReport aggregates the given day's jobs and records the summary as
// daily_report_* gauges.
func (s *Service) DailyReport(ctx context.Context, day time.Time) (ReportStats, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	stats, err := s.store.ReportStatsBetween(ctx, from, to)
	if err != nil {
		return stats, err
	}

	successRate := 0.0
	if stats.TotalJobs > 0 {
		successRate = float64(stats.CompletedJobs) / float64(stats.TotalJobs) * 100
	}
	date := from.Format("2006-01-02")

	logger.Log.WithFields(map[string]interface{}{
		"date":           date,
		"total_jobs":     stats.TotalJobs,
		"completed_jobs": stats.CompletedJobs,
		"failed_jobs":    stats.FailedJobs,
		"total_records":  stats.RecordsProcessed,
		"success_rate":   successRate,
	}).Info("Daily ETL report generated")

	labels := map[string]string{"date": date}
	s.record(ctx, "daily_report_total_jobs", float64(stats.TotalJobs), metric.TypeGauge, labels)
	s.record(ctx, "daily_report_completed_jobs", float64(stats.CompletedJobs), metric.TypeGauge, labels)
	s.record(ctx, "daily_report_failed_jobs", float64(stats.FailedJobs), metric.TypeGauge, labels)
	s.record(ctx, "daily_report_total_records_processed", float64(stats.RecordsProcessed), metric.TypeGauge, labels)
	s.record(ctx, "daily_report_success_rate", successRate, metric.TypeGauge, labels)

	return stats, nil
}

func (s *Service) finalizeFailed(ctx context.Context, j *Job, srcName string, cause error) {
	logger.Log.WithError(cause).WithField("job_id", j.ID).Error("ETL job failed")

	ok, err := s.store.Transition(ctx, j.ID, []string{StatusPending, StatusRunning}, map[string]interface{}{
		"status":        StatusFailed,
		"completed_at":  s.now(),
		"error_message": cause.Error(),
	})
	if err != nil {
		logger.Log.WithError(err).WithField("job_id", j.ID).Error("failed to finalize job")
		return
	}
	if !ok {
		logger.Log.WithField("job_id", j.ID).Warn("Job was finalized by another writer, dropping failure")
		return
	}

	s.record(ctx, "etl_jobs_failed", 1, metric.TypeCounter, map[string]string{
		"job_name":   j.Name,
		"error_type": classify(cause),
	})
}

func (s *Service) resolveSource(ctx context.Context, j *Job) (name, sourceType string, err error) {
	if j.DataSource != nil {
		return j.DataSource.Name, j.DataSource.SourceType, nil
	}
	src, err := s.sources.Get(ctx, j.DataSourceID)
	if err != nil {
		return "", "", fmt.Errorf("resolving data source: %w", err)
	}
	return src.Name, src.SourceType, nil
}

func (s *Service) record(ctx context.Context, name string, value float64, metricType string, labels map[string]string) {
	if err := s.metrics.Record(ctx, name, value, metricType, labels); err != nil {
		logger.Log.WithError(err).WithField("metric", name).Error("failed to record metric")
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedSourceType):
		return "unsupported_source_type"
	case errors.Is(err, source.ErrSourceNotFound):
		return "missing_data_source"
	default:
		return "processing_error"
	}
}
