package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/etlstack/platform/pkg/job"
	"github.com/etlstack/platform/pkg/source"
	"github.com/google/uuid"
)

// SourceLister reports data sources touched after a cutoff, for the
// data-availability sensor.
type SourceLister interface {
	ListUpdatedSince(ctx context.Context, cutoff time.Time) ([]source.DataSource, error)
}

// FailedJobLister reports recently failed jobs whose error matches a
// substring, for the failure-recovery sensor.
type FailedJobLister interface {
	ListFailedSince(ctx context.Context, cutoff time.Time, errorContains string) ([]job.Job, error)
}

// JobRetrier resubmits a terminal job.
type JobRetrier interface {
	Retry(ctx context.Context, id uuid.UUID) (*job.Job, error)
}

// runKeyTTL bounds the dedupe map in a long-lived runner. Every run key is
// time-scoped (date, hour, update timestamp), so no key can legitimately
// recur after this horizon.
const runKeyTTL = 48 * time.Hour

// Scheduler drives pipeline materializations: a daily run at a fixed hour, an
// optional frequent interval run, plus two sensors. Every trigger carries a
// run key so the same condition never fires twice.
type Scheduler struct {
	cfg      Config
	pipeline *Pipeline
	sources  SourceLister
	jobs     FailedJobLister
	retrier  JobRetrier

	mu   sync.Mutex
	runs map[string]time.Time

	now func() time.Time
}

func NewScheduler(cfg Config, p *Pipeline, sources SourceLister, jobs FailedJobLister, retrier JobRetrier) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		pipeline: p,
		sources:  sources,
		jobs:     jobs,
		retrier:  retrier,
		runs:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Start launches all enabled loops and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup

	if s.cfg.DailySchedule.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runDaily(ctx)
		}()
	}
	if s.cfg.FrequentSchedule.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runInterval(ctx)
		}()
	}
	if s.sources != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runDataAvailabilitySensor(ctx)
		}()
	}
	if s.jobs != nil && s.retrier != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runFailureRecoverySensor(ctx)
		}()
	}

	wg.Wait()
}

func (s *Scheduler) runDaily(ctx context.Context) {
	for {
		next := s.nextDailyRun()
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		key := fmt.Sprintf("daily_%s", next.Format("2006_01_02"))
		s.trigger(ctx, key, map[string]string{"schedule": "daily"})
	}
}

func (s *Scheduler) nextDailyRun() time.Time {
	now := s.now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.DailySchedule.Hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

func (s *Scheduler) runInterval(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FrequentSchedule.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			key := fmt.Sprintf("extract_%s", s.now().UTC().Format("2006_01_02_15"))
			s.trigger(ctx, key, map[string]string{"schedule": "frequent"})
		}
	}
}

// runDataAvailabilitySensor materializes the pipeline whenever an active data
// source was updated within the lookback window. The run key binds the source
// to its update timestamp, so a source only fires again after it changes.
func (s *Scheduler) runDataAvailabilitySensor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.DataAvailabilitySensor.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := s.now().UTC().Add(-s.cfg.DataAvailabilitySensor.Window)
			sources, err := s.sources.ListUpdatedSince(ctx, cutoff)
			if err != nil {
				logger.Log.WithError(err).Error("data availability sensor query failed")
				continue
			}
			for _, src := range sources {
				key := fmt.Sprintf("sensor_%s_%d", src.ID, src.UpdatedAt.Unix())
				s.trigger(ctx, key, map[string]string{
					"sensor":      "data_availability",
					"data_source": src.Name,
				})
			}
		}
	}
}

// runFailureRecoverySensor resubmits jobs that failed recently with a
// transient-looking error. Retrying goes through the job service so the
// normal dispatch path applies.
func (s *Scheduler) runFailureRecoverySensor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FailureRecoverySensor.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := s.now().UTC().Add(-s.cfg.FailureRecoverySensor.Window)
			failed, err := s.jobs.ListFailedSince(ctx, cutoff, "temporary")
			if err != nil {
				logger.Log.WithError(err).Error("failure recovery sensor query failed")
				continue
			}
			for _, j := range failed {
				key := fmt.Sprintf("retry_%s", j.ID)
				if !s.claim(key) {
					continue
				}
				if _, err := s.retrier.Retry(ctx, j.ID); err != nil {
					logger.Log.WithError(err).WithField("job_id", j.ID).Warn("failure recovery retry skipped")
					continue
				}
				logger.Log.WithField("job_id", j.ID).Info("failure recovery retry submitted")
			}
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, key string, tags map[string]string) {
	if !s.claim(key) {
		return
	}
	tags["run_key"] = key
	if err := s.pipeline.Run(ctx, tags); err != nil {
		logger.Log.WithError(err).WithField("run_key", key).Error("pipeline run failed")
	}
}

func (s *Scheduler) claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, claimedAt := range s.runs {
		if now.Sub(claimedAt) > runKeyTTL {
			delete(s.runs, k)
		}
	}

	if _, done := s.runs[key]; done {
		return false
	}
	s.runs[key] = now
	return true
}
