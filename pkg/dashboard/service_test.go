package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/etlstack/platform/pkg/job"
	"github.com/google/uuid"
)

type fakeJobStats struct {
	total     int64
	running   int64
	completed int64
	failed    int64
	recent    []job.Job
	windows   map[string][2]time.Time
}

func (f *fakeJobStats) Count(ctx context.Context) (int64, error) {
	return f.total, nil
}

func (f *fakeJobStats) CountByStatus(ctx context.Context, status string) (int64, error) {
	return f.running, nil
}

func (f *fakeJobStats) CountCompletedBetween(ctx context.Context, status string, from, to time.Time) (int64, error) {
	if f.windows == nil {
		f.windows = map[string][2]time.Time{}
	}
	f.windows[status] = [2]time.Time{from, to}
	if status == job.StatusCompleted {
		return f.completed, nil
	}
	return f.failed, nil
}

func (f *fakeJobStats) ListRecent(ctx context.Context, limit int) ([]job.Job, error) {
	if limit < len(f.recent) {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

type fakeSourceStats struct {
	total  int64
	active int64
}

func (f *fakeSourceStats) Count(ctx context.Context) (int64, error)       { return f.total, nil }
func (f *fakeSourceStats) CountActive(ctx context.Context) (int64, error) { return f.active, nil }

func TestStatsComputesWithoutCache(t *testing.T) {
	jobs := &fakeJobStats{
		total:     20,
		running:   2,
		completed: 5,
		failed:    1,
		recent:    []job.Job{{ID: uuid.New(), Name: "nightly-sync"}},
	}
	sources := &fakeSourceStats{total: 4, active: 3}
	svc := NewService(jobs, sources, nil, time.Minute)

	frozen := time.Date(2026, 8, 26, 15, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalDataSources != 4 || stats.ActiveDataSources != 3 {
		t.Fatalf("unexpected source counts: %+v", stats)
	}
	if stats.TotalETLJobs != 20 || stats.RunningJobs != 2 {
		t.Fatalf("unexpected job counts: %+v", stats)
	}
	if stats.CompletedToday != 5 || stats.FailedToday != 1 {
		t.Fatalf("unexpected today counts: %+v", stats)
	}
	if len(stats.RecentJobs) != 1 {
		t.Fatalf("expected one recent job, got %d", len(stats.RecentJobs))
	}

	window := jobs.windows[job.StatusCompleted]
	wantStart := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	if !window[0].Equal(wantStart) || !window[1].Equal(wantStart.AddDate(0, 0, 1)) {
		t.Fatalf("unexpected today window: %v", window)
	}
}

func TestStatsRecentJobsNeverNil(t *testing.T) {
	svc := NewService(&fakeJobStats{}, &fakeSourceStats{}, nil, time.Minute)

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.RecentJobs == nil {
		t.Fatal("recent_jobs must serialize as an empty array, not null")
	}
}
