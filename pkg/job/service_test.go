package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/etlstack/platform/pkg/queue"
	"github.com/etlstack/platform/pkg/source"
	"github.com/google/uuid"
)

type fakeStore struct {
	jobs  map[uuid.UUID]*Job
	stats ReportStats
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[uuid.UUID]*Job{}}
}

func (f *fakeStore) Create(ctx context.Context, j *Job) error {
	copied := *j
	f.jobs[j.ID] = &copied
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *j
	return &copied, nil
}

func (f *fakeStore) List(ctx context.Context, filter Filter) ([]Job, error) {
	return nil, nil
}

func (f *fakeStore) Transition(ctx context.Context, id uuid.UUID, from []string, updates map[string]interface{}) (bool, error) {
	j, ok := f.jobs[id]
	if !ok {
		return false, ErrJobNotFound
	}
	matched := false
	for _, status := range from {
		if j.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	for key, value := range updates {
		switch key {
		case "status":
			j.Status = value.(string)
		case "started_at":
			j.StartedAt = asTimePtr(value)
		case "completed_at":
			j.CompletedAt = asTimePtr(value)
		case "records_processed":
			j.RecordsProcessed = value.(int64)
		case "error_message":
			j.ErrorMessage = value.(string)
		}
	}
	return true, nil
}

func (f *fakeStore) ListStuck(ctx context.Context, cutoff time.Time) ([]Job, error) {
	var stuck []Job
	for _, j := range f.jobs {
		if j.Status == StatusRunning && j.StartedAt != nil && j.StartedAt.Before(cutoff) {
			stuck = append(stuck, *j)
		}
	}
	return stuck, nil
}

func (f *fakeStore) ReportStatsBetween(ctx context.Context, from, to time.Time) (ReportStats, error) {
	return f.stats, nil
}

func asTimePtr(v interface{}) *time.Time {
	if v == nil {
		return nil
	}
	t := v.(time.Time)
	return &t
}

type fakeSources struct {
	sources map[uuid.UUID]*source.DataSource
}

func (f *fakeSources) Get(ctx context.Context, id uuid.UUID) (*source.DataSource, error) {
	src, ok := f.sources[id]
	if !ok {
		return nil, source.ErrSourceNotFound
	}
	return src, nil
}

type recorded struct {
	name   string
	value  float64
	labels map[string]string
}

type fakeRecorder struct {
	metrics []recorded
}

func (f *fakeRecorder) Record(ctx context.Context, name string, value float64, metricType string, labels map[string]string) error {
	f.metrics = append(f.metrics, recorded{name: name, value: value, labels: labels})
	return nil
}

func (f *fakeRecorder) find(name string) (recorded, bool) {
	for _, m := range f.metrics {
		if m.name == name {
			return m, true
		}
	}
	return recorded{}, false
}

type fakePublisher struct {
	published []queue.Dispatch
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, msg queue.Dispatch) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

type fixture struct {
	store     *fakeStore
	sources   *fakeSources
	recorder  *fakeRecorder
	publisher *fakePublisher
	sleeps    []time.Duration
	svc       *Service
}

func newFixture() *fixture {
	f := &fixture{
		store:     newFakeStore(),
		sources:   &fakeSources{sources: map[uuid.UUID]*source.DataSource{}},
		recorder:  &fakeRecorder{},
		publisher: &fakePublisher{},
	}
	processor := &Processor{wait: func(time.Duration) {}}
	f.svc = NewService(f.store, f.sources, f.recorder, f.publisher, processor, time.Second)
	f.svc.sleep = func(d time.Duration) { f.sleeps = append(f.sleeps, d) }
	return f
}

func (f *fixture) addSource(sourceType string, active bool) *source.DataSource {
	src := &source.DataSource{
		ID:         uuid.New(),
		Name:       "orders-db",
		SourceType: sourceType,
		IsActive:   active,
	}
	f.sources.sources[src.ID] = src
	return src
}

func (f *fixture) addJob(src *source.DataSource, status string) *Job {
	j := &Job{
		ID:           uuid.New(),
		Name:         "nightly-sync",
		Status:       status,
		DataSourceID: src.ID,
		DataSource:   src,
	}
	f.store.jobs[j.ID] = j
	return j
}

func TestCreateDispatchesPendingJob(t *testing.T) {
	f := newFixture()
	src := f.addSource(source.TypeDatabase, true)

	j, err := f.svc.Create(context.Background(), CreateJobInput{
		Name:         "nightly-sync",
		DataSourceID: src.ID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", j.Status)
	}
	if len(f.publisher.published) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(f.publisher.published))
	}
	if f.publisher.published[0].JobID != j.ID.String() {
		t.Fatalf("dispatch carries wrong job id: %s", f.publisher.published[0].JobID)
	}
}

func TestCreateRejectsInactiveSource(t *testing.T) {
	f := newFixture()
	src := f.addSource(source.TypeDatabase, false)

	_, err := f.svc.Create(context.Background(), CreateJobInput{
		Name:         "nightly-sync",
		DataSourceID: src.ID,
	})
	if !errors.Is(err, ErrInactiveSource) {
		t.Fatalf("expected ErrInactiveSource, got %v", err)
	}
	if len(f.publisher.published) != 0 {
		t.Fatal("inactive source must not dispatch")
	}
}

func TestExecuteCompletesJob(t *testing.T) {
	f := newFixture()
	src := f.addSource(source.TypeDatabase, true)
	j := f.addJob(src, StatusPending)

	if err := f.svc.Execute(context.Background(), j.ID.String()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.store.jobs[j.ID]
	if stored.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	if stored.RecordsProcessed != 1000 {
		t.Fatalf("expected 1000 records, got %d", stored.RecordsProcessed)
	}
	for _, name := range []string{"etl_jobs_started", "etl_job_duration_seconds", "etl_records_processed"} {
		if _, ok := f.recorder.find(name); !ok {
			t.Fatalf("expected metric %s to be recorded", name)
		}
	}
}

func TestExecuteRetriesWithBackoffThenFails(t *testing.T) {
	f := newFixture()
	src := f.addSource("teletype", true) // unsupported, fails every attempt
	j := f.addJob(src, StatusPending)

	if err := f.svc.Execute(context.Background(), j.ID.String()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(f.sleeps) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), f.sleeps)
	}
	for i, d := range want {
		if f.sleeps[i] != d {
			t.Fatalf("backoff %d: expected %v, got %v", i, d, f.sleeps[i])
		}
	}

	stored := f.store.jobs[j.ID]
	if stored.Status != StatusFailed {
		t.Fatalf("expected failed after retry ceiling, got %s", stored.Status)
	}
	if stored.ErrorMessage == "" {
		t.Fatal("expected error message on failed job")
	}
	failed, ok := f.recorder.find("etl_jobs_failed")
	if !ok {
		t.Fatal("expected etl_jobs_failed metric")
	}
	if failed.labels["error_type"] != "unsupported_source_type" {
		t.Fatalf("expected unsupported_source_type label, got %s", failed.labels["error_type"])
	}
}

func TestExecuteBacksOffWhenReapedMidRun(t *testing.T) {
	f := newFixture()
	src := f.addSource(source.TypeDatabase, true)
	j := f.addJob(src, StatusPending)

	// While the worker is inside the processor, the reaper force-fails the
	// row. The completion transition must lose and record nothing.
	f.svc.processor = &Processor{wait: func(time.Duration) {
		stored := f.store.jobs[j.ID]
		stored.Status = StatusFailed
		stored.ErrorMessage = TimeoutMessage
		now := time.Now().UTC()
		stored.CompletedAt = &now
	}}

	if err := f.svc.Execute(context.Background(), j.ID.String()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.store.jobs[j.ID]
	if stored.Status != StatusFailed {
		t.Fatalf("expected reaped status to stand, got %s", stored.Status)
	}
	if stored.ErrorMessage != TimeoutMessage {
		t.Fatalf("expected timeout message to stand, got %q", stored.ErrorMessage)
	}
	for _, name := range []string{"etl_job_duration_seconds", "etl_records_processed"} {
		if _, ok := f.recorder.find(name); ok {
			t.Fatalf("completion metric %s recorded for a job another writer finalized", name)
		}
	}
}

func TestFailureFinalizationBacksOffWhenAlreadyFinalized(t *testing.T) {
	f := newFixture()
	src := f.addSource("teletype", true) // unsupported, fails every attempt
	j := f.addJob(src, StatusPending)

	// The job is cancelled while the worker sits in backoff; the failure
	// transition must lose and emit no failure metric.
	f.svc.sleep = func(time.Duration) {
		f.store.jobs[j.ID].Status = StatusCancelled
	}

	if err := f.svc.Execute(context.Background(), j.ID.String()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.store.jobs[j.ID].Status != StatusCancelled {
		t.Fatalf("expected cancellation to stand, got %s", f.store.jobs[j.ID].Status)
	}
	if _, ok := f.recorder.find("etl_jobs_failed"); ok {
		t.Fatal("failure metric recorded for a job another writer finalized")
	}
}

func TestExecuteDropsNonPendingJob(t *testing.T) {
	f := newFixture()
	src := f.addSource(source.TypeDatabase, true)
	j := f.addJob(src, StatusRunning)

	if err := f.svc.Execute(context.Background(), j.ID.String()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.store.jobs[j.ID].Status != StatusRunning {
		t.Fatalf("dropped dispatch must not change status, got %s", f.store.jobs[j.ID].Status)
	}
	if _, ok := f.recorder.find("etl_jobs_started"); ok {
		t.Fatal("dropped dispatch must not record start metric")
	}
}

func TestRetryRequiresTerminalStatus(t *testing.T) {
	f := newFixture()
	src := f.addSource(source.TypeDatabase, true)
	j := f.addJob(src, StatusRunning)

	_, err := f.svc.Retry(context.Background(), j.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestRetryClearsFailureState(t *testing.T) {
	f := newFixture()
	src := f.addSource(source.TypeDatabase, true)
	j := f.addJob(src, StatusFailed)
	started := time.Now().Add(-time.Hour)
	completed := time.Now().Add(-30 * time.Minute)
	f.store.jobs[j.ID].StartedAt = &started
	f.store.jobs[j.ID].CompletedAt = &completed
	f.store.jobs[j.ID].ErrorMessage = "temporary outage"

	retried, err := f.svc.Retry(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retried.Status != StatusPending {
		t.Fatalf("expected pending, got %s", retried.Status)
	}
	if retried.ErrorMessage != "" || retried.StartedAt != nil || retried.CompletedAt != nil {
		t.Fatal("retry must clear error message and timestamps")
	}
	if len(f.publisher.published) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(f.publisher.published))
	}
	if f.publisher.published[0].Tags["trigger"] != "retry" {
		t.Fatal("retry dispatch must be tagged trigger=retry")
	}
}

func TestReapStuckFailsOnlyExpiredRunningJobs(t *testing.T) {
	f := newFixture()
	src := f.addSource(source.TypeDatabase, true)

	stuck := f.addJob(src, StatusRunning)
	old := time.Now().UTC().Add(-3 * time.Hour)
	f.store.jobs[stuck.ID].StartedAt = &old

	fresh := f.addJob(src, StatusRunning)
	recent := time.Now().UTC().Add(-10 * time.Minute)
	f.store.jobs[fresh.ID].StartedAt = &recent

	f.addJob(src, StatusPending)

	reaped, err := f.svc.ReapStuck(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("expected 1 reaped job, got %d", reaped)
	}
	if f.store.jobs[stuck.ID].Status != StatusFailed {
		t.Fatalf("expected stuck job failed, got %s", f.store.jobs[stuck.ID].Status)
	}
	if f.store.jobs[stuck.ID].ErrorMessage != TimeoutMessage {
		t.Fatalf("expected timeout message, got %q", f.store.jobs[stuck.ID].ErrorMessage)
	}
	if f.store.jobs[fresh.ID].Status != StatusRunning {
		t.Fatal("recent running job must be left alone")
	}
	if _, ok := f.recorder.find("etl_jobs_timeout"); !ok {
		t.Fatal("expected etl_jobs_timeout metric")
	}
}

func TestDailyReportRecordsGauges(t *testing.T) {
	f := newFixture()
	f.store.stats = ReportStats{
		TotalJobs:        10,
		CompletedJobs:    7,
		FailedJobs:       3,
		RecordsProcessed: 42000,
	}

	day := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)
	if _, err := f.svc.DailyReport(context.Background(), day); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rate, ok := f.recorder.find("daily_report_success_rate")
	if !ok {
		t.Fatal("expected daily_report_success_rate metric")
	}
	if rate.value != 70 {
		t.Fatalf("expected 70%% success rate, got %v", rate.value)
	}
	if rate.labels["date"] != "2026-08-25" {
		t.Fatalf("expected date label 2026-08-25, got %s", rate.labels["date"])
	}
	total, ok := f.recorder.find("daily_report_total_jobs")
	if !ok || total.value != 10 {
		t.Fatalf("expected daily_report_total_jobs=10, got %v (found=%v)", total.value, ok)
	}
}
