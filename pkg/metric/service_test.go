package metric

import (
	"context"
	"testing"
	"time"
)

type fakeMetricStore struct {
	created []MetricData
	cutoff  time.Time
	deleted int64
}

func (f *fakeMetricStore) Create(ctx context.Context, m *MetricData) error {
	f.created = append(f.created, *m)
	return nil
}

func (f *fakeMetricStore) List(ctx context.Context, filter Filter) ([]MetricData, error) {
	return f.created, nil
}

func (f *fakeMetricStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, nil
}

func TestCreateDefaultsToGauge(t *testing.T) {
	store := &fakeMetricStore{}
	svc := NewService(store)

	m, err := svc.Create(context.Background(), CreateMetricInput{
		MetricName:  "queue_depth",
		MetricValue: 12,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.created[0].MetricType != TypeGauge {
		t.Fatalf("expected gauge, got %s", store.created[0].MetricType)
	}
	if m == nil || m.ID != store.created[0].ID {
		t.Fatal("expected the stored observation to be returned")
	}
}

func TestCreateRejectsUnknownType(t *testing.T) {
	svc := NewService(&fakeMetricStore{})

	_, err := svc.Create(context.Background(), CreateMetricInput{
		MetricName:  "queue_depth",
		MetricValue: 12,
		MetricType:  "odometer",
	})
	if err == nil {
		t.Fatal("expected error for unknown metric type")
	}
}

func TestRecordCarriesLabels(t *testing.T) {
	store := &fakeMetricStore{}
	svc := NewService(store)

	err := svc.Record(context.Background(), "etl_jobs_started", 1, TypeCounter, map[string]string{
		"job_name": "nightly-sync",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.created[0].Labels["job_name"] != "nightly-sync" {
		t.Fatalf("expected job_name label, got %v", store.created[0].Labels)
	}
}

func TestRunRetentionUsesThirtyDayCutoff(t *testing.T) {
	store := &fakeMetricStore{deleted: 17}
	svc := NewService(store)
	frozen := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	deleted, err := svc.RunRetention(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 17 {
		t.Fatalf("expected 17 deleted, got %d", deleted)
	}
	want := frozen.AddDate(0, 0, -RetentionDays)
	if !store.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, store.cutoff)
	}

	// The sweep itself is recorded as a gauge.
	if len(store.created) != 1 {
		t.Fatalf("expected one cleanup metric, got %d", len(store.created))
	}
	cleanup := store.created[0]
	if cleanup.MetricName != "metrics_cleanup" || cleanup.MetricValue != 17 {
		t.Fatalf("unexpected cleanup metric: %+v", cleanup)
	}
	if cleanup.Labels["retention_days"] != "30" {
		t.Fatalf("expected retention_days label, got %v", cleanup.Labels)
	}
}
