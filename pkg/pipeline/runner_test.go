package pipeline

import (
	"context"
	"testing"
)

type capturedMetric struct {
	name   string
	value  float64
	labels map[string]string
}

type captureRecorder struct {
	metrics []capturedMetric
}

func (c *captureRecorder) Record(ctx context.Context, name string, value float64, metricType string, labels map[string]string) error {
	c.metrics = append(c.metrics, capturedMetric{name: name, value: value, labels: labels})
	return nil
}

func TestRunLoadsNumericAggregates(t *testing.T) {
	recorder := &captureRecorder{}
	p := New(StageConfig{
		Name:        "offline_etl",
		BatchSize:   10,
		TargetTable: "processed_data",
	}, recorder)

	if err := p.Run(context.Background(), map[string]string{"schedule": "daily"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var total *capturedMetric
	for i := range recorder.metrics {
		if recorder.metrics[i].name == "etl_total_records" {
			total = &recorder.metrics[i]
		}
	}
	if total == nil {
		t.Fatal("expected etl_total_records to be recorded")
	}
	if total.value != 10 {
		t.Fatalf("expected 10 records, got %v", total.value)
	}
	if total.labels["pipeline"] != "offline_etl" || total.labels["table"] != "processed_data" {
		t.Fatalf("unexpected labels: %v", total.labels)
	}

	// Distributions are non-numeric and must not be loaded.
	for _, m := range recorder.metrics {
		if m.name == "etl_value_distribution" || m.name == "etl_status_distribution" {
			t.Fatalf("non-numeric aggregate loaded: %s", m.name)
		}
	}
}
