package metric

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Recorder is what the rest of the platform uses to emit observations as a
// side effect of lifecycle events.
type Recorder interface {
	Record(ctx context.Context, name string, value float64, metricType string, labels map[string]string) error
}

// Store is the persistence surface the service needs; *Repository satisfies it.
type Store interface {
	Create(ctx context.Context, m *MetricData) error
	List(ctx context.Context, filter Filter) ([]MetricData, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) Record(ctx context.Context, name string, value float64, metricType string, labels map[string]string) error {
	labelMap := map[string]interface{}{}
	for k, v := range labels {
		labelMap[k] = v
	}
	_, err := s.Create(ctx, CreateMetricInput{
		MetricName:  name,
		MetricValue: value,
		MetricType:  metricType,
		Labels:      labelMap,
	})
	return err
}

func (s *Service) Create(ctx context.Context, input CreateMetricInput) (*MetricData, error) {
	if input.MetricName == "" {
		return nil, fmt.Errorf("metric_name is required")
	}
	metricType := input.MetricType
	if metricType == "" {
		metricType = TypeGauge
	}
	if !ValidType(metricType) {
		return nil, fmt.Errorf("metric type must be one of: counter, gauge, histogram, summary")
	}

	m := &MetricData{
		ID:          uuid.New(),
		MetricName:  input.MetricName,
		MetricValue: input.MetricValue,
		MetricType:  metricType,
		Labels:      datatypes.JSONMap(input.Labels),
		Timestamp:   s.now(),
		CreatedAt:   s.now(),
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, filter Filter) ([]MetricData, error) {
	return s.store.List(ctx, filter)
}

// RunRetention purges observations older than RetentionDays and records the
// deleted count as a gauge of its own.
func (s *Service) RunRetention(ctx context.Context) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -RetentionDays)
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention sweep failed: %w", err)
	}

	logger.Log.WithField("deleted_count", deleted).Info("Cleaned up old metric data")

	if err := s.Record(ctx, "metrics_cleanup", float64(deleted), TypeGauge, map[string]string{
		"retention_days": strconv.Itoa(RetentionDays),
	}); err != nil {
		logger.Log.WithError(err).Error("failed to record cleanup metric")
	}
	return deleted, nil
}
