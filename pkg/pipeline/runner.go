package pipeline

import (
	"context"
	"fmt"

	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/etlstack/platform/pkg/metric"
)

// Pipeline materializes the offline asset chain: extract, clean, aggregate,
// then load the numeric aggregates into the metric store.
type Pipeline struct {
	cfg     StageConfig
	metrics metric.Recorder
}

func New(cfg StageConfig, metrics metric.Recorder) *Pipeline {
	return &Pipeline{cfg: cfg, metrics: metrics}
}

// Run executes all stages in order. Tags describe what triggered the run and
// are carried into the log lines only; the loaded metrics are labeled with the
// pipeline name and target table.
func (p *Pipeline) Run(ctx context.Context, tags map[string]string) error {
	log := logger.Log.WithField("pipeline", p.cfg.Name)
	for k, v := range tags {
		log = log.WithField(k, v)
	}

	raw := Extract(p.cfg)
	log.WithField("records", len(raw)).Info("extract stage complete")

	cleaned, err := Clean(raw)
	if err != nil {
		log.WithError(err).Error("clean stage failed")
		return fmt.Errorf("clean stage: %w", err)
	}
	log.WithField("records", len(cleaned)).Info("clean stage complete")

	aggregates := Aggregate(cleaned)
	log.WithField("aggregates", len(aggregates)).Info("aggregate stage complete")

	if err := p.load(ctx, aggregates); err != nil {
		log.WithError(err).Error("load stage failed")
		return fmt.Errorf("load stage: %w", err)
	}
	log.Info("pipeline run complete")
	return nil
}

func (p *Pipeline) load(ctx context.Context, aggregates map[string]interface{}) error {
	labels := map[string]string{
		"pipeline": p.cfg.Name,
		"table":    p.cfg.TargetTable,
	}
	for key, value := range aggregates {
		num, ok := asFloat(value)
		if !ok {
			continue
		}
		name := "etl_" + key
		if err := p.metrics.Record(ctx, name, num, metric.TypeGauge, labels); err != nil {
			return fmt.Errorf("record %s: %w", name, err)
		}
	}
	return nil
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
