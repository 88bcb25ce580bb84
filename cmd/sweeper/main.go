package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/etlstack/platform/pkg/common/config"
	"github.com/etlstack/platform/pkg/common/database"
	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/etlstack/platform/pkg/job"
	"github.com/etlstack/platform/pkg/metric"
	"github.com/etlstack/platform/pkg/queue"
	"github.com/etlstack/platform/pkg/source"
)

// The sweeper owns the periodic maintenance work: reaping stuck jobs,
// purging expired metrics, and producing the daily report.
func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to Postgres")
	}

	jobRepo := job.NewRepository(db)
	sourceRepo := source.NewRepository(db)
	metricSvc := metric.NewService(metric.NewRepository(db))

	jobQueue := queue.NewKafkaQueue(cfg.KafkaBrokers, cfg.KafkaJobTopic, cfg.KafkaGroupID)
	defer jobQueue.Close()

	jobSvc := job.NewService(jobRepo, sourceRepo, metricSvc, jobQueue, job.NewProcessor(), cfg.RetryBackoffBase)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.ReaperInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reaped, err := jobSvc.ReapStuck(ctx)
				recordHealthCheck(ctx, metricSvc, "reaper", err)
				if err != nil {
					logger.Log.WithError(err).Error("Stuck job sweep failed")
					continue
				}
				if reaped > 0 {
					logger.Log.WithField("count", reaped).Info("Stuck jobs timed out")
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.RetentionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purged, err := metricSvc.RunRetention(ctx)
				recordHealthCheck(ctx, metricSvc, "retention", err)
				if err != nil {
					logger.Log.WithError(err).Error("Metric retention sweep failed")
					continue
				}
				logger.Log.WithField("purged", purged).Info("Metric retention sweep complete")
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.ReportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				yesterday := time.Now().UTC().AddDate(0, 0, -1)
				stats, err := jobSvc.DailyReport(ctx, yesterday)
				recordHealthCheck(ctx, metricSvc, "daily_report", err)
				if err != nil {
					logger.Log.WithError(err).Error("Daily report failed")
					continue
				}
				logger.Log.WithFields(map[string]interface{}{
					"date":       yesterday.Format("2006-01-02"),
					"total_jobs": stats.TotalJobs,
					"completed":  stats.CompletedJobs,
					"failed":     stats.FailedJobs,
				}).Info("Daily report recorded")
			}
		}
	}()

	logger.Log.Info("Sweeper started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down sweeper...")
	cancel()
	wg.Wait()

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("Failed to close Postgres")
	}
	logger.Log.Info("Sweeper stopped")
}

func recordHealthCheck(ctx context.Context, metrics *metric.Service, component string, runErr error) {
	value := 1.0
	if runErr != nil {
		value = 0.0
	}
	labels := map[string]string{"component": component}
	if err := metrics.Record(ctx, "system_health_check", value, metric.TypeCounter, labels); err != nil {
		logger.Log.WithError(err).Warn("Failed to record health check metric")
	}
}
