package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/etlstack/platform/pkg/common/config"
	"github.com/etlstack/platform/pkg/common/database"
	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/etlstack/platform/pkg/job"
	"github.com/etlstack/platform/pkg/metric"
	"github.com/etlstack/platform/pkg/pipeline"
	"github.com/etlstack/platform/pkg/queue"
	"github.com/etlstack/platform/pkg/source"
)

func main() {
	logger.Init()
	cfg := config.Load()

	pipeCfg, err := pipeline.LoadConfig(cfg.PipelineConfigPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load pipeline config")
	}

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

	runner := pipeline.New(pipeCfg.Pipeline, metricSvc)
	scheduler := pipeline.NewScheduler(pipeCfg, runner, sourceRepo, jobRepo, jobSvc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Log.Info("Shutting down pipeline runner...")
		cancel()
	}()

	logger.Log.WithFields(map[string]interface{}{
		"pipeline":       pipeCfg.Pipeline.Name,
		"daily_enabled":  pipeCfg.DailySchedule.Enabled,
		"daily_hour_utc": pipeCfg.DailySchedule.Hour,
	}).Info("Pipeline runner started")

	scheduler.Start(ctx)

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("Failed to close Postgres")
	}
	logger.Log.Info("Pipeline runner stopped")
}
