package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/etlstack/platform/pkg/common/config"
	"github.com/etlstack/platform/pkg/common/database"
	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/etlstack/platform/pkg/job"
	"github.com/etlstack/platform/pkg/metric"
	"github.com/etlstack/platform/pkg/queue"
	"github.com/etlstack/platform/pkg/source"
)

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

	handler := func(ctx context.Context, msg queue.Dispatch) error {
		log := logger.Log.WithField("job_id", msg.JobID)
		for k, v := range msg.Tags {
			log = log.WithField(k, v)
		}
		log.Info("Processing job")

		err := jobSvc.Execute(ctx, msg.JobID)
		if errors.Is(err, job.ErrJobNotFound) {
			// The row is gone; redelivering the message cannot help.
			log.Warn("Job no longer exists, dropping message")
			return nil
		}
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	concurrency := cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			consumer := jobQueue
			if worker > 0 {
				consumer = queue.NewKafkaQueue(cfg.KafkaBrokers, cfg.KafkaJobTopic, cfg.KafkaGroupID)
				defer consumer.Close()
			}
			logger.Log.WithField("worker", worker).Info("ETL worker started")
			if err := consumer.Consume(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.WithError(err).WithField("worker", worker).Error("Consumer stopped")
			}
		}(i)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down ETL worker...")
	cancel()
	wg.Wait()

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("Failed to close Postgres")
	}
	logger.Log.Info("ETL worker stopped")
}
