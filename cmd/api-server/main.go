package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/etlstack/platform/pkg/apikey"
	"github.com/etlstack/platform/pkg/common/config"
	"github.com/etlstack/platform/pkg/common/database"
	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/etlstack/platform/pkg/dashboard"
	"github.com/etlstack/platform/pkg/health"
	"github.com/etlstack/platform/pkg/job"
	"github.com/etlstack/platform/pkg/metric"
	"github.com/etlstack/platform/pkg/queue"
	"github.com/etlstack/platform/pkg/server/middleware"
	"github.com/etlstack/platform/pkg/source"
	"github.com/gorilla/mux"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to Postgres")
	}
	redisClient := database.GetRedis()

	// Repositories
	sourceRepo := source.NewRepository(db)
	jobRepo := job.NewRepository(db)
	metricRepo := metric.NewRepository(db)
	keyRepo := apikey.NewRepository(db)

	for name, migrate := range map[string]func() error{
		"data_sources": sourceRepo.AutoMigrate,
		"etl_jobs":     jobRepo.AutoMigrate,
		"metrics_data": metricRepo.AutoMigrate,
		"api_keys":     keyRepo.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			logger.Log.WithError(err).WithField("table", name).Fatal("Failed to run migration")
		}
	}

	jobQueue := queue.NewKafkaQueue(cfg.KafkaBrokers, cfg.KafkaJobTopic, cfg.KafkaGroupID)
	defer jobQueue.Close()

	// Services
	metricSvc := metric.NewService(metricRepo)
	sourceSvc := source.NewService(sourceRepo)
	jobSvc := job.NewService(jobRepo, sourceRepo, metricSvc, jobQueue, job.NewProcessor(), cfg.RetryBackoffBase)
	keySvc := apikey.NewService(keyRepo)
	dashSvc := dashboard.NewService(jobRepo, sourceRepo, redisClient, cfg.DashboardCacheTTL)
	checker := health.NewChecker(
		health.DatabaseProbe(db),
		health.CacheProbe(redisClient),
		jobQueue.Ping,
		cfg.ProbeTimeout,
	)

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS)
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	// Health stays outside the authenticated subtree.
	health.NewHandler(checker).Register(router)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	if cfg.AdminAPIKey == "" {
		logger.Log.Warn("ADMIN_API_KEY not configured, running without auth")
	} else {
		apiRouter.Use(middleware.Authenticate(keySvc, cfg.AdminAPIKey))
	}

	source.NewHandler(sourceSvc).Register(apiRouter)
	job.NewHandler(jobSvc).Register(apiRouter)
	metric.NewHandler(metricSvc).Register(apiRouter)
	apikey.NewHandler(keySvc, middleware.ResolveOwner).Register(apiRouter)
	dashboard.NewHandler(dashSvc).Register(apiRouter)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("API Server started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down API Server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}
	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("Failed to close Postgres")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Error("Failed to close Redis")
	}

	logger.Log.Info("API Server stopped")
}
