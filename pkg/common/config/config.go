package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers  []string
	KafkaGroupID  string
	KafkaJobTopic string

	// Auth
	AdminAPIKey string

	// Worker
	WorkerConcurrency int
	RetryBackoffBase  time.Duration

	// Sweeper
	ReaperInterval    time.Duration
	RetentionInterval time.Duration
	ReportInterval    time.Duration

	// Dashboard
	DashboardCacheTTL time.Duration

	// Health
	ProbeTimeout time.Duration

	// Pipeline
	PipelineConfigPath string

	// Gateway
	RateLimitRPS   int
	RateLimitBurst int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "etlstack"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "etlstack123"),
		PostgresDB:       getEnv("POSTGRES_DB", "etlstack"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:  getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:  getEnv("KAFKA_GROUP_ID", "etlstack-platform"),
		KafkaJobTopic: getEnv("KAFKA_JOB_TOPIC", "etl-jobs"),

		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),

		WorkerConcurrency: getIntEnv("WORKER_CONCURRENCY", 4),
		RetryBackoffBase:  getDuration("RETRY_BACKOFF_BASE", 60*time.Second),

		ReaperInterval:    getDuration("REAPER_INTERVAL", time.Minute),
		RetentionInterval: getDuration("RETENTION_INTERVAL", time.Hour),
		ReportInterval:    getDuration("REPORT_INTERVAL", 24*time.Hour),

		DashboardCacheTTL: getDuration("DASHBOARD_CACHE_TTL", 30*time.Second),

		ProbeTimeout: getDuration("HEALTH_PROBE_TIMEOUT", 5*time.Second),

		PipelineConfigPath: getEnv("PIPELINE_CONFIG_PATH", ""),

		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
