package health

import (
	"context"
	"time"

	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const Version = "1.0.0"

type Status struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Database  bool      `json:"database"`
	Cache     bool      `json:"cache"`
	Worker    bool      `json:"worker"`
	Uptime    float64   `json:"uptime"`
}

// Probe performs one dependency round-trip; it must respect ctx deadlines.
type Probe func(ctx context.Context) error

// Checker runs the three dependency probes independently, each under its own
// timeout. Database or cache failure flips the overall status to unhealthy;
// a worker-queue failure is logged but tolerated.
type Checker struct {
	database  Probe
	cache     Probe
	worker    Probe
	timeout   time.Duration
	startedAt time.Time
	now       func() time.Time
}

func NewChecker(database, cache, worker Probe, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		database:  database,
		cache:     cache,
		worker:    worker,
		timeout:   timeout,
		startedAt: time.Now().UTC(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (c *Checker) Check(ctx context.Context) Status {
	status := Status{
		Status:    "healthy",
		Timestamp: c.now(),
		Version:   Version,
		Uptime:    c.now().Sub(c.startedAt).Seconds(),
	}

	if err := c.probe(ctx, c.database); err != nil {
		logger.Log.WithError(err).Error("Database health check failed")
		status.Status = "unhealthy"
	} else {
		status.Database = true
	}

	if err := c.probe(ctx, c.cache); err != nil {
		logger.Log.WithError(err).Error("Cache health check failed")
		status.Status = "unhealthy"
	} else {
		status.Cache = true
	}

	if err := c.probe(ctx, c.worker); err != nil {
		logger.Log.WithError(err).Error("Worker queue health check failed")
	} else {
		status.Worker = true
	}

	return status
}

func (c *Checker) probe(ctx context.Context, p Probe) error {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return p(probeCtx)
}

// DatabaseProbe issues a one-row query against the connection.
func DatabaseProbe(db *gorm.DB) Probe {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// CacheProbe performs a set/get round-trip.
func CacheProbe(client *redis.Client) Probe {
	return func(ctx context.Context) error {
		if err := client.Set(ctx, "health_check", "ok", 30*time.Second).Err(); err != nil {
			return err
		}
		return client.Get(ctx, "health_check").Err()
	}
}
