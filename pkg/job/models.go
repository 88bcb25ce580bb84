package job

import (
	"encoding/json"
	"time"

	"github.com/etlstack/platform/pkg/source"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

const (
	// MaxRetries is how many times a failed execution is retried before the
	// job is finalized as failed.
	MaxRetries = 3

	// StuckJobTTL is how long a job may sit in running before the reaper
	// force-fails it.
	StuckJobTTL = 2 * time.Hour

	TimeoutMessage = "Job timed out after 2 hours"
)

type Job struct {
	ID               uuid.UUID          `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	Name             string             `gorm:"column:name" json:"name"`
	Status           string             `gorm:"column:status" json:"status"`
	DataSourceID     uuid.UUID          `gorm:"type:uuid;column:data_source_id" json:"data_source_id"`
	DataSource       *source.DataSource `gorm:"foreignKey:DataSourceID" json:"data_source,omitempty"`
	StartedAt        *time.Time         `gorm:"column:started_at" json:"started_at"`
	CompletedAt      *time.Time         `gorm:"column:completed_at" json:"completed_at"`
	RecordsProcessed int64              `gorm:"column:records_processed" json:"records_processed"`
	ErrorMessage     string             `gorm:"column:error_message" json:"error_message"`
	Configuration    datatypes.JSONMap  `gorm:"column:configuration" json:"configuration"`
	CreatedAt        time.Time          `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"column:updated_at" json:"updated_at"`
}

func (Job) TableName() string {
	return "etl_jobs"
}

// Duration is derived, never stored: defined only when both timestamps are set.
func (j *Job) Duration() (float64, bool) {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0, false
	}
	return j.CompletedAt.Sub(*j.StartedAt).Seconds(), true
}

func (j Job) MarshalJSON() ([]byte, error) {
	type alias Job
	var duration *float64
	if d, ok := (&j).Duration(); ok {
		duration = &d
	}
	return json.Marshal(struct {
		alias
		Duration *float64 `json:"duration"`
	}{alias(j), duration})
}

// CreateJobInput is the caller-facing creation payload. All lifecycle fields
// are server-controlled.
type CreateJobInput struct {
	Name          string                 `json:"name"`
	DataSourceID  uuid.UUID              `json:"data_source_id"`
	Configuration map[string]interface{} `json:"configuration"`
}

type Filter struct {
	Statuses        []string
	DataSourceID    uuid.UUID
	DataSourceName  string
	NameSearch      string
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
	StartedAfter    *time.Time
	StartedBefore   *time.Time
	CompletedAfter  *time.Time
	CompletedBefore *time.Time
	MinRecords      *int64
	MaxRecords      *int64
	HasErrors       *bool
	Limit           int
}

// ReportStats aggregates one day of job activity for the daily report.
type ReportStats struct {
	TotalJobs        int64
	CompletedJobs    int64
	FailedJobs       int64
	RecordsProcessed int64
}
