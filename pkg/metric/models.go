package metric

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TypeCounter   = "counter"
	TypeGauge     = "gauge"
	TypeHistogram = "histogram"
	TypeSummary   = "summary"
)

// RetentionDays is the age past which observations are purged.
const RetentionDays = 30

var MetricTypes = []string{TypeCounter, TypeGauge, TypeHistogram, TypeSummary}

// MetricData is an immutable, labeled numeric observation. Rows are written
// once and never updated; the only delete path is the retention sweep.
type MetricData struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	MetricName  string            `gorm:"column:metric_name;index" json:"metric_name"`
	MetricValue float64           `gorm:"column:metric_value" json:"metric_value"`
	MetricType  string            `gorm:"column:metric_type" json:"metric_type"`
	Labels      datatypes.JSONMap `gorm:"column:labels" json:"labels"`
	Timestamp   time.Time         `gorm:"column:timestamp;index" json:"timestamp"`
	CreatedAt   time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (MetricData) TableName() string {
	return "metrics_data"
}

type CreateMetricInput struct {
	MetricName  string                 `json:"metric_name"`
	MetricValue float64                `json:"metric_value"`
	MetricType  string                 `json:"metric_type"`
	Labels      map[string]interface{} `json:"labels"`
}

type Filter struct {
	NameSearch string
	MetricType string
	After      *time.Time
	Before     *time.Time
	MinValue   *float64
	MaxValue   *float64
	HasLabels  *bool
	LabelKey   string
	LabelValue string
	Limit      int
}

func ValidType(metricType string) bool {
	for _, t := range MetricTypes {
		if t == metricType {
			return true
		}
	}
	return false
}
