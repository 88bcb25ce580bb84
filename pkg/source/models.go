package source

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TypeDatabase = "database"
	TypeAPI      = "api"
	TypeFile     = "file"
	TypeStream   = "stream"
)

var SourceTypes = []string{TypeDatabase, TypeAPI, TypeFile, TypeStream}

type DataSource struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	Name             string            `gorm:"column:name;uniqueIndex" json:"name"`
	SourceType       string            `gorm:"column:source_type" json:"source_type"`
	ConnectionString string            `gorm:"column:connection_string" json:"-"`
	IsActive         bool              `gorm:"column:is_active" json:"is_active"`
	Metadata         datatypes.JSONMap `gorm:"column:metadata" json:"metadata"`
	ETLJobsCount     int64             `gorm:"-" json:"etl_jobs_count"`
	CreatedAt        time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"column:updated_at" json:"updated_at"`
}

func (DataSource) TableName() string {
	return "data_sources"
}

type CreateSourceInput struct {
	Name             string                 `json:"name"`
	SourceType       string                 `json:"source_type"`
	ConnectionString string                 `json:"connection_string"`
	IsActive         *bool                  `json:"is_active"`
	Metadata         map[string]interface{} `json:"metadata"`
}

// UpdateSourceInput carries partial updates; nil fields are left untouched.
type UpdateSourceInput struct {
	Name             *string                `json:"name"`
	SourceType       *string                `json:"source_type"`
	ConnectionString *string                `json:"connection_string"`
	IsActive         *bool                  `json:"is_active"`
	Metadata         map[string]interface{} `json:"metadata"`
}

type Filter struct {
	SourceType string
	IsActive   *bool
	NameSearch string
	Limit      int
}

func ValidType(sourceType string) bool {
	for _, t := range SourceTypes {
		if t == sourceType {
			return true
		}
	}
	return false
}
