package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	EventCreated   = "created"
	EventProgress  = "progress"
	EventRetrying  = "retrying"
	EventFailed    = "failed"
	EventSucceeded = "succeeded"
)

// JobRunEvent is an append-only timeline of status changes for a job.
// CorrelationID mirrors the job's so a whole generation can be read back in order.
type JobRunEvent struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	CorrelationID *uuid.UUID     `gorm:"type:uuid;column:correlation_id;index" json:"correlation_id,omitempty"`
	JobType       string         `gorm:"column:job_type;not null" json:"job_type"`
	Kind          string         `gorm:"column:kind;not null;index" json:"kind"`
	Status        string         `gorm:"column:status;not null" json:"status"`
	Stage         string         `gorm:"column:stage" json:"stage,omitempty"`
	Progress      int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Message       string         `gorm:"column:message" json:"message,omitempty"`
	Data          datatypes.JSON `gorm:"column:data" json:"data,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
}

func (JobRunEvent) TableName() string { return "job_run_event" }
