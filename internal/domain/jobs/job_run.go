package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Job statuses. "retrying" is the failed-retryable state: the row waits for
// NextRunAt and is claimed again. "failed" is terminal.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusRetrying  = "retrying"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ActiveStatuses are the statuses a job can still make progress from.
var ActiveStatuses = []string{StatusQueued, StatusRunning, StatusRetrying}

type JobRun struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	JobType        string         `gorm:"column:job_type;not null;index" json:"job_type"`
	EntityType     string         `gorm:"column:entity_type;index" json:"entity_type,omitempty"`
	EntityID       *uuid.UUID     `gorm:"type:uuid;column:entity_id;index" json:"entity_id,omitempty"`
	ParentJobID    *uuid.UUID     `gorm:"type:uuid;column:parent_job_id;index" json:"parent_job_id,omitempty"`
	CorrelationID  *uuid.UUID     `gorm:"type:uuid;column:correlation_id;index" json:"correlation_id,omitempty"`
	DedupeKey      string         `gorm:"column:dedupe_key;index" json:"dedupe_key,omitempty"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	Stage          string         `gorm:"column:stage;not null" json:"stage"`
	Progress       int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Message        string         `gorm:"column:message" json:"message,omitempty"`
	Attempts       int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	MaxAttempts    int            `gorm:"column:max_attempts;not null;default:5" json:"max_attempts"`
	TimeoutSeconds int            `gorm:"column:timeout_seconds;not null;default:0" json:"timeout_seconds"`
	NextRunAt      *time.Time     `gorm:"column:next_run_at;index" json:"next_run_at,omitempty"`
	Error          string         `gorm:"column:error" json:"error,omitempty"`
	LockedAt       *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt    *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt    *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	Payload        datatypes.JSON `gorm:"column:payload" json:"payload"`
	Result         datatypes.JSON `gorm:"column:result" json:"result"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (JobRun) TableName() string { return "job_run" }

func (j *JobRun) Terminal() bool {
	return j != nil && (j.Status == StatusSucceeded || j.Status == StatusFailed)
}

func (j *JobRun) Timeout() time.Duration {
	if j == nil || j.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(j.TimeoutSeconds) * time.Second
}
