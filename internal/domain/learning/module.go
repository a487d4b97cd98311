package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Module struct {
	ID                uuid.UUID                      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID          uuid.UUID                      `gorm:"type:uuid;not null;index" json:"course_id"`
	Index             int                            `gorm:"column:position;not null" json:"index"`
	Title             string                         `gorm:"column:title;not null" json:"title"`
	Summary           string                         `gorm:"column:summary" json:"summary"`
	EstimatedChapters int                            `gorm:"column:estimated_chapters;not null;default:0" json:"estimated_chapters"`
	Contents          datatypes.JSONSlice[uuid.UUID] `gorm:"column:contents" json:"contents"`
	IsLocked          bool                           `gorm:"column:is_locked;not null;default:false" json:"is_locked"`
	IsCompleted       bool                           `gorm:"column:is_completed;not null;default:false" json:"is_completed"`
	CurrentChapterID  *uuid.UUID                     `gorm:"type:uuid;column:current_chapter_id" json:"current_chapter_id,omitempty"`
	CreatedAt         time.Time                      `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time                      `gorm:"not null" json:"updated_at"`
}

func (Module) TableName() string { return "course_module" }
