package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	CourseStatusPlanning   = "planning"
	CourseStatusGenerating = "generating"
	CourseStatusComplete   = "complete"
	CourseStatusFailed     = "failed"
)

const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Course is the root of a generated tree. ModuleIDs is fixed at creation.
// CurrentModuleID is the generation cursor and is only moved by the orchestrator.
type Course struct {
	ID                uuid.UUID                      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID       uuid.UUID                      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	IsPublic          bool                           `gorm:"column:is_public;not null;default:false" json:"is_public"`
	IsSystemGenerated bool                           `gorm:"column:is_system_generated;not null;default:false" json:"is_system_generated"`
	IsEnhanced        bool                           `gorm:"column:is_enhanced;not null;default:false" json:"is_enhanced"`
	Title             string                         `gorm:"column:title;not null" json:"title"`
	Description       string                         `gorm:"column:description" json:"description"`
	Subject           string                         `gorm:"column:subject" json:"subject"`
	Difficulty        string                         `gorm:"column:difficulty;not null" json:"difficulty"`
	Language          string                         `gorm:"column:language" json:"language"`
	ModuleIDs         datatypes.JSONSlice[uuid.UUID] `gorm:"column:module_ids" json:"module_ids"`
	CurrentModuleID   *uuid.UUID                     `gorm:"type:uuid;column:current_module_id" json:"current_module_id,omitempty"`
	GenerationID      uuid.UUID                      `gorm:"type:uuid;column:generation_id;index" json:"generation_id"`
	Status            string                         `gorm:"column:status;not null;index" json:"status"`
	FailedStage       string                         `gorm:"column:failed_stage" json:"failed_stage,omitempty"`
	ErrorMessage      string                         `gorm:"column:error_message" json:"error_message,omitempty"`
	Metadata          datatypes.JSON                 `gorm:"column:metadata" json:"metadata,omitempty"`
	GeneratedAt       *time.Time                     `gorm:"column:generated_at" json:"generated_at,omitempty"`
	FailedAt          *time.Time                     `gorm:"column:failed_at" json:"failed_at,omitempty"`
	CreatedAt         time.Time                      `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time                      `gorm:"not null" json:"updated_at"`
}

func (Course) TableName() string { return "course" }

// ModuleIndex returns the position of id in ModuleIDs, or -1.
func (c *Course) ModuleIndex(id uuid.UUID) int {
	for i, mid := range c.ModuleIDs {
		if mid == id {
			return i
		}
	}
	return -1
}
