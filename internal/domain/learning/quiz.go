package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Question struct {
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation"`
}

// Quiz belongs to exactly one module. ModuleID is unique so regeneration
// replaces the question set in place.
type Quiz struct {
	ID         uuid.UUID                     `gorm:"type:uuid;primaryKey" json:"id"`
	ModuleID   uuid.UUID                     `gorm:"type:uuid;not null;uniqueIndex" json:"module_id"`
	CourseID   uuid.UUID                     `gorm:"type:uuid;not null;index" json:"course_id"`
	Difficulty string                        `gorm:"column:difficulty;not null" json:"difficulty"`
	Questions  datatypes.JSONSlice[Question] `gorm:"column:questions" json:"questions"`
	CreatedAt  time.Time                     `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time                     `gorm:"not null" json:"updated_at"`
}

func (Quiz) TableName() string { return "quiz" }
