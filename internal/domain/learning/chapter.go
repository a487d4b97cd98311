package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/coursegen/internal/domain/content"
)

// Reference points at related material surfaced for a chapter.
type Reference struct {
	ChapterID string  `json:"chapter_id,omitempty"`
	Title     string  `json:"title"`
	Score     float64 `json:"score,omitempty"`
}

// Chapter is either a stub (IsGenerated=false, empty Content) or fully
// committed. IsCompleted is the reader's progress flag and requires IsGenerated.
type Chapter struct {
	ID          uuid.UUID                          `gorm:"type:uuid;primaryKey" json:"id"`
	ModuleID    uuid.UUID                          `gorm:"type:uuid;not null;index" json:"module_id"`
	CourseID    uuid.UUID                          `gorm:"type:uuid;not null;index" json:"course_id"`
	Index       int                                `gorm:"column:position;not null" json:"index"`
	Title       string                             `gorm:"column:title;not null" json:"title"`
	Outline     string                             `gorm:"column:outline" json:"outline"`
	IsGenerated bool                               `gorm:"column:is_generated;not null;default:false" json:"is_generated"`
	Content     datatypes.JSONType[content.Blocks] `gorm:"column:content" json:"content"`
	References  datatypes.JSONSlice[Reference]     `gorm:"column:refs" json:"references"`
	IsCompleted bool                               `gorm:"column:is_completed;not null;default:false" json:"is_completed"`
	ContentHash string                             `gorm:"column:content_hash" json:"-"`
	GeneratedAt *time.Time                         `gorm:"column:generated_at" json:"generated_at,omitempty"`
	CreatedAt   time.Time                          `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time                          `gorm:"not null" json:"updated_at"`
}

func (Chapter) TableName() string { return "chapter" }

func (c *Chapter) Blocks() content.Blocks {
	if c == nil {
		return nil
	}
	return c.Content.Data()
}
