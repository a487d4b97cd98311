package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/domain/content"
)

// CourseTree is a seeded course with its modules and chapters, in order.
type CourseTree struct {
	Course   *domain.Course
	Modules  []*domain.Module
	Chapters [][]*domain.Chapter
}

// SeedCourseTree creates a generating course whose first module is unlocked.
// chaptersPerModule[i] stubs are created for module i.
func SeedCourseTree(tb testing.TB, ctx context.Context, tx *gorm.DB, owner uuid.UUID, chaptersPerModule ...int) *CourseTree {
	tb.Helper()
	now := time.Now().UTC()
	course := &domain.Course{
		ID:           uuid.New(),
		OwnerUserID:  owner,
		Title:        "Concurrency in Go",
		Difficulty:   "intermediate",
		GenerationID: uuid.New(),
		Status:       domain.CourseStatusGenerating,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tree := &CourseTree{Course: course}
	for i, n := range chaptersPerModule {
		m := &domain.Module{
			ID:                uuid.New(),
			CourseID:          course.ID,
			Index:             i,
			Title:             fmt.Sprintf("Module %d", i+1),
			EstimatedChapters: n,
			IsLocked:          i != 0,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		var chapters []*domain.Chapter
		for j := 0; j < n; j++ {
			ch := &domain.Chapter{
				ID:        uuid.New(),
				ModuleID:  m.ID,
				CourseID:  course.ID,
				Index:     j,
				Title:     fmt.Sprintf("Chapter %d.%d", i+1, j+1),
				CreatedAt: now,
				UpdatedAt: now,
			}
			m.Contents = append(m.Contents, ch.ID)
			chapters = append(chapters, ch)
		}
		course.ModuleIDs = append(course.ModuleIDs, m.ID)
		tree.Modules = append(tree.Modules, m)
		tree.Chapters = append(tree.Chapters, chapters)
	}
	if len(tree.Modules) > 0 {
		first := tree.Modules[0].ID
		course.CurrentModuleID = &first
	}

	db := tx.WithContext(ctx)
	if err := db.Create(course).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	for i, m := range tree.Modules {
		if err := db.Create(m).Error; err != nil {
			tb.Fatalf("seed module: %v", err)
		}
		if len(tree.Chapters[i]) > 0 {
			if err := db.Create(tree.Chapters[i]).Error; err != nil {
				tb.Fatalf("seed chapters: %v", err)
			}
		}
	}
	return tree
}

// MarkGenerated commits a minimal body to a chapter directly.
func MarkGenerated(tb testing.TB, ctx context.Context, tx *gorm.DB, ch *domain.Chapter) {
	tb.Helper()
	blocks := content.Blocks{content.Text{MD: "body of " + ch.Title}}
	now := time.Now().UTC()
	err := tx.WithContext(ctx).Model(&domain.Chapter{}).Where("id = ?", ch.ID).Updates(map[string]any{
		"is_generated": true,
		"content":      datatypes.NewJSONType(blocks),
		"generated_at": now,
	}).Error
	if err != nil {
		tb.Fatalf("mark generated: %v", err)
	}
	ch.IsGenerated = true
	ch.Content = datatypes.NewJSONType(blocks)
}

func SeedQuiz(tb testing.TB, ctx context.Context, tx *gorm.DB, m *domain.Module) *domain.Quiz {
	tb.Helper()
	now := time.Now().UTC()
	q := &domain.Quiz{
		ID:         uuid.New(),
		ModuleID:   m.ID,
		CourseID:   m.CourseID,
		Difficulty: "intermediate",
		Questions: datatypes.JSONSlice[domain.Question]{
			{Prompt: "Q?", Options: []string{"a", "b"}, AnswerIndex: 0},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(q).Error; err != nil {
		tb.Fatalf("seed quiz: %v", err)
	}
	return q
}

// DeleteCourseTree removes a seeded tree once the test ends. Tests on
// ConcurrentDB use it since their writes are committed.
func DeleteCourseTree(tb testing.TB, db *gorm.DB, tree *CourseTree) {
	tb.Helper()
	courseID := tree.Course.ID
	tb.Cleanup(func() {
		for _, model := range []any{&domain.Quiz{}, &domain.Chapter{}, &domain.Module{}} {
			_ = db.Where("course_id = ?", courseID).Delete(model).Error
		}
		_ = db.Where("id = ?", courseID).Delete(&domain.Course{}).Error
	})
}
