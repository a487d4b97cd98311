package coursegen

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/data/repos"
	domainagg "github.com/yungbote/coursegen/internal/domain/aggregates"
	"github.com/yungbote/coursegen/internal/platform/logger"
	"github.com/yungbote/coursegen/internal/platform/openai"
	"github.com/yungbote/coursegen/internal/platform/qdrant"
	"github.com/yungbote/coursegen/internal/services"
)

type Deps struct {
	DB  *gorm.DB
	Log *logger.Logger

	LLM openai.Client
	// Vectors is optional; without it chapters carry no references.
	Vectors qdrant.VectorStore

	Courses  repos.CourseRepo
	Modules  repos.ModuleRepo
	Chapters repos.ChapterRepo
	Quizzes  repos.QuizRepo

	Aggregate domainagg.CourseAggregate
	Jobs      services.JobService
	Notify    services.CourseNotifier

	Now func() time.Time
}

func (d Deps) validate() error {
	if d.DB == nil || d.Log == nil || d.LLM == nil {
		return fmt.Errorf("coursegen: missing deps (db, log, llm)")
	}
	if d.Courses == nil || d.Modules == nil || d.Chapters == nil || d.Quizzes == nil {
		return fmt.Errorf("coursegen: missing repos")
	}
	if d.Aggregate == nil || d.Jobs == nil {
		return fmt.Errorf("coursegen: missing aggregate or job service")
	}
	return nil
}
