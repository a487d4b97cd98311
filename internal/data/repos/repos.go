package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/data/repos/jobs"
	"github.com/yungbote/coursegen/internal/data/repos/learning"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type CourseRepo = learning.CourseRepo
type ModuleRepo = learning.ModuleRepo
type ChapterRepo = learning.ChapterRepo
type QuizRepo = learning.QuizRepo

type JobRunRepo = jobs.JobRunRepo
type JobRunEventRepo = jobs.JobRunEventRepo

// Set is every repository, built once at process start.
type Set struct {
	Courses  CourseRepo
	Modules  ModuleRepo
	Chapters ChapterRepo
	Quizzes  QuizRepo
	Jobs     JobRunRepo
	Events   JobRunEventRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Courses:  learning.NewCourseRepo(db, baseLog),
		Modules:  learning.NewModuleRepo(db, baseLog),
		Chapters: learning.NewChapterRepo(db, baseLog),
		Quizzes:  learning.NewQuizRepo(db, baseLog),
		Jobs:     jobs.NewJobRunRepo(db, baseLog),
		Events:   jobs.NewJobRunEventRepo(db, baseLog),
	}
}

var (
	NewCourseRepo      = learning.NewCourseRepo
	NewModuleRepo      = learning.NewModuleRepo
	NewChapterRepo     = learning.NewChapterRepo
	NewQuizRepo        = learning.NewQuizRepo
	NewJobRunRepo      = jobs.NewJobRunRepo
	NewJobRunEventRepo = jobs.NewJobRunEventRepo
)
