package domain

import (
	"github.com/yungbote/coursegen/internal/domain/jobs"
	"github.com/yungbote/coursegen/internal/domain/learning"
)

type Course = learning.Course
type Module = learning.Module
type Chapter = learning.Chapter
type Reference = learning.Reference
type Quiz = learning.Quiz
type Question = learning.Question

type JobRun = jobs.JobRun
type JobRunEvent = jobs.JobRunEvent

const (
	CourseStatusPlanning   = learning.CourseStatusPlanning
	CourseStatusGenerating = learning.CourseStatusGenerating
	CourseStatusComplete   = learning.CourseStatusComplete
	CourseStatusFailed     = learning.CourseStatusFailed

	DifficultyBeginner     = learning.DifficultyBeginner
	DifficultyIntermediate = learning.DifficultyIntermediate
	DifficultyAdvanced     = learning.DifficultyAdvanced

	JobStatusQueued    = jobs.StatusQueued
	JobStatusRunning   = jobs.StatusRunning
	JobStatusRetrying  = jobs.StatusRetrying
	JobStatusSucceeded = jobs.StatusSucceeded
	JobStatusFailed    = jobs.StatusFailed
)

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&learning.Course{},
		&learning.Module{},
		&learning.Chapter{},
		&learning.Quiz{},
		&jobs.JobRun{},
		&jobs.JobRunEvent{},
	}
}
