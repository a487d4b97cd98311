package coursegen

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	JobModuleGenerate  = "module_generate"
	JobChapterGenerate = "chapter_generate"
	JobQuizGenerate    = "quiz_generate"
	JobCourseAdvance   = "course_advance"
)

// Stage names recorded on a failed course.
const (
	StagePlan    = "plan"
	StageModule  = "module"
	StageChapter = "chapter"
	StageQuiz    = "quiz"
	StageAdvance = "advance"
)

const (
	EntityModule  = "course_module"
	EntityChapter = "chapter"
)

// StageForJob maps a job type to the stage it runs.
func StageForJob(jobType string) string {
	switch jobType {
	case JobModuleGenerate:
		return StageModule
	case JobChapterGenerate:
		return StageChapter
	case JobQuizGenerate:
		return StageQuiz
	case JobCourseAdvance:
		return StageAdvance
	}
	return jobType
}

func dedupeKey(jobType string, id uuid.UUID) string {
	return fmt.Sprintf("%s:%s", jobType, id)
}

func modulePayload(courseID, moduleID uuid.UUID) map[string]any {
	return map[string]any{
		"course_id": courseID.String(),
		"module_id": moduleID.String(),
	}
}

func chapterPayload(courseID, moduleID, chapterID uuid.UUID) map[string]any {
	return map[string]any{
		"course_id":  courseID.String(),
		"module_id":  moduleID.String(),
		"chapter_id": chapterID.String(),
	}
}
