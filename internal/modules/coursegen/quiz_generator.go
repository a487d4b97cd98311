package coursegen

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/domain"
	domainagg "github.com/yungbote/coursegen/internal/domain/aggregates"
	"github.com/yungbote/coursegen/internal/domain/content"
	"github.com/yungbote/coursegen/internal/modules/coursegen/prompts"
	"github.com/yungbote/coursegen/internal/observability"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
)

const (
	digestPerChapter = 1200
	minOptions       = 2
	maxOptions       = 6
)

type GenerateQuizInput struct {
	CourseID uuid.UUID
	ModuleID uuid.UUID
	Trigger  Trigger
}

type GenerateQuizOutput struct {
	Quiz *domain.Quiz
	// Reused is true when a quiz already existed and no call was made.
	Reused     bool
	AdvanceJob *domain.JobRun
}

type quizBody struct {
	Questions []domain.Question `json:"questions"`
}

func validateQuiz(size int) func(*quizBody) error {
	return func(q *quizBody) error {
		if len(q.Questions) != size {
			return fmt.Errorf("questions: want exactly %d, got %d", size, len(q.Questions))
		}
		for i := range q.Questions {
			qq := &q.Questions[i]
			qq.Prompt = strings.TrimSpace(qq.Prompt)
			if qq.Prompt == "" {
				return fmt.Errorf("questions[%d].prompt: empty", i)
			}
			if len(qq.Options) < minOptions || len(qq.Options) > maxOptions {
				return fmt.Errorf("questions[%d].options: want %d to %d, got %d", i, minOptions, maxOptions, len(qq.Options))
			}
			for j, o := range qq.Options {
				if strings.TrimSpace(o) == "" {
					return fmt.Errorf("questions[%d].options[%d]: empty", i, j)
				}
			}
			if qq.AnswerIndex < 0 || qq.AnswerIndex >= len(qq.Options) {
				return fmt.Errorf("questions[%d].answer_index %d out of range", i, qq.AnswerIndex)
			}
		}
		return nil
	}
}

// GenerateQuiz writes the module quiz once every chapter is generated, then
// enqueues the advance stage. It checks the precondition before calling the
// model, and the commit checks it again under the module lock.
func (s *Service) GenerateQuiz(ctx context.Context, in GenerateQuizInput) (GenerateQuizOutput, error) {
	var out GenerateQuizOutput
	course, err := s.loadCourse(ctx, in.CourseID)
	if err != nil {
		return out, err
	}
	if course.Status == domain.CourseStatusFailed {
		return out, apierr.Precondition("course %s failed at %s", course.ID, course.FailedStage)
	}
	m, err := s.loadModule(ctx, course.ID, in.ModuleID)
	if err != nil {
		return out, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	chapters, err := s.deps.Chapters.ListByModule(dbc, m.ID)
	if err != nil {
		return out, err
	}
	generated := 0
	for _, ch := range chapters {
		if ch.IsGenerated {
			generated++
		}
	}
	if len(chapters) == 0 || generated < len(chapters) {
		return out, apierr.Precondition("module %s has %d of %d chapters generated", m.ID, generated, len(chapters))
	}

	existing, err := s.deps.Quizzes.GetByModule(dbc, m.ID)
	if err != nil {
		return out, err
	}
	if existing != nil {
		out.Quiz, out.Reused = existing, true
	} else {
		in.Trigger.progress(StageQuiz, 20, "writing quiz")
		size := s.cfg.quizSize(course.Difficulty, len(chapters))
		q, err := generateStructured(ctx, s, prompts.PromptModuleQuiz, prompts.Input{
			CourseTitle:   course.Title,
			Difficulty:    course.Difficulty,
			ModuleTitle:   m.Title,
			QuestionCount: size,
			ChapterDigest: chapterDigest(chapters),
		}, validateQuiz(size), "module_id", m.ID)
		if err != nil {
			return out, err
		}
		stored, err := s.deps.Aggregate.CommitQuiz(ctx, domainagg.CommitQuizInput{Quiz: &domain.Quiz{
			ModuleID:   m.ID,
			Difficulty: course.Difficulty,
			Questions:  datatypes.JSONSlice[domain.Question](q.Questions),
		}})
		if err != nil {
			return out, err
		}
		out.Quiz = stored
		observability.Current().IncStage(StageQuiz, "succeeded")
		s.log.Info("Quiz committed", "course_id", course.ID, "module_id", m.ID, "questions", len(q.Questions))
	}

	var jobs pending
	err = s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		jobs.reset()
		j, err := s.enqueue(dbctx.Context{Ctx: ctx, Tx: tx}, course, enqueueSpec{
			jobType:    JobCourseAdvance,
			entityType: EntityModule,
			entityID:   m.ID,
			payload:    modulePayload(course.ID, m.ID),
		}, in.Trigger, &jobs)
		out.AdvanceJob = j
		return err
	})
	if err != nil {
		return out, err
	}
	s.dispatch(ctx, &jobs)
	return out, nil
}

func chapterDigest(chapters []*domain.Chapter) string {
	var b strings.Builder
	for _, ch := range chapters {
		fmt.Fprintf(&b, "## %d. %s\n%s\n\n", ch.Index+1, ch.Title, content.PlainText(ch.Blocks(), digestPerChapter))
	}
	return strings.TrimSpace(b.String())
}
