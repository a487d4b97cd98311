package coursegen

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/domain"
	domainagg "github.com/yungbote/coursegen/internal/domain/aggregates"
	"github.com/yungbote/coursegen/internal/domain/content"
	"github.com/yungbote/coursegen/internal/modules/coursegen/prompts"
	"github.com/yungbote/coursegen/internal/observability"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
)

type GenerateChapterInput struct {
	CourseID  uuid.UUID
	ModuleID  uuid.UUID
	ChapterID uuid.UUID
	Trigger   Trigger
}

type GenerateChapterOutput struct {
	Chapter *domain.Chapter
	// Changed is false when the new content hashed the same as the stored one.
	Changed     bool
	ModuleReady bool
	References  int
	QuizJob     *domain.JobRun
}

type chapterBody struct {
	Blocks []content.Wire `json:"blocks"`
}

// GenerateChapter writes one chapter's content wholesale. When the commit
// completes the module, the quiz stage is enqueued.
func (s *Service) GenerateChapter(ctx context.Context, in GenerateChapterInput) (GenerateChapterOutput, error) {
	var out GenerateChapterOutput
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
	if m.IsLocked {
		return out, apierr.Precondition("module %s is locked", m.ID)
	}
	dbc := dbctx.Context{Ctx: ctx}
	siblings, err := s.deps.Chapters.ListByModule(dbc, m.ID)
	if err != nil {
		return out, err
	}
	var ch *domain.Chapter
	for _, c := range siblings {
		if c.ID == in.ChapterID {
			ch = c
		}
	}
	if ch == nil {
		return out, apierr.NotFound("chapter", in.ChapterID)
	}
	in.Trigger.progress(StageChapter, 10, "finding references")

	refs := s.findReferences(ctx, course, ch)
	var refsMD strings.Builder
	for _, r := range refs {
		fmt.Fprintf(&refsMD, "- %s\n", r.Title)
	}

	var blocks content.Blocks
	check := func(b *chapterBody) error {
		bs, err := content.FromWire(b.Blocks)
		if err != nil {
			return err
		}
		if len(bs) == 0 {
			return fmt.Errorf("blocks: empty")
		}
		blocks = bs
		return nil
	}
	in.Trigger.progress(StageChapter, 30, "writing chapter")
	if _, err := generateStructured(ctx, s, prompts.PromptChapterContent, prompts.Input{
		CourseTitle:      course.Title,
		Difficulty:       course.Difficulty,
		Language:         course.Language,
		ModuleTitle:      m.Title,
		ModuleChaptersMD: chapterListMD(siblings),
		ChapterIndex:     ch.Index + 1,
		ChapterTitle:     ch.Title,
		ChapterOutline:   ch.Outline,
		ReferencesMD:     strings.TrimRight(refsMD.String(), "\n"),
	}, check, "chapter_id", ch.ID); err != nil {
		return out, err
	}

	res, err := s.deps.Aggregate.CommitChapter(ctx, domainagg.CommitChapterInput{
		ChapterID:  ch.ID,
		Blocks:     blocks,
		References: refs,
		At:         s.now(),
	})
	if err != nil {
		return out, err
	}
	out.Chapter, out.Changed, out.ModuleReady, out.References = res.Chapter, res.Changed, res.ModuleReady, len(refs)
	observability.Current().IncStage(StageChapter, "succeeded")
	s.log.Info("Chapter committed",
		"course_id", course.ID,
		"module_id", m.ID,
		"chapter_id", ch.ID,
		"changed", res.Changed,
		"module_ready", res.ModuleReady,
		"blocks", len(blocks),
	)
	if res.Changed {
		s.indexChapter(ctx, course, m, res.Chapter, blocks)
	}

	if _, err := s.deps.Aggregate.MoveChapterCursor(ctx, m.ID); err != nil {
		return out, err
	}
	if res.ModuleReady {
		job, err := s.triggerQuiz(ctx, course, m, in.Trigger)
		if err != nil {
			return out, err
		}
		out.QuizJob = job
	}
	s.pushProgress(ctx, course, StageChapter)
	return out, nil
}

// triggerQuiz is the fan-in of chapter generation. Concurrent callers collapse
// onto one job through the dedupe key.
func (s *Service) triggerQuiz(ctx context.Context, course *domain.Course, m *domain.Module, trig Trigger) (*domain.JobRun, error) {
	var jobs pending
	var job *domain.JobRun
	err := s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		jobs.reset()
		j, err := s.enqueue(dbctx.Context{Ctx: ctx, Tx: tx}, course, enqueueSpec{
			jobType:    JobQuizGenerate,
			entityType: EntityModule,
			entityID:   m.ID,
			payload:    modulePayload(course.ID, m.ID),
		}, trig, &jobs)
		job = j
		return err
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, &jobs)
	return job, nil
}

func chapterListMD(chapters []*domain.Chapter) string {
	var b strings.Builder
	for _, c := range chapters {
		fmt.Fprintf(&b, "%d. %s\n", c.Index+1, c.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}
