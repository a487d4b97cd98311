package aggregates

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/coursegen/internal/data/repos"
	domainagg "github.com/yungbote/coursegen/internal/domain/aggregates"
	"github.com/yungbote/coursegen/internal/domain/content"
	"github.com/yungbote/coursegen/internal/domain/learning"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
)

type CourseAggregateDeps struct {
	Base BaseDeps

	Courses  repos.CourseRepo
	Modules  repos.ModuleRepo
	Chapters repos.ChapterRepo
	Quizzes  repos.QuizRepo
}

type courseAggregate struct {
	deps CourseAggregateDeps
}

func NewCourseAggregate(deps CourseAggregateDeps) domainagg.CourseAggregate {
	deps.Base = deps.Base.withDefaults()
	return &courseAggregate{deps: deps}
}

func (a *courseAggregate) Contract() domainagg.Contract {
	return domainagg.CourseAggregateContract
}

func (a *courseAggregate) CreateSkeleton(ctx context.Context, in domainagg.CreateSkeletonInput) error {
	const op = "Learning.Course.CreateSkeleton"
	c := in.Course
	if c == nil || c.ID == uuid.Nil {
		return apierr.Validation("missing course")
	}
	if len(in.Modules) == 0 {
		return apierr.Validation("course has no modules")
	}
	if len(c.ModuleIDs) != len(in.Modules) {
		return InvariantError("module_ids has %d entries for %d modules", len(c.ModuleIDs), len(in.Modules))
	}
	for i, m := range in.Modules {
		if m.ID != c.ModuleIDs[i] || m.CourseID != c.ID || m.Index != i {
			return InvariantError("module %d does not match course order", i)
		}
		if m.IsLocked != (i != 0) {
			return InvariantError("only the first module starts unlocked")
		}
	}
	for _, ch := range in.Chapters {
		if ch.ModuleID != in.Modules[0].ID || ch.IsGenerated {
			return InvariantError("skeleton chapters must be stubs of the first module")
		}
	}

	return executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		if err := a.deps.Courses.Create(dbc, c); err != nil {
			return err
		}
		if _, err := a.deps.Modules.Create(dbc, in.Modules); err != nil {
			return err
		}
		if _, err := a.deps.Chapters.Create(dbc, in.Chapters); err != nil {
			return err
		}
		if in.Then != nil {
			return in.Then(dbc)
		}
		return nil
	})
}

func (a *courseAggregate) CommitOutline(ctx context.Context, in domainagg.CommitOutlineInput) (domainagg.CommitOutlineResult, error) {
	const op = "Learning.Module.CommitOutline"
	var out domainagg.CommitOutlineResult
	if in.ModuleID == uuid.Nil {
		return out, apierr.Validation("missing module_id")
	}
	if len(in.Outlines) == 0 {
		return out, apierr.Validation("outline has no chapters")
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		m, err := a.deps.Modules.LockByID(dbc, in.ModuleID)
		if err != nil {
			return err
		}
		if m == nil {
			return apierr.NotFound("module", in.ModuleID)
		}
		if m.IsLocked {
			return apierr.Precondition("module %s is locked", m.ID)
		}
		existing, err := a.deps.Chapters.ListByModule(dbc, m.ID)
		if err != nil {
			return err
		}
		for _, ch := range existing {
			if ch.IsGenerated {
				out.Chapters = existing
				out.Reused = true
				return nil
			}
		}
		if len(existing) > 0 && len(existing) != len(in.Outlines) {
			return apierr.Validation("outline has %d chapters, module has %d stubs", len(in.Outlines), len(existing))
		}

		now := time.Now().UTC()
		ids := make(datatypes.JSONSlice[uuid.UUID], 0, len(in.Outlines))
		var created []*learning.Chapter
		for i, o := range in.Outlines {
			title := strings.TrimSpace(o.Title)
			if i < len(existing) {
				ch := existing[i]
				if _, err := a.deps.Chapters.UpdateFields(dbc, ch.ID, map[string]any{
					"title":    title,
					"outline":  o.Outline,
					"position": i,
				}); err != nil {
					return err
				}
				ch.Title, ch.Outline, ch.Index = title, o.Outline, i
				ids = append(ids, ch.ID)
				out.Chapters = append(out.Chapters, ch)
				continue
			}
			ch := &learning.Chapter{
				ID:        uuid.New(),
				ModuleID:  m.ID,
				CourseID:  m.CourseID,
				Index:     i,
				Title:     title,
				Outline:   o.Outline,
				CreatedAt: now,
				UpdatedAt: now,
			}
			created = append(created, ch)
			ids = append(ids, ch.ID)
			out.Chapters = append(out.Chapters, ch)
		}
		if _, err := a.deps.Chapters.Create(dbc, created); err != nil {
			return err
		}
		_, err = a.deps.Modules.UpdateFields(dbc, m.ID, map[string]any{"contents": ids})
		return err
	})
	return out, err
}

func (a *courseAggregate) CommitChapter(ctx context.Context, in domainagg.CommitChapterInput) (domainagg.CommitChapterResult, error) {
	const op = "Learning.Chapter.CommitChapter"
	var out domainagg.CommitChapterResult
	if in.ChapterID == uuid.Nil {
		return out, apierr.Validation("missing chapter_id")
	}
	if err := content.Validate(in.Blocks); err != nil {
		return out, apierr.Validation("chapter content: %v", err)
	}
	hash := in.ContentHash
	if hash == "" {
		h, err := content.Hash(in.Blocks)
		if err != nil {
			return out, apierr.Internal(err)
		}
		hash = h
	}
	at := in.At.UTC()
	if in.At.IsZero() {
		at = time.Now().UTC()
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		stub, err := a.deps.Chapters.GetByID(dbc, in.ChapterID)
		if err != nil {
			return err
		}
		if stub == nil {
			return apierr.NotFound("chapter", in.ChapterID)
		}
		// Sibling commits serialize on the module row so the last one to
		// commit always counts every sibling as generated.
		m, err := a.deps.Modules.LockByID(dbc, stub.ModuleID)
		if err != nil {
			return err
		}
		if m == nil {
			return apierr.NotFound("module", stub.ModuleID)
		}
		ch, err := a.deps.Chapters.LockByID(dbc, in.ChapterID)
		if err != nil {
			return err
		}
		if ch == nil {
			return apierr.NotFound("chapter", in.ChapterID)
		}
		if m.IsLocked {
			return InvariantError("chapter %s belongs to locked module %s", ch.ID, m.ID)
		}

		if ch.IsGenerated && ch.ContentHash == hash {
			out.Chapter = ch
		} else {
			refs := datatypes.JSONSlice[learning.Reference](in.References)
			if refs == nil {
				refs = datatypes.JSONSlice[learning.Reference]{}
			}
			body := datatypes.NewJSONType(in.Blocks)
			if _, err := a.deps.Chapters.UpdateFields(dbc, ch.ID, map[string]any{
				"content":      body,
				"refs":         refs,
				"is_generated": true,
				"content_hash": hash,
				"generated_at": at,
			}); err != nil {
				return err
			}
			ch.Content = body
			ch.References = refs
			ch.IsGenerated = true
			ch.ContentHash = hash
			ch.GeneratedAt = &at
			out.Chapter = ch
			out.Changed = true
		}

		total, generated, err := a.deps.Chapters.CountByModule(dbc, ch.ModuleID)
		if err != nil {
			return err
		}
		out.ModuleReady = total > 0 && total == generated
		return nil
	})
	return out, err
}

func (a *courseAggregate) CommitQuiz(ctx context.Context, in domainagg.CommitQuizInput) (*learning.Quiz, error) {
	const op = "Learning.Quiz.CommitQuiz"
	q := in.Quiz
	if q == nil || q.ModuleID == uuid.Nil {
		return nil, apierr.Validation("missing quiz module_id")
	}
	if len(q.Questions) == 0 {
		return nil, apierr.Validation("quiz has no questions")
	}
	var stored *learning.Quiz
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		m, err := a.deps.Modules.LockByID(dbc, q.ModuleID)
		if err != nil {
			return err
		}
		if m == nil {
			return apierr.NotFound("module", q.ModuleID)
		}
		if err := a.requireChaptersGenerated(dbc, m); err != nil {
			return err
		}
		q.CourseID = m.CourseID
		stored, err = a.deps.Quizzes.Upsert(dbc, q)
		return err
	})
	return stored, err
}

func (a *courseAggregate) requireChaptersGenerated(dbc dbctx.Context, m *learning.Module) error {
	total, generated, err := a.deps.Chapters.CountByModule(dbc, m.ID)
	if err != nil {
		return err
	}
	if total == 0 || generated < total {
		return apierr.Precondition("module %s has %d of %d chapters generated", m.ID, generated, total)
	}
	return nil
}

// MoveChapterCursor points the module at its first chapter still to be
// generated, or clears the cursor once all are.
func (a *courseAggregate) MoveChapterCursor(ctx context.Context, moduleID uuid.UUID) (*uuid.UUID, error) {
	const op = "Learning.Module.MoveChapterCursor"
	var cursor *uuid.UUID
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		m, err := a.deps.Modules.LockByID(dbc, moduleID)
		if err != nil {
			return err
		}
		if m == nil {
			return apierr.NotFound("module", moduleID)
		}
		chapters, err := a.deps.Chapters.ListByModule(dbc, moduleID)
		if err != nil {
			return err
		}
		for _, ch := range chapters {
			if !ch.IsGenerated {
				id := ch.ID
				cursor = &id
				break
			}
		}
		_, err = a.deps.Modules.UpdateFields(dbc, moduleID, map[string]any{"current_chapter_id": cursor})
		return err
	})
	return cursor, err
}

func (a *courseAggregate) Advance(ctx context.Context, in domainagg.AdvanceInput) (domainagg.AdvanceResult, error) {
	const op = "Learning.Course.Advance"
	var out domainagg.AdvanceResult
	if in.CourseID == uuid.Nil || in.ModuleID == uuid.Nil {
		return out, apierr.Validation("missing course_id or module_id")
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		c, err := a.deps.Courses.LockByID(dbc, in.CourseID)
		if err != nil {
			return err
		}
		if c == nil {
			return apierr.NotFound("course", in.CourseID)
		}
		idx := c.ModuleIndex(in.ModuleID)
		if idx < 0 {
			return apierr.Validation("module %s is not part of course %s", in.ModuleID, c.ID)
		}
		m, err := a.deps.Modules.LockByID(dbc, in.ModuleID)
		if err != nil {
			return err
		}
		if m == nil {
			return apierr.NotFound("module", in.ModuleID)
		}
		if m.IsCompleted {
			// Replayed advance: the transition already happened.
			return nil
		}
		if err := RequireStatusAllowed(c.Status, learning.CourseStatusGenerating); err != nil {
			return err
		}
		if m.IsLocked {
			return InvariantError("advance on locked module %s", m.ID)
		}
		if c.CurrentModuleID == nil || *c.CurrentModuleID != m.ID {
			return InvariantError("module %s is not the active module of course %s", m.ID, c.ID)
		}
		if err := a.requireChaptersGenerated(dbc, m); err != nil {
			return err
		}
		quiz, err := a.deps.Quizzes.GetByModule(dbc, m.ID)
		if err != nil {
			return err
		}
		if quiz == nil {
			return apierr.Precondition("module %s has no quiz", m.ID)
		}

		ok, err := a.deps.Modules.UpdateFieldsWhere(dbc, m.ID,
			map[string]any{"is_completed": false},
			map[string]any{"is_completed": true, "current_chapter_id": nil},
		)
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "module completion raced"); err != nil {
			return err
		}
		out.Advanced = true

		if idx+1 < len(c.ModuleIDs) {
			next, err := a.deps.Modules.LockByID(dbc, c.ModuleIDs[idx+1])
			if err != nil {
				return err
			}
			if next == nil {
				return apierr.NotFound("module", c.ModuleIDs[idx+1])
			}
			if _, err := a.deps.Modules.UpdateFields(dbc, next.ID, map[string]any{"is_locked": false}); err != nil {
				return err
			}
			next.IsLocked = false
			if _, err := a.deps.Courses.UpdateFields(dbc, c.ID, map[string]any{"current_module_id": next.ID}); err != nil {
				return err
			}
			out.NextModule = next
		} else {
			now := time.Now().UTC()
			if _, err := a.deps.Courses.UpdateFields(dbc, c.ID, map[string]any{
				"status":       learning.CourseStatusComplete,
				"generated_at": now,
			}); err != nil {
				return err
			}
			out.CourseComplete = true
		}
		if in.Then != nil {
			return in.Then(dbc, out)
		}
		return nil
	})
	return out, err
}

func (a *courseAggregate) MarkFailed(ctx context.Context, in domainagg.MarkFailedInput) (bool, error) {
	const op = "Learning.Course.MarkFailed"
	if in.CourseID == uuid.Nil {
		return false, apierr.Validation("missing course_id")
	}
	var changed bool
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		ok, err := a.deps.Courses.UpdateFieldsUnlessStatus(dbc, in.CourseID,
			[]string{learning.CourseStatusComplete, learning.CourseStatusFailed},
			map[string]any{
				"status":        learning.CourseStatusFailed,
				"failed_stage":  in.Stage,
				"error_message": truncate(in.Message, 2000),
				"failed_at":     time.Now().UTC(),
			},
		)
		changed = ok
		return err
	})
	return changed, err
}

func (a *courseAggregate) Resume(ctx context.Context, in domainagg.ResumeInput) (*learning.Course, error) {
	const op = "Learning.Course.Resume"
	if in.CourseID == uuid.Nil {
		return nil, apierr.Validation("missing course_id")
	}
	var course *learning.Course
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		c, err := a.deps.Courses.LockByID(dbc, in.CourseID)
		if err != nil {
			return err
		}
		if c == nil {
			return apierr.NotFound("course", in.CourseID)
		}
		if err := RequireStatusAllowed(c.Status, learning.CourseStatusFailed); err != nil {
			return err
		}
		if _, err := a.deps.Courses.UpdateFields(dbc, c.ID, map[string]any{
			"status":        learning.CourseStatusGenerating,
			"failed_stage":  "",
			"error_message": "",
			"failed_at":     nil,
		}); err != nil {
			return err
		}
		c.Status = learning.CourseStatusGenerating
		c.FailedStage, c.ErrorMessage, c.FailedAt = "", "", nil
		course = c
		if in.Then != nil {
			return in.Then(dbc, c)
		}
		return nil
	})
	return course, err
}

func (a *courseAggregate) MarkChapterCompleted(ctx context.Context, chapterID uuid.UUID, completed bool) (*learning.Chapter, error) {
	const op = "Learning.Chapter.MarkCompleted"
	var out *learning.Chapter
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		ch, err := a.deps.Chapters.LockByID(dbc, chapterID)
		if err != nil {
			return err
		}
		if ch == nil {
			return apierr.NotFound("chapter", chapterID)
		}
		if completed && !ch.IsGenerated {
			return apierr.Precondition("chapter %s is not generated yet", ch.ID)
		}
		if _, err := a.deps.Chapters.UpdateFields(dbc, ch.ID, map[string]any{"is_completed": completed}); err != nil {
			return err
		}
		ch.IsCompleted = completed
		out = ch
		return nil
	})
	return out, err
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
