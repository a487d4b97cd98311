package coursegen

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/domain"
	domainagg "github.com/yungbote/coursegen/internal/domain/aggregates"
	"github.com/yungbote/coursegen/internal/modules/coursegen/prompts"
	"github.com/yungbote/coursegen/internal/observability"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
)

type GenerateModuleInput struct {
	CourseID uuid.UUID
	ModuleID uuid.UUID
	Trigger  Trigger
}

type GenerateModuleOutput struct {
	Chapters int
	// Reused is true when the stored outline was kept.
	Reused bool
	// Enqueued counts chapter_generate jobs created by the fanout strategy.
	Enqueued  int
	Generated int
	Skipped   bool
}

type moduleOutline struct {
	Chapters []outlinedChapter `json:"chapters"`
}

type outlinedChapter struct {
	Title   string `json:"title"`
	Outline string `json:"outline"`
}

func validateOutline(count int) func(*moduleOutline) error {
	return func(o *moduleOutline) error {
		if len(o.Chapters) != count {
			return fmt.Errorf("chapters: want exactly %d, got %d", count, len(o.Chapters))
		}
		seen := map[string]int{}
		for i := range o.Chapters {
			c := &o.Chapters[i]
			c.Title = strings.TrimSpace(c.Title)
			c.Outline = strings.TrimSpace(c.Outline)
			if c.Title == "" {
				return fmt.Errorf("chapters[%d].title: empty", i)
			}
			if c.Outline == "" {
				return fmt.Errorf("chapters[%d].outline: empty", i)
			}
			key := strings.ToLower(c.Title)
			if j, dup := seen[key]; dup {
				return fmt.Errorf("chapters[%d].title duplicates chapters[%d]", i, j)
			}
			seen[key] = i
		}
		return nil
	}
}

// GenerateModule outlines the module, fills its chapter stubs in order and
// starts chapter generation with the configured strategy. Quiz generation is
// triggered by whichever chapter commit completes the module.
func (s *Service) GenerateModule(ctx context.Context, in GenerateModuleInput) (GenerateModuleOutput, error) {
	var out GenerateModuleOutput
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
	if m.IsCompleted {
		out.Skipped = true
		return out, nil
	}
	if m.IsLocked {
		return out, apierr.Precondition("module %s is locked", m.ID)
	}
	log := s.log.With("course_id", course.ID, "module_id", m.ID, "module_index", m.Index)

	dbc := dbctx.Context{Ctx: ctx}
	existing, err := s.deps.Chapters.ListByModule(dbc, m.ID)
	if err != nil {
		return out, err
	}
	in.Trigger.progress(StageModule, 5, "outlining module")

	chapters := existing
	if !hasOutlines(existing) {
		outline, err := s.outlineModule(ctx, course, m, len(existing))
		if err != nil {
			return out, err
		}
		res, err := s.deps.Aggregate.CommitOutline(ctx, domainagg.CommitOutlineInput{ModuleID: m.ID, Outlines: outline})
		if err != nil {
			return out, err
		}
		chapters, out.Reused = res.Chapters, res.Reused
	} else {
		out.Reused = true
	}
	out.Chapters = len(chapters)
	if _, err := s.deps.Aggregate.MoveChapterCursor(ctx, m.ID); err != nil {
		return out, err
	}
	in.Trigger.progress(StageModule, 20, fmt.Sprintf("%d chapters outlined", len(chapters)))

	var todo []*domain.Chapter
	for _, ch := range chapters {
		if !ch.IsGenerated {
			todo = append(todo, ch)
		}
	}
	log.Info("Module outlined", "chapters", len(chapters), "pending", len(todo), "reused", out.Reused, "strategy", s.cfg.ChapterStrategy)

	if len(todo) == 0 {
		// Every chapter is in; make sure the quiz stage exists.
		if _, err := s.triggerQuiz(ctx, course, m, in.Trigger); err != nil {
			return out, err
		}
		observability.Current().IncStage(StageModule, "succeeded")
		return out, nil
	}

	switch s.cfg.ChapterStrategy {
	case StrategyInline:
		n, err := s.generateInline(ctx, course, m, todo, in.Trigger)
		out.Generated = n
		if err != nil {
			return out, err
		}
	default:
		n, err := s.fanOutChapters(ctx, course, m, todo, in.Trigger)
		out.Enqueued = n
		if err != nil {
			return out, err
		}
	}
	observability.Current().IncStage(StageModule, "succeeded")
	s.pushProgress(ctx, course, StageModule)
	return out, nil
}

func hasOutlines(chapters []*domain.Chapter) bool {
	if len(chapters) == 0 {
		return false
	}
	for _, ch := range chapters {
		if strings.TrimSpace(ch.Outline) == "" {
			return false
		}
	}
	return true
}

func (s *Service) outlineModule(ctx context.Context, course *domain.Course, m *domain.Module, stubs int) ([]domainagg.ChapterOutline, error) {
	count := stubs
	if count == 0 {
		count = clamp(m.EstimatedChapters, 1, maxChaptersPerModule)
	}
	prior, err := s.priorModulesMD(ctx, course, m)
	if err != nil {
		return nil, err
	}
	o, err := generateStructured(ctx, s, prompts.PromptModuleOutline, prompts.Input{
		CourseTitle:    course.Title,
		Difficulty:     course.Difficulty,
		Language:       course.Language,
		ModuleIndex:    m.Index + 1,
		ModuleTitle:    m.Title,
		ModuleSummary:  m.Summary,
		ChapterCount:   count,
		PriorModulesMD: prior,
	}, validateOutline(count), "module_id", m.ID)
	if err != nil {
		return nil, err
	}
	out := make([]domainagg.ChapterOutline, 0, len(o.Chapters))
	for _, c := range o.Chapters {
		out = append(out, domainagg.ChapterOutline{Title: c.Title, Outline: c.Outline})
	}
	return out, nil
}

// priorModulesMD summarizes the modules before m with their chapter titles.
func (s *Service) priorModulesMD(ctx context.Context, course *domain.Course, m *domain.Module) (string, error) {
	if m.Index == 0 {
		return "", nil
	}
	dbc := dbctx.Context{Ctx: ctx}
	modules, err := s.deps.Modules.ListByCourse(dbc, course.ID)
	if err != nil {
		return "", err
	}
	chapters, err := s.deps.Chapters.ListByCourse(dbc, course.ID)
	if err != nil {
		return "", err
	}
	byModule := map[uuid.UUID][]string{}
	for _, ch := range chapters {
		byModule[ch.ModuleID] = append(byModule[ch.ModuleID], ch.Title)
	}
	var b strings.Builder
	for _, pm := range modules {
		if pm.Index >= m.Index {
			continue
		}
		fmt.Fprintf(&b, "- Module %d: %s. %s\n", pm.Index+1, pm.Title, pm.Summary)
		if titles := byModule[pm.ID]; len(titles) > 0 {
			fmt.Fprintf(&b, "  Chapters: %s\n", strings.Join(titles, "; "))
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Service) fanOutChapters(ctx context.Context, course *domain.Course, m *domain.Module, todo []*domain.Chapter, trig Trigger) (int, error) {
	var jobs pending
	err := s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		jobs.reset()
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		for _, ch := range todo {
			if _, err := s.enqueue(dbc, course, enqueueSpec{
				jobType:    JobChapterGenerate,
				entityType: EntityChapter,
				entityID:   ch.ID,
				payload:    chapterPayload(course.ID, m.ID, ch.ID),
			}, trig, &jobs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.dispatch(ctx, &jobs)
	return len(jobs.jobs), nil
}

func (s *Service) generateInline(ctx context.Context, course *domain.Course, m *domain.Module, todo []*domain.Chapter, trig Trigger) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.InlineParallelism)
	var mu sync.Mutex
	done := 0
	for _, ch := range todo {
		ch := ch
		g.Go(func() (err error) {
			// The executor only recovers panics on the handler goroutine.
			defer func() {
				if r := recover(); r != nil {
					err = apierr.Internal(fmt.Errorf("chapter %d panicked: %v", ch.Index, r))
				}
			}()
			_, err = s.GenerateChapter(gctx, GenerateChapterInput{
				CourseID:  course.ID,
				ModuleID:  m.ID,
				ChapterID: ch.ID,
				Trigger:   Trigger{JobID: trig.JobID},
			})
			if err != nil {
				return fmt.Errorf("chapter %d: %w", ch.Index, err)
			}
			mu.Lock()
			done++
			trig.progress(StageChapter, 20+70*done/len(todo), fmt.Sprintf("chapter %q generated", ch.Title))
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return done, err
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
