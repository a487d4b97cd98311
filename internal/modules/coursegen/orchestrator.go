package coursegen

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/coursegen/internal/domain"
	domainagg "github.com/yungbote/coursegen/internal/domain/aggregates"
	"github.com/yungbote/coursegen/internal/observability"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
	"github.com/yungbote/coursegen/internal/platform/logger"
	"github.com/yungbote/coursegen/internal/services"
)

/*
Service is the course generation pipeline.

It is the only caller of the unlock and cursor transitions of the course
aggregate. Each generator writes the content of its own entity and continues
the pipeline by enqueueing the next stage with an id-only payload, inside the
same transaction as its commit. Jobs are dispatched after commit.
*/
type Service struct {
	deps Deps
	cfg  Config
	log  *logger.Logger
	now  func() time.Time
}

func New(deps Deps, cfg Config) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		deps: deps,
		cfg:  cfg.withDefaults(),
		log:  deps.Log.With("module", "coursegen"),
		now:  now,
	}, nil
}

func (s *Service) Config() Config { return s.cfg }

// Trigger identifies the job a stage runs under, for chaining.
type Trigger struct {
	JobID    *uuid.UUID
	Progress func(stage string, pct int, msg string)
}

func (t Trigger) progress(stage string, pct int, msg string) {
	if t.Progress != nil {
		t.Progress(stage, pct, msg)
	}
}

// pending collects jobs created in a transaction.
type pending struct {
	mu   sync.Mutex
	jobs []*domain.JobRun
}

func (p *pending) add(j *domain.JobRun) {
	p.mu.Lock()
	p.jobs = append(p.jobs, j)
	p.mu.Unlock()
}

func (p *pending) reset() {
	p.mu.Lock()
	p.jobs = nil
	p.mu.Unlock()
}

type enqueueSpec struct {
	jobType    string
	entityType string
	entityID   uuid.UUID
	payload    map[string]any
}

func (s *Service) enqueue(dbc dbctx.Context, course *domain.Course, spec enqueueSpec, trig Trigger, out *pending) (*domain.JobRun, error) {
	corr := course.GenerationID
	job, created, err := s.deps.Jobs.Enqueue(dbc, course.OwnerUserID, spec.jobType, spec.entityType, &spec.entityID, spec.payload, services.EnqueueOptions{
		MaxAttempts:   s.cfg.JobMaxAttempts,
		Timeout:       s.cfg.JobTimeout,
		ParentJobID:   trig.JobID,
		CorrelationID: &corr,
		DedupeKey:     dedupeKey(spec.jobType, spec.entityID),
	})
	if err != nil {
		return nil, err
	}
	if created && out != nil {
		out.add(job)
	}
	return job, nil
}

// dispatch hands committed jobs to the runner. A failed dispatch leaves the
// job queued for the poller.
func (s *Service) dispatch(ctx context.Context, p *pending) {
	if p == nil {
		return
	}
	p.mu.Lock()
	jobs := append([]*domain.JobRun(nil), p.jobs...)
	p.mu.Unlock()
	for _, j := range jobs {
		if err := s.deps.Jobs.Dispatch(dbctx.Context{Ctx: ctx}, j.ID); err != nil {
			s.log.Warn("Job dispatch failed", "job_id", j.ID, "job_type", j.JobType, "error", err)
		}
	}
}

func (s *Service) loadCourse(ctx context.Context, id uuid.UUID) (*domain.Course, error) {
	c, err := s.deps.Courses.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound("course", id)
	}
	return c, nil
}

func (s *Service) loadModule(ctx context.Context, courseID, id uuid.UUID) (*domain.Module, error) {
	m, err := s.deps.Modules.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if m == nil || m.CourseID != courseID {
		return nil, apierr.NotFound("module", id)
	}
	return m, nil
}

func (s *Service) notifier() services.CourseNotifier {
	if s.deps.Notify == nil {
		return nopCourseNotifier{}
	}
	return s.deps.Notify
}

type AdvanceInput struct {
	CourseID uuid.UUID
	ModuleID uuid.UUID
	Trigger  Trigger
}

// Advance completes moduleID and unlocks its successor, or completes the
// course. A second call for the same module is a no-op.
func (s *Service) Advance(ctx context.Context, in AdvanceInput) (domainagg.AdvanceResult, error) {
	course, err := s.loadCourse(ctx, in.CourseID)
	if err != nil {
		return domainagg.AdvanceResult{}, err
	}
	var jobs pending
	res, err := s.deps.Aggregate.Advance(ctx, domainagg.AdvanceInput{
		CourseID: in.CourseID,
		ModuleID: in.ModuleID,
		Then: func(dbc dbctx.Context, res domainagg.AdvanceResult) error {
			jobs.reset()
			if res.NextModule == nil {
				return nil
			}
			_, err := s.enqueue(dbc, course, enqueueSpec{
				jobType:    JobModuleGenerate,
				entityType: EntityModule,
				entityID:   res.NextModule.ID,
				payload:    modulePayload(course.ID, res.NextModule.ID),
			}, in.Trigger, &jobs)
			return err
		},
	})
	if err != nil {
		return res, err
	}
	if !res.Advanced {
		s.log.Debug("Advance no-op", "course_id", in.CourseID, "module_id", in.ModuleID)
		return res, nil
	}
	s.dispatch(ctx, &jobs)
	observability.Current().IncStage(StageAdvance, "succeeded")

	switch {
	case res.CourseComplete:
		s.log.Info("Course generation complete", "course_id", course.ID)
		s.notifier().CourseGenerationDone(ctx, course)
	case res.NextModule != nil:
		s.log.Info("Module unlocked", "course_id", course.ID, "module_id", res.NextModule.ID, "module_index", res.NextModule.Index)
		s.notifier().CourseModuleUnlocked(ctx, course, res.NextModule)
	}
	s.pushProgress(ctx, course, StageAdvance)
	return res, nil
}

// MarkFailed moves the course to failed after a stage exhausted its budget.
// Committed content stays readable and the cursor is frozen.
func (s *Service) MarkFailed(ctx context.Context, courseID uuid.UUID, stage string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	ok, err := s.deps.Aggregate.MarkFailed(ctx, domainagg.MarkFailedInput{
		CourseID: courseID,
		Stage:    stage,
		Message:  msg,
	})
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	observability.Current().IncStage(stage, "failed")
	s.log.Warn("Course generation failed", "course_id", courseID, "stage", stage, "error", msg)
	if course, err := s.loadCourse(ctx, courseID); err == nil {
		s.notifier().CourseGenerationFailed(ctx, course, stage, msg)
	}
	return nil
}

// Resume re-enqueues the stage a failed course stalled at.
func (s *Service) Resume(ctx context.Context, courseID uuid.UUID) (*domain.Course, error) {
	var jobs pending
	course, err := s.deps.Aggregate.Resume(ctx, domainagg.ResumeInput{
		CourseID: courseID,
		Then: func(dbc dbctx.Context, c *domain.Course) error {
			jobs.reset()
			spec, err := s.stalledStage(dbc, c)
			if err != nil {
				return err
			}
			_, err = s.enqueue(dbc, c, spec, Trigger{}, &jobs)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, &jobs)
	s.log.Info("Course generation resumed", "course_id", courseID)
	s.pushProgress(ctx, course, "resume")
	return course, nil
}

func (s *Service) stalledStage(dbc dbctx.Context, c *domain.Course) (enqueueSpec, error) {
	if c.CurrentModuleID == nil {
		return enqueueSpec{}, apierr.Precondition("course %s has no current module", c.ID)
	}
	moduleID := *c.CurrentModuleID
	total, generated, err := s.deps.Chapters.CountByModule(dbc, moduleID)
	if err != nil {
		return enqueueSpec{}, err
	}
	spec := enqueueSpec{entityType: EntityModule, entityID: moduleID, payload: modulePayload(c.ID, moduleID)}
	if total == 0 || generated < total {
		spec.jobType = JobModuleGenerate
		return spec, nil
	}
	quiz, err := s.deps.Quizzes.GetByModule(dbc, moduleID)
	if err != nil {
		return enqueueSpec{}, err
	}
	if quiz == nil {
		spec.jobType = JobQuizGenerate
	} else {
		spec.jobType = JobCourseAdvance
	}
	return spec, nil
}

// MarkChapterCompleted records user progress on a generated chapter.
func (s *Service) MarkChapterCompleted(ctx context.Context, ownerUserID, chapterID uuid.UUID, completed bool) (*domain.Chapter, error) {
	ch, err := s.deps.Chapters.GetByID(dbctx.Context{Ctx: ctx}, chapterID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, apierr.NotFound("chapter", chapterID)
	}
	course, err := s.loadCourse(ctx, ch.CourseID)
	if err != nil {
		return nil, err
	}
	if course.OwnerUserID != ownerUserID {
		return nil, apierr.NotFound("chapter", chapterID)
	}
	return s.deps.Aggregate.MarkChapterCompleted(ctx, chapterID, completed)
}

func (s *Service) pushProgress(ctx context.Context, course *domain.Course, stage string) {
	view, err := s.Progress(ctx, course.ID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Debug("progress snapshot failed", "course_id", course.ID, "error", err)
		}
		return
	}
	s.notifier().CourseGenerationProgress(ctx, course, stage, view.ProgressPercentage, "")
}

type nopCourseNotifier struct{}

func (nopCourseNotifier) CourseCreated(context.Context, *domain.Course) {}
func (nopCourseNotifier) CourseGenerationProgress(context.Context, *domain.Course, string, int, string) {
}
func (nopCourseNotifier) CourseModuleUnlocked(context.Context, *domain.Course, *domain.Module)    {}
func (nopCourseNotifier) CourseGenerationFailed(context.Context, *domain.Course, string, string) {}
func (nopCourseNotifier) CourseGenerationDone(context.Context, *domain.Course)                   {}
