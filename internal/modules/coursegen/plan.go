package coursegen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/coursegen/internal/domain"
	domainagg "github.com/yungbote/coursegen/internal/domain/aggregates"
	"github.com/yungbote/coursegen/internal/jobs/retry"
	"github.com/yungbote/coursegen/internal/modules/coursegen/prompts"
	"github.com/yungbote/coursegen/internal/observability"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
)

const (
	maxTopicLen       = 500
	maxDescriptionLen = 4000
)

type CreateCourseRequest struct {
	OwnerUserID uuid.UUID `json:"-"`
	Topic       string    `json:"topic"`
	Description string    `json:"description"`
	Difficulty  string    `json:"difficulty"`
	Language    string    `json:"language"`
	IsPublic    bool      `json:"is_public"`
}

type CreateCourseResult struct {
	Course   *domain.Course
	Modules  []*domain.Module
	Chapters []*domain.Chapter
	// Job is the first module_generate job.
	Job *domain.JobRun
}

func (r CreateCourseRequest) normalize() (CreateCourseRequest, error) {
	if r.OwnerUserID == uuid.Nil {
		return r, apierr.Validation("owner_user_id required")
	}
	r.Topic = strings.TrimSpace(r.Topic)
	r.Description = strings.TrimSpace(r.Description)
	if r.Topic == "" {
		return r, apierr.Validation("topic required")
	}
	if len(r.Topic) > maxTopicLen {
		return r, apierr.Validation("topic longer than %d characters", maxTopicLen)
	}
	if len(r.Description) > maxDescriptionLen {
		return r, apierr.Validation("description longer than %d characters", maxDescriptionLen)
	}
	r.Difficulty = strings.ToLower(strings.TrimSpace(r.Difficulty))
	switch r.Difficulty {
	case "":
		r.Difficulty = domain.DifficultyIntermediate
	case domain.DifficultyBeginner, domain.DifficultyIntermediate, domain.DifficultyAdvanced:
	default:
		return r, apierr.Validation("difficulty must be beginner, intermediate or advanced")
	}
	r.Language = strings.TrimSpace(r.Language)
	if r.Language == "" {
		r.Language = "en"
	}
	return r, nil
}

type coursePlan struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Subject     string          `json:"subject"`
	Modules     []plannedModule `json:"modules"`
}

type plannedModule struct {
	Title             string `json:"title"`
	Summary           string `json:"summary"`
	EstimatedChapters int    `json:"estimated_chapters"`
}

func validatePlan(p *coursePlan) error {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return fmt.Errorf("title: empty")
	}
	if len(p.Modules) == 0 || len(p.Modules) > maxPlanModules {
		return fmt.Errorf("modules: want 1 to %d, got %d", maxPlanModules, len(p.Modules))
	}
	seen := make(map[string]int, len(p.Modules))
	for i := range p.Modules {
		m := &p.Modules[i]
		m.Title = strings.TrimSpace(m.Title)
		if m.Title == "" {
			return fmt.Errorf("modules[%d].title: empty", i)
		}
		key := strings.ToLower(m.Title)
		if j, dup := seen[key]; dup {
			return fmt.Errorf("modules[%d].title duplicates modules[%d]: %q", i, j, m.Title)
		}
		seen[key] = i
		if m.EstimatedChapters < 1 || m.EstimatedChapters > maxChaptersPerModule {
			return fmt.Errorf("modules[%d].estimated_chapters: want 1 to %d, got %d", i, maxChaptersPerModule, m.EstimatedChapters)
		}
	}
	return nil
}

func (s *Service) planCourse(ctx context.Context, req CreateCourseRequest) (*coursePlan, error) {
	in := prompts.Input{
		Topic:       req.Topic,
		Description: req.Description,
		Difficulty:  req.Difficulty,
		Language:    req.Language,
		MaxModules:  maxPlanModules,
	}
	var plan *coursePlan
	policy := retry.Policy{
		MaxAttempts: s.cfg.PlanAttempts,
		Retryable:   apierr.IsRetryable,
		MinBackoff:  s.cfg.PlanBackoff,
		MaxBackoff:  8 * s.cfg.PlanBackoff,
	}
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		p, err := generateStructured(ctx, s, prompts.PromptCoursePlan, in, validatePlan, "plan_attempt", attempt)
		if err != nil {
			return err
		}
		plan = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// CreateCourse plans the course and persists its skeleton: the course, every
// module (all locked but the first) and chapter stubs for the first module.
// The first module_generate job is enqueued in the same transaction.
func (s *Service) CreateCourse(ctx context.Context, req CreateCourseRequest) (*CreateCourseResult, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	plan, err := s.planCourse(ctx, req)
	if err != nil {
		observability.Current().IncStage(StagePlan, "failed")
		s.log.Warn("Course plan failed", "topic", req.Topic, "error", err)
		return nil, err
	}

	res := s.buildSkeleton(req, plan)
	var jobs pending
	err = s.deps.Aggregate.CreateSkeleton(ctx, domainagg.CreateSkeletonInput{
		Course:   res.Course,
		Modules:  res.Modules,
		Chapters: res.Chapters,
		Then: func(dbc dbctx.Context) error {
			jobs.reset()
			first := res.Modules[0]
			job, err := s.enqueue(dbc, res.Course, enqueueSpec{
				jobType:    JobModuleGenerate,
				entityType: EntityModule,
				entityID:   first.ID,
				payload:    modulePayload(res.Course.ID, first.ID),
			}, Trigger{}, &jobs)
			res.Job = job
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, &jobs)
	observability.Current().IncStage(StagePlan, "succeeded")
	s.log.Info("Course created",
		"course_id", res.Course.ID,
		"generation_id", res.Course.GenerationID,
		"modules", len(res.Modules),
		"owner_user_id", req.OwnerUserID,
	)
	s.notifier().CourseCreated(ctx, res.Course)
	return res, nil
}

func (s *Service) buildSkeleton(req CreateCourseRequest, plan *coursePlan) *CreateCourseResult {
	now := s.now()
	course := &domain.Course{
		ID:                uuid.New(),
		OwnerUserID:       req.OwnerUserID,
		IsPublic:          req.IsPublic,
		IsSystemGenerated: true,
		Title:             plan.Title,
		Description:       strings.TrimSpace(plan.Description),
		Subject:           strings.TrimSpace(plan.Subject),
		Difficulty:        req.Difficulty,
		Language:          req.Language,
		GenerationID:      uuid.New(),
		Status:            domain.CourseStatusGenerating,
		Metadata:          topicMetadata(req),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	res := &CreateCourseResult{Course: course}
	for i, pm := range plan.Modules {
		m := &domain.Module{
			ID:                uuid.New(),
			CourseID:          course.ID,
			Index:             i,
			Title:             pm.Title,
			Summary:           strings.TrimSpace(pm.Summary),
			EstimatedChapters: pm.EstimatedChapters,
			IsLocked:          i != 0,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		course.ModuleIDs = append(course.ModuleIDs, m.ID)
		res.Modules = append(res.Modules, m)
	}
	first := res.Modules[0]
	course.CurrentModuleID = &first.ID
	for j := 0; j < first.EstimatedChapters; j++ {
		ch := &domain.Chapter{
			ID:        uuid.New(),
			ModuleID:  first.ID,
			CourseID:  course.ID,
			Index:     j,
			Title:     fmt.Sprintf("Chapter %d", j+1),
			CreatedAt: now,
			UpdatedAt: now,
		}
		first.Contents = append(first.Contents, ch.ID)
		res.Chapters = append(res.Chapters, ch)
	}
	return res
}

func topicMetadata(req CreateCourseRequest) datatypes.JSON {
	b, _ := json.Marshal(map[string]any{"topic": req.Topic, "description": req.Description})
	return datatypes.JSON(b)
}
