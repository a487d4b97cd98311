package coursegen

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
)

type ProgressView struct {
	CourseID           uuid.UUID  `json:"course_id"`
	Status             string     `json:"status"`
	CurrentModuleID    *uuid.UUID `json:"current_module_id,omitempty"`
	TotalModules       int        `json:"total_modules"`
	CompletedModules   int        `json:"completed_modules"`
	TotalChapters      int        `json:"total_chapters"`
	// CompletedChapters counts generated chapters, not ones the reader finished.
	CompletedChapters  int        `json:"completed_chapters"`
	ProgressPercentage int        `json:"progress_percentage"`
}

// CourseData is the joined read shape of one course.
type CourseData struct {
	Course   *domain.Course    `json:"course"`
	Modules  []*domain.Module  `json:"modules"`
	Chapters []*domain.Chapter `json:"chapters"`
	Quizzes  []*domain.Quiz    `json:"quizzes"`
}

// ComputeProgress derives completion from committed entities. Modules not yet
// outlined count their estimated chapters.
func ComputeProgress(course *domain.Course, modules []*domain.Module, chapters []*domain.Chapter) ProgressView {
	var v ProgressView
	if course != nil {
		v.CourseID, v.Status, v.CurrentModuleID = course.ID, course.Status, course.CurrentModuleID
	}
	perModule := make(map[uuid.UUID]int, len(modules))
	for _, ch := range chapters {
		perModule[ch.ModuleID]++
		if ch.IsGenerated {
			v.CompletedChapters++
		}
	}
	v.TotalModules = len(modules)
	for _, m := range modules {
		if m.IsCompleted {
			v.CompletedModules++
		}
		v.TotalChapters += max(perModule[m.ID], m.EstimatedChapters)
	}
	if v.TotalChapters > 0 {
		v.ProgressPercentage = min(100, v.CompletedChapters*100/v.TotalChapters)
	}
	if v.TotalModules == 0 {
		v.ProgressPercentage = 0
	}
	return v
}

func (s *Service) Progress(ctx context.Context, courseID uuid.UUID) (ProgressView, error) {
	d, err := s.CourseData(ctx, courseID)
	if err != nil {
		return ProgressView{}, err
	}
	return ComputeProgress(d.Course, d.Modules, d.Chapters), nil
}

func (s *Service) CourseData(ctx context.Context, courseID uuid.UUID) (*CourseData, error) {
	dbc := dbctx.Context{Ctx: ctx}
	course, err := s.deps.Courses.GetByID(dbc, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, apierr.NotFound("course", courseID)
	}
	modules, err := s.deps.Modules.ListByCourse(dbc, courseID)
	if err != nil {
		return nil, err
	}
	chapters, err := s.deps.Chapters.ListByCourse(dbc, courseID)
	if err != nil {
		return nil, err
	}
	quizzes, err := s.deps.Quizzes.ListByCourse(dbc, courseID)
	if err != nil {
		return nil, err
	}
	return &CourseData{Course: course, Modules: modules, Chapters: chapters, Quizzes: quizzes}, nil
}

// CanView reports whether viewer may read course.
func CanView(course *domain.Course, viewer uuid.UUID) bool {
	return course != nil && (course.IsPublic || course.OwnerUserID == viewer)
}

func (s *Service) ListCourses(ctx context.Context, owner uuid.UUID, limit int) ([]*domain.Course, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.deps.Courses.ListByOwner(dbctx.Context{Ctx: ctx}, owner, limit)
}

// StageStatus is the most recent job of one stage in a generation.
type StageStatus struct {
	Stage string         `json:"stage"`
	Job   *domain.JobRun `json:"job"`
	// Runs counts every job of the stage, one per module or chapter.
	Runs int `json:"runs"`
}

// GenerationStatus returns the latest job per stage of the course's current
// generation, in pipeline order.
func (s *Service) GenerationStatus(ctx context.Context, courseID uuid.UUID) ([]StageStatus, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	jobs, err := s.deps.Jobs.ListByCorrelation(dbctx.Context{Ctx: ctx}, course.GenerationID)
	if err != nil {
		return nil, err
	}
	byStage := map[string]*StageStatus{}
	for _, j := range jobs {
		stage := StageForJob(j.JobType)
		if stage == "" {
			continue
		}
		st := byStage[stage]
		if st == nil {
			st = &StageStatus{Stage: stage}
			byStage[stage] = st
		}
		st.Runs++
		// rows arrive oldest first
		st.Job = j
	}
	out := make([]StageStatus, 0, len(byStage))
	for _, stage := range []string{StageModule, StageChapter, StageQuiz, StageAdvance} {
		if st := byStage[stage]; st != nil {
			out = append(out, *st)
		}
	}
	return out, nil
}
