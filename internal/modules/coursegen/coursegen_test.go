package coursegen

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/domain/content"
	"github.com/yungbote/coursegen/internal/platform/apierr"
)

func TestCreateCourseBuildsSkeleton(t *testing.T) {
	h := newHarness(t, nil)
	res := h.create(t)

	c := res.Course
	require.Equal(t, domain.CourseStatusGenerating, c.Status)
	require.NotEqual(t, uuid.Nil, c.GenerationID)
	require.Equal(t, domain.DifficultyIntermediate, c.Difficulty)
	require.Len(t, res.Modules, 3)
	require.Len(t, res.Chapters, 2)

	d := h.data(t, c.ID)
	require.Len(t, d.Modules, 3)
	require.False(t, d.Modules[0].IsLocked)
	require.True(t, d.Modules[1].IsLocked)
	require.True(t, d.Modules[2].IsLocked)
	require.Equal(t, d.Modules[0].ID, *d.Course.CurrentModuleID)
	require.Len(t, d.Chapters, 2)
	for _, ch := range d.Chapters {
		require.Equal(t, d.Modules[0].ID, ch.ModuleID)
		require.False(t, ch.IsGenerated)
	}

	require.NotNil(t, res.Job)
	require.Equal(t, JobModuleGenerate, res.Job.JobType)
	require.Equal(t, domain.JobStatusQueued, res.Job.Status)
	require.Equal(t, c.GenerationID, *res.Job.CorrelationID)
	require.Equal(t, d.Modules[0].ID, *res.Job.EntityID)
}

func TestCreateCourseStoresFirstModuleUnlocked(t *testing.T) {
	h := newHarness(t, nil)
	res := h.create(t)
	require.False(t, res.Modules[0].IsLocked)

	var stored []domain.Module
	require.NoError(t, h.db.Where("course_id = ?", res.Course.ID).Order("position ASC").Find(&stored).Error)
	require.Len(t, stored, 3)
	require.False(t, stored[0].IsLocked)
	require.True(t, stored[1].IsLocked)
	require.True(t, stored[2].IsLocked)

	var course domain.Course
	require.NoError(t, h.db.Where("id = ?", res.Course.ID).First(&course).Error)
	require.True(t, course.IsSystemGenerated)
	require.False(t, course.IsPublic)
}

func TestCreateCourseRejectsBadInput(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.CreateCourse(ctx, CreateCourseRequest{OwnerUserID: h.owner, Topic: "  "})
	require.True(t, apierr.Is(err, apierr.KindValidation))
	_, err = h.svc.CreateCourse(ctx, CreateCourseRequest{OwnerUserID: h.owner, Topic: "x", Difficulty: "expert"})
	require.True(t, apierr.Is(err, apierr.KindValidation))
	_, err = h.svc.CreateCourse(ctx, CreateCourseRequest{Topic: "x"})
	require.True(t, apierr.Is(err, apierr.KindValidation))
	require.Empty(t, h.llm.callsFor("course_plan"))
}

func TestCreateCoursePlanFixPass(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.push("course_plan", planReply("T"), nil)
	dup := planReply("T", 1, 1)
	dup["modules"].([]any)[1].(map[string]any)["title"] = "module a"
	h.llm.push("course_plan", dup, nil)
	h.llm.push("course_plan", planReply("Third", 1), nil)

	res := h.create(t)
	require.Equal(t, "Third", res.Course.Title)
	calls := h.llm.callsFor("course_plan")
	require.Len(t, calls, 3)
	require.NotContains(t, calls[0].User, "rejected")
	require.Contains(t, calls[1].User, "modules: want 1 to 12, got 0")
	require.Contains(t, calls[2].User, "duplicates")
}

func TestCreateCoursePlanExhaustedIsTerminal(t *testing.T) {
	h := newHarness(t, nil)
	for i := 0; i < 3; i++ {
		h.llm.push("course_plan", planReply("T"), nil)
	}
	_, err := h.svc.CreateCourse(context.Background(), CreateCourseRequest{OwnerUserID: h.owner, Topic: "x"})
	require.True(t, apierr.Is(err, apierr.KindSchemaMismatch))
	require.False(t, apierr.IsRetryable(err))
	require.Len(t, h.llm.callsFor("course_plan"), 3)

	var n int64
	require.NoError(t, h.db.Model(&domain.Course{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestCreateCoursePlanRetriesProviderErrors(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.push("course_plan", nil, apierr.Provider(errors.New("503"), true))
	res := h.create(t)
	require.NotNil(t, res.Course)
	require.Len(t, h.llm.callsFor("course_plan"), 2)

	h.llm.push("course_plan", nil, apierr.Provider(errors.New("refused"), false))
	_, err := h.svc.CreateCourse(context.Background(), CreateCourseRequest{OwnerUserID: h.owner, Topic: "x"})
	require.True(t, apierr.Is(err, apierr.KindProvider))
	require.Len(t, h.llm.callsFor("course_plan"), 3)
}

// Modules A, B, C unlock strictly in order and the course completes.
func TestPipelineUnlocksModulesInOrder(t *testing.T) {
	h := newHarness(t, nil)
	res := h.create(t)
	courseID := res.Course.ID

	var unlockOrder []int
	seen := map[uuid.UUID]bool{res.Modules[0].ID: true}
	ran := h.drain(t, func() {
		d := h.data(t, courseID)
		requireTreeInvariants(t, d)
		for _, m := range d.Modules {
			if !m.IsLocked && !seen[m.ID] {
				seen[m.ID] = true
				unlockOrder = append(unlockOrder, m.Index)
			}
		}
	})

	require.Equal(t, []int{1, 2}, unlockOrder)
	require.Equal(t, 3, countJobs(ran, JobModuleGenerate))
	require.Equal(t, 4, countJobs(ran, JobChapterGenerate))
	require.Equal(t, 3, countJobs(ran, JobQuizGenerate))
	require.Equal(t, 3, countJobs(ran, JobCourseAdvance))

	d := h.data(t, courseID)
	requireTreeInvariants(t, d)
	require.Equal(t, domain.CourseStatusComplete, d.Course.Status)
	require.NotNil(t, d.Course.GeneratedAt)
	require.Len(t, d.Quizzes, 3)
	for _, m := range d.Modules {
		require.True(t, m.IsCompleted)
		require.Nil(t, m.CurrentChapterID)
	}
	for _, q := range d.Quizzes {
		// intermediate sizing, capped at three per chapter
		require.LessOrEqual(t, len(q.Questions), 7)
	}

	p := ComputeProgress(d.Course, d.Modules, d.Chapters)
	require.Equal(t, 100, p.ProgressPercentage)
	require.Equal(t, 3, p.CompletedModules)
	require.Equal(t, 4, p.CompletedChapters)

	require.Equal(t, 4, h.vectors.count(vectorNamespace(courseID)))
	withRefs := 0
	for _, ch := range d.Chapters {
		if len(ch.References) > 0 {
			withRefs++
			for _, r := range ch.References {
				require.NotEqual(t, ch.ID.String(), r.ChapterID)
			}
		}
	}
	require.Equal(t, 3, withRefs)
}

func TestPipelineInlineStrategy(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.ChapterStrategy = StrategyInline
		c.InlineParallelism = 2
	})
	res := h.create(t)
	ran := h.drain(t, func() { requireTreeInvariants(t, h.data(t, res.Course.ID)) })

	require.Zero(t, countJobs(ran, JobChapterGenerate))
	require.Equal(t, 3, countJobs(ran, JobQuizGenerate))
	d := h.data(t, res.Course.ID)
	require.Equal(t, domain.CourseStatusComplete, d.Course.Status)
	for _, ch := range d.Chapters {
		require.True(t, ch.IsGenerated)
	}
}

func TestInlineChapterPanicBecomesInternalError(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.ChapterStrategy = StrategyInline
		c.InlineParallelism = 1
	})
	h.llm.push("course_plan", planReply("One", 2), nil)
	h.llm.pushPanic("chapter_content", "provider client bug")
	res := h.create(t)
	d := h.data(t, res.Course.ID)

	var err error
	require.NotPanics(t, func() {
		_, err = h.svc.GenerateModule(context.Background(), GenerateModuleInput{CourseID: res.Course.ID, ModuleID: d.Modules[0].ID})
	})
	require.Error(t, err)
	require.True(t, apierr.Is(err, apierr.KindInternal))
	require.False(t, apierr.IsRetryable(err))
	require.Contains(t, err.Error(), "panicked")
}

func TestChapterFixPassUsesThirdAnswer(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.push("course_plan", planReply("One", 1), nil)
	h.llm.push("chapter_content", map[string]any{"blocks": []any{wire("video", nil)}}, nil)
	h.llm.push("chapter_content", map[string]any{"blocks": []any{wire("text", map[string]any{"md": " "})}}, nil)
	h.llm.push("chapter_content", chapterReply("third answer"), nil)

	res := h.create(t)
	h.drain(t, nil)

	d := h.data(t, res.Course.ID)
	require.Equal(t, domain.CourseStatusComplete, d.Course.Status)
	require.Len(t, d.Chapters, 1)
	blocks := d.Chapters[0].Blocks()
	require.Equal(t, content.Text{MD: "third answer"}, blocks[0])

	calls := h.llm.callsFor("chapter_content")
	require.Len(t, calls, 3)
	require.Contains(t, calls[1].User, `unknown type "video"`)
	require.Contains(t, calls[2].User, "md required")
}

func TestChapterFailureStallsCourseUntilResume(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.push("course_plan", planReply("Two", 1, 1), nil)
	for i := 0; i < 3; i++ {
		h.llm.push("chapter_content", map[string]any{"blocks": []any{}}, nil)
	}
	res := h.create(t)
	ran := h.drain(t, nil)
	require.Zero(t, countJobs(ran, JobQuizGenerate))
	require.Zero(t, countJobs(ran, JobCourseAdvance))

	d := h.data(t, res.Course.ID)
	require.Equal(t, domain.CourseStatusFailed, d.Course.Status)
	require.Equal(t, StageChapter, d.Course.FailedStage)
	require.NotEmpty(t, d.Course.ErrorMessage)
	require.Equal(t, d.Modules[0].ID, *d.Course.CurrentModuleID)
	require.False(t, d.Modules[0].IsCompleted)
	require.True(t, d.Modules[1].IsLocked)
	require.Empty(t, d.Quizzes)

	// Stages refuse to run on a failed course.
	_, err := h.svc.GenerateModule(context.Background(), GenerateModuleInput{CourseID: res.Course.ID, ModuleID: d.Modules[0].ID})
	require.True(t, apierr.Is(err, apierr.KindPrecondition))

	course, err := h.svc.Resume(context.Background(), res.Course.ID)
	require.NoError(t, err)
	require.Equal(t, domain.CourseStatusGenerating, course.Status)
	ran = h.drain(t, func() { requireTreeInvariants(t, h.data(t, res.Course.ID)) })
	require.Equal(t, JobModuleGenerate, ran[0])

	d = h.data(t, res.Course.ID)
	require.Equal(t, domain.CourseStatusComplete, d.Course.Status)
	require.Empty(t, d.Course.FailedStage)

	_, err = h.svc.Resume(context.Background(), res.Course.ID)
	require.True(t, apierr.Is(err, apierr.KindPrecondition))
}

func TestQuizPreconditionCreatesNoQuiz(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.push("course_plan", planReply("Q", 2), nil)
	res := h.create(t)
	ctx := context.Background()
	mod := res.Modules[0]

	out, err := h.svc.GenerateModule(ctx, GenerateModuleInput{CourseID: res.Course.ID, ModuleID: mod.ID})
	require.NoError(t, err)
	require.Equal(t, 2, out.Enqueued)

	_, err = h.svc.GenerateQuiz(ctx, GenerateQuizInput{CourseID: res.Course.ID, ModuleID: mod.ID})
	require.True(t, apierr.Is(err, apierr.KindPrecondition))
	require.False(t, apierr.IsRetryable(err))
	require.Empty(t, h.llm.callsFor("module_quiz"))

	var n int64
	require.NoError(t, h.db.Model(&domain.Quiz{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestModuleRerunReusesOutlineAndCollapsesJobs(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.push("course_plan", planReply("R", 2), nil)
	res := h.create(t)
	ctx := context.Background()
	in := GenerateModuleInput{CourseID: res.Course.ID, ModuleID: res.Modules[0].ID}

	first, err := h.svc.GenerateModule(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 2, first.Enqueued)
	second, err := h.svc.GenerateModule(ctx, in)
	require.NoError(t, err)
	require.True(t, second.Reused)
	require.Zero(t, second.Enqueued)
	require.Len(t, h.llm.callsFor("module_outline"), 1)

	_, err = h.svc.GenerateModule(ctx, GenerateModuleInput{CourseID: res.Course.ID, ModuleID: uuid.New()})
	require.True(t, apierr.Is(err, apierr.KindNotFound))
}

func TestLockedModuleIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	res := h.create(t)
	_, err := h.svc.GenerateModule(context.Background(), GenerateModuleInput{CourseID: res.Course.ID, ModuleID: res.Modules[1].ID})
	require.True(t, apierr.Is(err, apierr.KindPrecondition))
	require.Empty(t, h.llm.callsFor("module_outline"))
}

func TestChapterRerunOverwritesContent(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.push("course_plan", planReply("O", 1), nil)
	res := h.create(t)
	h.drain(t, nil)
	ctx := context.Background()

	d := h.data(t, res.Course.ID)
	ch := d.Chapters[0]
	oldHash := ch.ContentHash

	h.llm.push("chapter_content", chapterReply("rewritten"), nil)
	out, err := h.svc.GenerateChapter(ctx, GenerateChapterInput{CourseID: res.Course.ID, ModuleID: ch.ModuleID, ChapterID: ch.ID})
	require.NoError(t, err)
	require.True(t, out.Changed)

	d = h.data(t, res.Course.ID)
	require.Equal(t, content.Text{MD: "rewritten"}, d.Chapters[0].Blocks()[0])
	require.NotEqual(t, oldHash, d.Chapters[0].ContentHash)
	require.Equal(t, 1, h.vectors.count(vectorNamespace(res.Course.ID)))

	h.llm.push("chapter_content", chapterReply("rewritten"), nil)
	out, err = h.svc.GenerateChapter(ctx, GenerateChapterInput{CourseID: res.Course.ID, ModuleID: ch.ModuleID, ChapterID: ch.ID})
	require.NoError(t, err)
	require.False(t, out.Changed)
}

func TestAdvanceTwiceIsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.push("course_plan", planReply("A", 1, 1), nil)
	res := h.create(t)
	h.drain(t, nil)
	ctx := context.Background()

	var before int64
	require.NoError(t, h.db.Model(&domain.JobRun{}).Count(&before).Error)
	out, err := h.svc.Advance(ctx, AdvanceInput{CourseID: res.Course.ID, ModuleID: res.Modules[0].ID})
	require.NoError(t, err)
	require.False(t, out.Advanced)
	var after int64
	require.NoError(t, h.db.Model(&domain.JobRun{}).Count(&after).Error)
	require.Equal(t, before, after)
}

func TestReferencesAreBestEffort(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.embedErr = errors.New("embeddings down")
	h.llm.push("course_plan", planReply("E", 2), nil)
	res := h.create(t)
	h.drain(t, nil)

	d := h.data(t, res.Course.ID)
	require.Equal(t, domain.CourseStatusComplete, d.Course.Status)
	require.Zero(t, h.vectors.count(vectorNamespace(res.Course.ID)))
	for _, ch := range d.Chapters {
		require.Empty(t, ch.References)
	}
}

func TestMarkChapterCompleted(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.push("course_plan", planReply("M", 2), nil)
	res := h.create(t)
	ctx := context.Background()
	stub := res.Chapters[0]

	_, err := h.svc.MarkChapterCompleted(ctx, h.owner, stub.ID, true)
	require.True(t, apierr.Is(err, apierr.KindPrecondition))
	_, err = h.svc.MarkChapterCompleted(ctx, uuid.New(), stub.ID, true)
	require.True(t, apierr.Is(err, apierr.KindNotFound))

	h.drain(t, nil)
	ch, err := h.svc.MarkChapterCompleted(ctx, h.owner, stub.ID, true)
	require.NoError(t, err)
	require.True(t, ch.IsCompleted)
}

func TestComputeProgress(t *testing.T) {
	require.Equal(t, 0, ComputeProgress(nil, nil, nil).ProgressPercentage)
	require.Equal(t, 0, ComputeProgress(&domain.Course{}, []*domain.Module{}, nil).ProgressPercentage)

	a, b := &domain.Module{ID: uuid.New(), EstimatedChapters: 2, IsCompleted: true}, &domain.Module{ID: uuid.New(), EstimatedChapters: 2}
	chapters := []*domain.Chapter{
		{ModuleID: a.ID, IsGenerated: true},
		{ModuleID: a.ID, IsGenerated: true},
		{ModuleID: a.ID, IsGenerated: true},
	}
	p := ComputeProgress(&domain.Course{Status: domain.CourseStatusGenerating}, []*domain.Module{a, b}, chapters)
	require.Equal(t, 2, p.TotalModules)
	require.Equal(t, 1, p.CompletedModules)
	// module a outgrew its estimate; module b is not outlined yet
	require.Equal(t, 5, p.TotalChapters)
	require.Equal(t, 3, p.CompletedChapters)
	require.Equal(t, 60, p.ProgressPercentage)
}

func TestComputeProgressCountsGenerationNotReading(t *testing.T) {
	m := &domain.Module{ID: uuid.New(), EstimatedChapters: 2}
	chapters := []*domain.Chapter{
		{ModuleID: m.ID, IsGenerated: true},
		{ModuleID: m.ID},
	}
	p := ComputeProgress(&domain.Course{}, []*domain.Module{m}, chapters)
	require.Equal(t, 1, p.CompletedChapters)
	require.Equal(t, 50, p.ProgressPercentage)

	chapters[0].IsCompleted = true
	require.Equal(t, p, ComputeProgress(&domain.Course{}, []*domain.Module{m}, chapters))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.Error(t, Config{ChapterStrategy: "batch"}.Validate())
	require.Error(t, Config{QuizSizing: map[string]int{"beginner": 0}}.Validate())

	c := DefaultConfig()
	require.Equal(t, 5, c.quizSize(domain.DifficultyBeginner, 10))
	require.Equal(t, 3, c.quizSize(domain.DifficultyAdvanced, 1))
	require.Equal(t, 7, c.quizSize("unknown", 10))
}

func TestGenerationStatusReportsLatestJobPerStage(t *testing.T) {
	h := newHarness(t, nil)
	res := h.create(t)

	st, err := h.svc.GenerationStatus(context.Background(), res.Course.ID)
	require.NoError(t, err)
	require.Len(t, st, 1)
	require.Equal(t, StageModule, st[0].Stage)
	require.Equal(t, domain.JobStatusQueued, st[0].Job.Status)

	h.drain(t, nil)

	st, err = h.svc.GenerationStatus(context.Background(), res.Course.ID)
	require.NoError(t, err)
	require.Len(t, st, 4)
	stages := make([]string, 0, len(st))
	for _, s := range st {
		stages = append(stages, s.Stage)
		require.Equal(t, domain.JobStatusSucceeded, s.Job.Status)
	}
	require.Equal(t, []string{StageModule, StageChapter, StageQuiz, StageAdvance}, stages)
	require.Equal(t, 3, st[0].Runs)
	require.Equal(t, 4, st[1].Runs)

	_, err = h.svc.GenerationStatus(context.Background(), uuid.New())
	require.True(t, apierr.Is(err, apierr.KindNotFound))
}

func TestRejectReasonKeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("x", maxFixNote-1) + "ß and more"
	got := rejectReason(apierr.SchemaMismatch(errors.New(long)))
	require.True(t, utf8.ValidString(got))
	require.Len(t, got, maxFixNote-1)
}
