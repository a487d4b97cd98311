package aggregates

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/data/repos"
	"github.com/yungbote/coursegen/internal/data/repos/testutil"
	"github.com/yungbote/coursegen/internal/domain"
	domainagg "github.com/yungbote/coursegen/internal/domain/aggregates"
	"github.com/yungbote/coursegen/internal/domain/content"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
)

func newTestAggregate(t *testing.T) (domainagg.CourseAggregate, *gorm.DB, *spyHooks) {
	t.Helper()
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	hooks := &spyHooks{}
	agg := NewCourseAggregate(CourseAggregateDeps{
		Base:     BaseDeps{DB: db, Log: testutil.Logger(t), Hooks: hooks},
		Courses:  set.Courses,
		Modules:  set.Modules,
		Chapters: set.Chapters,
		Quizzes:  set.Quizzes,
	})
	return agg, db, hooks
}

func reloadModule(t *testing.T, db *gorm.DB, id uuid.UUID) *domain.Module {
	t.Helper()
	var m domain.Module
	require.NoError(t, db.Where("id = ?", id).First(&m).Error)
	return &m
}

func reloadCourse(t *testing.T, db *gorm.DB, id uuid.UUID) *domain.Course {
	t.Helper()
	var c domain.Course
	require.NoError(t, db.Where("id = ?", id).First(&c).Error)
	return &c
}

func TestAdvanceUnlocksNextModule(t *testing.T) {
	agg, db, _ := newTestAggregate(t)
	ctx := context.Background()
	tree := testutil.SeedCourseTree(t, ctx, db, uuid.New(), 2, 1, 1)
	a, b, c := tree.Modules[0], tree.Modules[1], tree.Modules[2]
	for _, ch := range tree.Chapters[0] {
		testutil.MarkGenerated(t, ctx, db, ch)
	}
	testutil.SeedQuiz(t, ctx, db, a)

	var thenCalls int
	res, err := agg.Advance(ctx, domainagg.AdvanceInput{
		CourseID: tree.Course.ID,
		ModuleID: a.ID,
		Then: func(dbc dbctx.Context, res domainagg.AdvanceResult) error {
			thenCalls++
			require.NotNil(t, dbc.Tx)
			return nil
		},
	})
	require.NoError(t, err)
	require.True(t, res.Advanced)
	require.False(t, res.CourseComplete)
	require.NotNil(t, res.NextModule)
	require.Equal(t, b.ID, res.NextModule.ID)
	require.Equal(t, 1, thenCalls)

	require.True(t, reloadModule(t, db, a.ID).IsCompleted)
	gotB := reloadModule(t, db, b.ID)
	require.False(t, gotB.IsLocked)
	require.False(t, gotB.IsCompleted)
	gotC := reloadModule(t, db, c.ID)
	require.True(t, gotC.IsLocked)
	require.False(t, gotC.IsCompleted)

	course := reloadCourse(t, db, tree.Course.ID)
	require.NotNil(t, course.CurrentModuleID)
	require.Equal(t, b.ID, *course.CurrentModuleID)
	require.Equal(t, domain.CourseStatusGenerating, course.Status)

	// A replay is a no-op and does not run the continuation again.
	res, err = agg.Advance(ctx, domainagg.AdvanceInput{
		CourseID: tree.Course.ID,
		ModuleID: a.ID,
		Then: func(dbctx.Context, domainagg.AdvanceResult) error {
			thenCalls++
			return nil
		},
	})
	require.NoError(t, err)
	require.False(t, res.Advanced)
	require.Equal(t, 1, thenCalls)
	course = reloadCourse(t, db, tree.Course.ID)
	require.Equal(t, b.ID, *course.CurrentModuleID)
	require.True(t, reloadModule(t, db, c.ID).IsLocked)
}

func TestAdvanceLastModuleCompletesCourse(t *testing.T) {
	agg, db, _ := newTestAggregate(t)
	ctx := context.Background()
	tree := testutil.SeedCourseTree(t, ctx, db, uuid.New(), 1)
	testutil.MarkGenerated(t, ctx, db, tree.Chapters[0][0])
	testutil.SeedQuiz(t, ctx, db, tree.Modules[0])

	res, err := agg.Advance(ctx, domainagg.AdvanceInput{CourseID: tree.Course.ID, ModuleID: tree.Modules[0].ID})
	require.NoError(t, err)
	require.True(t, res.Advanced)
	require.True(t, res.CourseComplete)
	require.Nil(t, res.NextModule)

	course := reloadCourse(t, db, tree.Course.ID)
	require.Equal(t, domain.CourseStatusComplete, course.Status)
	require.NotNil(t, course.GeneratedAt)
}

func TestAdvanceRequiresBarrier(t *testing.T) {
	agg, db, _ := newTestAggregate(t)
	ctx := context.Background()
	tree := testutil.SeedCourseTree(t, ctx, db, uuid.New(), 2, 1)
	a := tree.Modules[0]
	testutil.MarkGenerated(t, ctx, db, tree.Chapters[0][0])

	_, err := agg.Advance(ctx, domainagg.AdvanceInput{CourseID: tree.Course.ID, ModuleID: a.ID})
	require.True(t, apierr.Is(err, apierr.KindPrecondition), "got %v", err)

	testutil.MarkGenerated(t, ctx, db, tree.Chapters[0][1])
	_, err = agg.Advance(ctx, domainagg.AdvanceInput{CourseID: tree.Course.ID, ModuleID: a.ID})
	require.True(t, apierr.Is(err, apierr.KindPrecondition), "missing quiz: got %v", err)

	require.False(t, reloadModule(t, db, a.ID).IsCompleted)
	require.True(t, reloadModule(t, db, tree.Modules[1].ID).IsLocked)
}

func TestAdvanceRejectsFailedCourse(t *testing.T) {
	agg, db, _ := newTestAggregate(t)
	ctx := context.Background()
	tree := testutil.SeedCourseTree(t, ctx, db, uuid.New(), 1, 1)
	testutil.MarkGenerated(t, ctx, db, tree.Chapters[0][0])
	testutil.SeedQuiz(t, ctx, db, tree.Modules[0])

	changed, err := agg.MarkFailed(ctx, domainagg.MarkFailedInput{CourseID: tree.Course.ID, Stage: "quiz", Message: "boom"})
	require.NoError(t, err)
	require.True(t, changed)

	_, err = agg.Advance(ctx, domainagg.AdvanceInput{CourseID: tree.Course.ID, ModuleID: tree.Modules[0].ID})
	require.True(t, apierr.Is(err, apierr.KindPrecondition), "got %v", err)
}

func TestCommitQuizRequiresGeneratedChapters(t *testing.T) {
	agg, db, _ := newTestAggregate(t)
	ctx := context.Background()
	tree := testutil.SeedCourseTree(t, ctx, db, uuid.New(), 2)
	m := tree.Modules[0]
	testutil.MarkGenerated(t, ctx, db, tree.Chapters[0][0])

	quiz := &domain.Quiz{
		ID:         uuid.New(),
		ModuleID:   m.ID,
		Difficulty: domain.DifficultyIntermediate,
		Questions:  []domain.Question{{Prompt: "Q?", Options: []string{"a", "b"}, AnswerIndex: 1}},
	}
	_, err := agg.CommitQuiz(ctx, domainagg.CommitQuizInput{Quiz: quiz})
	require.True(t, apierr.Is(err, apierr.KindPrecondition), "got %v", err)

	var count int64
	require.NoError(t, db.Model(&domain.Quiz{}).Where("module_id = ?", m.ID).Count(&count).Error)
	require.Zero(t, count)

	testutil.MarkGenerated(t, ctx, db, tree.Chapters[0][1])
	stored, err := agg.CommitQuiz(ctx, domainagg.CommitQuizInput{Quiz: quiz})
	require.NoError(t, err)
	require.Equal(t, tree.Course.ID, stored.CourseID)
}

func TestCommitChapterOverwritesAndReportsReadiness(t *testing.T) {
	agg, db, _ := newTestAggregate(t)
	ctx := context.Background()
	tree := testutil.SeedCourseTree(t, ctx, db, uuid.New(), 2)
	first, second := tree.Chapters[0][0], tree.Chapters[0][1]

	v1 := content.Blocks{content.Text{MD: "first draft"}}
	res, err := agg.CommitChapter(ctx, domainagg.CommitChapterInput{ChapterID: first.ID, Blocks: v1})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.False(t, res.ModuleReady)

	res, err = agg.CommitChapter(ctx, domainagg.CommitChapterInput{ChapterID: first.ID, Blocks: v1})
	require.NoError(t, err)
	require.False(t, res.Changed)

	v2 := content.Blocks{content.Text{MD: "second draft"}}
	res, err = agg.CommitChapter(ctx, domainagg.CommitChapterInput{
		ChapterID:  first.ID,
		Blocks:     v2,
		References: []domain.Reference{{ChapterID: second.ID.String(), Title: second.Title, Score: 0.8}},
	})
	require.NoError(t, err)
	require.True(t, res.Changed)

	var stored domain.Chapter
	require.NoError(t, db.Where("id = ?", first.ID).First(&stored).Error)
	require.Equal(t, "second draft", content.PlainText(stored.Blocks(), 0))
	require.Len(t, stored.References, 1)

	res, err = agg.CommitChapter(ctx, domainagg.CommitChapterInput{ChapterID: second.ID, Blocks: v1})
	require.NoError(t, err)
	require.True(t, res.ModuleReady)
}

func TestCommitChapterRejectsLockedModule(t *testing.T) {
	agg, db, _ := newTestAggregate(t)
	ctx := context.Background()
	tree := testutil.SeedCourseTree(t, ctx, db, uuid.New(), 1, 1)

	_, err := agg.CommitChapter(ctx, domainagg.CommitChapterInput{
		ChapterID: tree.Chapters[1][0].ID,
		Blocks:    content.Blocks{content.Text{MD: "x"}},
	})
	require.Error(t, err)
	require.False(t, apierr.IsRetryable(err))

	var stored domain.Chapter
	require.NoError(t, db.Where("id = ?", tree.Chapters[1][0].ID).First(&stored).Error)
	require.False(t, stored.IsGenerated)
}

func TestCommitOutlineFillsStubsAndReusesGenerated(t *testing.T) {
	agg, db, _ := newTestAggregate(t)
	ctx := context.Background()
	tree := testutil.SeedCourseTree(t, ctx, db, uuid.New(), 2)
	m := tree.Modules[0]

	_, err := agg.CommitOutline(ctx, domainagg.CommitOutlineInput{
		ModuleID: m.ID,
		Outlines: []domainagg.ChapterOutline{{Title: "Only one"}},
	})
	require.True(t, apierr.Is(err, apierr.KindValidation), "got %v", err)

	res, err := agg.CommitOutline(ctx, domainagg.CommitOutlineInput{
		ModuleID: m.ID,
		Outlines: []domainagg.ChapterOutline{
			{Title: " Goroutines ", Outline: "spawning"},
			{Title: "Channels", Outline: "sync"},
		},
	})
	require.NoError(t, err)
	require.False(t, res.Reused)
	require.Len(t, res.Chapters, 2)
	require.Equal(t, tree.Chapters[0][0].ID, res.Chapters[0].ID)
	require.Equal(t, "Goroutines", res.Chapters[0].Title)

	testutil.MarkGenerated(t, ctx, db, tree.Chapters[0][0])
	res, err = agg.CommitOutline(ctx, domainagg.CommitOutlineInput{
		ModuleID: m.ID,
		Outlines: []domainagg.ChapterOutline{{Title: "A"}, {Title: "B"}},
	})
	require.NoError(t, err)
	require.True(t, res.Reused)
	require.Equal(t, "Goroutines", res.Chapters[0].Title)
}

func TestCommitOutlineCreatesChaptersForEmptyModule(t *testing.T) {
	agg, db, _ := newTestAggregate(t)
	ctx := context.Background()
	tree := testutil.SeedCourseTree(t, ctx, db, uuid.New(), 0)
	m := tree.Modules[0]

	res, err := agg.CommitOutline(ctx, domainagg.CommitOutlineInput{
		ModuleID: m.ID,
		Outlines: []domainagg.ChapterOutline{{Title: "One"}, {Title: "Two"}, {Title: "Three"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Chapters, 3)

	got := reloadModule(t, db, m.ID)
	require.Len(t, got.Contents, 3)
	for i, ch := range res.Chapters {
		require.Equal(t, ch.ID, got.Contents[i])
		require.Equal(t, i, ch.Index)
	}

	cursor, err := agg.MoveChapterCursor(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	require.Equal(t, res.Chapters[0].ID, *cursor)
}

func TestResumeAndChapterCompletion(t *testing.T) {
	agg, db, _ := newTestAggregate(t)
	ctx := context.Background()
	tree := testutil.SeedCourseTree(t, ctx, db, uuid.New(), 1)
	ch := tree.Chapters[0][0]

	_, err := agg.MarkChapterCompleted(ctx, ch.ID, true)
	require.True(t, apierr.Is(err, apierr.KindPrecondition), "got %v", err)

	_, err = agg.Resume(ctx, domainagg.ResumeInput{CourseID: tree.Course.ID})
	require.True(t, apierr.Is(err, apierr.KindPrecondition), "resume of a healthy course: got %v", err)

	_, err = agg.MarkFailed(ctx, domainagg.MarkFailedInput{CourseID: tree.Course.ID, Stage: "chapter", Message: "refused"})
	require.NoError(t, err)
	changed, err := agg.MarkFailed(ctx, domainagg.MarkFailedInput{CourseID: tree.Course.ID, Stage: "quiz", Message: "again"})
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, "chapter", reloadCourse(t, db, tree.Course.ID).FailedStage)

	resumed, err := agg.Resume(ctx, domainagg.ResumeInput{CourseID: tree.Course.ID})
	require.NoError(t, err)
	require.Equal(t, domain.CourseStatusGenerating, resumed.Status)
	course := reloadCourse(t, db, tree.Course.ID)
	require.Empty(t, course.FailedStage)
	require.Nil(t, course.FailedAt)

	testutil.MarkGenerated(t, ctx, db, ch)
	got, err := agg.MarkChapterCompleted(ctx, ch.ID, true)
	require.NoError(t, err)
	require.True(t, got.IsCompleted)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("a", 1999) + "é tail"
	got := truncate(s, 2000)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, strings.Repeat("a", 1999), got)
	require.Equal(t, "short", truncate("short", 2000))
}

func TestMarkFailedStoresValidMessage(t *testing.T) {
	agg, db, _ := newTestAggregate(t)
	ctx := context.Background()
	tree := testutil.SeedCourseTree(t, ctx, db, uuid.New(), 1)

	msg := strings.Repeat("a", 1999) + "ü provider said no"
	changed, err := agg.MarkFailed(ctx, domainagg.MarkFailedInput{CourseID: tree.Course.ID, Stage: "chapter", Message: msg})
	require.NoError(t, err)
	require.True(t, changed)

	course := reloadCourse(t, db, tree.Course.ID)
	require.Equal(t, domain.CourseStatusFailed, course.Status)
	require.True(t, utf8.ValidString(course.ErrorMessage))
	require.Len(t, course.ErrorMessage, 1999)
}

// Run with TEST_POSTGRES_DSN to exercise overlapping transactions; on sqlite
// the writers are serialized by the driver.
func TestCommitChapterConcurrentSiblingsReachBarrier(t *testing.T) {
	db := testutil.ConcurrentDB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	agg := NewCourseAggregate(CourseAggregateDeps{
		Base:     BaseDeps{DB: db, Log: log},
		Courses:  set.Courses,
		Modules:  set.Modules,
		Chapters: set.Chapters,
		Quizzes:  set.Quizzes,
	})
	ctx := context.Background()
	tree := testutil.SeedCourseTree(t, ctx, db, uuid.New(), 4)
	testutil.DeleteCourseTree(t, db, tree)

	var ready atomic.Int32
	var g errgroup.Group
	for _, ch := range tree.Chapters[0] {
		ch := ch
		g.Go(func() error {
			res, err := agg.CommitChapter(ctx, domainagg.CommitChapterInput{
				ChapterID: ch.ID,
				Blocks:    content.Blocks{content.Text{MD: "body of " + ch.Title}},
			})
			if err != nil {
				return err
			}
			if res.ModuleReady {
				ready.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), ready.Load(), "exactly the last sibling to commit sees the module ready")

	var generated int64
	require.NoError(t, db.Model(&domain.Chapter{}).Where("module_id = ? AND is_generated = ?", tree.Modules[0].ID, true).Count(&generated).Error)
	require.Equal(t, int64(4), generated)
}
