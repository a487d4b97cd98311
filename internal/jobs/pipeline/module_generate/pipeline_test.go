package module_generate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/coursegen/internal/data/repos"
	"github.com/yungbote/coursegen/internal/data/repos/testutil"
	types "github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/jobs/retry"
	jobrt "github.com/yungbote/coursegen/internal/jobs/runtime"
	"github.com/yungbote/coursegen/internal/modules/coursegen"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
)

type fakeGen struct {
	err      error
	in       coursegen.GenerateModuleInput
	failed   []string
	courseID uuid.UUID
}

func (f *fakeGen) GenerateModule(ctx context.Context, in coursegen.GenerateModuleInput) (coursegen.GenerateModuleOutput, error) {
	f.in = in
	in.Trigger.Progress(coursegen.StageModule, 50, "half")
	if f.err != nil {
		return coursegen.GenerateModuleOutput{}, f.err
	}
	return coursegen.GenerateModuleOutput{Chapters: 3, Enqueued: 3}, nil
}

func (f *fakeGen) MarkFailed(ctx context.Context, courseID uuid.UUID, stage string, cause error) error {
	f.courseID = courseID
	f.failed = append(f.failed, stage)
	return nil
}

func run(t *testing.T, gen *fakeGen, payload string, attempts int) *types.JobRun {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	reg := jobrt.NewRegistry()
	require.NoError(t, reg.Register(New(log, gen)))
	exec := jobrt.NewExecutor(db, log, set.Jobs, reg, nil, jobrt.ExecutorOptions{
		Backoff: retry.Policy{Retryable: apierr.IsRetryable, MinBackoff: time.Second},
	})
	now := time.Now().UTC()
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		JobType:     coursegen.JobModuleGenerate,
		Status:      types.JobStatusRunning,
		Stage:       "queued",
		Attempts:    attempts,
		MaxAttempts: 3,
		Payload:     datatypes.JSON([]byte(payload)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ctx := context.Background()
	_, err := set.Jobs.Create(dbctx.Context{Ctx: ctx}, []*types.JobRun{job})
	require.NoError(t, err)
	exec.Execute(ctx, job)
	rows, err := set.Jobs.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{job.ID})
	require.NoError(t, err)
	return rows[0]
}

func payload(courseID, moduleID uuid.UUID) string {
	return `{"course_id":"` + courseID.String() + `","module_id":"` + moduleID.String() + `"}`
}

func TestRunSucceeds(t *testing.T) {
	gen := &fakeGen{}
	courseID, moduleID := uuid.New(), uuid.New()
	job := run(t, gen, payload(courseID, moduleID), 1)

	require.Equal(t, types.JobStatusSucceeded, job.Status)
	require.Equal(t, courseID, gen.in.CourseID)
	require.Equal(t, moduleID, gen.in.ModuleID)
	require.Equal(t, job.ID, *gen.in.Trigger.JobID)
	require.Contains(t, string(job.Result), `"enqueued":3`)
	require.Empty(t, gen.failed)
}

func TestRunRetriesProviderErrors(t *testing.T) {
	gen := &fakeGen{err: apierr.Provider(errors.New("429"), true)}
	job := run(t, gen, payload(uuid.New(), uuid.New()), 1)
	require.Equal(t, types.JobStatusRetrying, job.Status)
	require.NotNil(t, job.NextRunAt)
	require.Empty(t, gen.failed)
}

func TestTerminalFailureFailsCourse(t *testing.T) {
	courseID := uuid.New()
	gen := &fakeGen{err: apierr.Provider(errors.New("429"), true)}
	job := run(t, gen, payload(courseID, uuid.New()), 3)
	require.Equal(t, types.JobStatusFailed, job.Status)
	require.Equal(t, []string{coursegen.StageModule}, gen.failed)
	require.Equal(t, courseID, gen.courseID)

	gen = &fakeGen{err: apierr.Precondition("module locked")}
	job = run(t, gen, payload(courseID, uuid.New()), 1)
	require.Equal(t, types.JobStatusFailed, job.Status)
	require.Equal(t, []string{coursegen.StageModule}, gen.failed)
}

func TestMissingPayloadFailsWithoutCourse(t *testing.T) {
	gen := &fakeGen{}
	job := run(t, gen, `{"course_id":"nope"}`, 1)
	require.Equal(t, types.JobStatusFailed, job.Status)
	require.Equal(t, "validate", job.Stage)
	require.Empty(t, gen.failed)
}
