package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/coursegen/internal/data/repos/testutil"
	jobtypes "github.com/yungbote/coursegen/internal/domain/jobs"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
)

func newJob(owner uuid.UUID, jobType, status string, created time.Time) *jobtypes.JobRun {
	entityID := uuid.New()
	return &jobtypes.JobRun{
		ID:          uuid.New(),
		OwnerUserID: owner,
		JobType:     jobType,
		EntityType:  "module",
		EntityID:    &entityID,
		Status:      status,
		Stage:       status,
		MaxAttempts: 3,
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestJobRunRepoClaimOrder(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	owner := uuid.New()

	queued := newJob(owner, "module_generate", jobtypes.StatusQueued, now.Add(-3*time.Hour))
	retryDue := newJob(owner, "chapter_generate", jobtypes.StatusRetrying, now.Add(-2*time.Hour))
	retryDue.NextRunAt = ptrTime(now.Add(-time.Minute))
	retryLater := newJob(owner, "chapter_generate", jobtypes.StatusRetrying, now.Add(-90*time.Minute))
	retryLater.NextRunAt = ptrTime(now.Add(time.Hour))
	stale := newJob(owner, "quiz_generate", jobtypes.StatusRunning, now.Add(-time.Hour))
	stale.HeartbeatAt = ptrTime(now.Add(-10 * time.Hour))
	done := newJob(owner, "course_advance", jobtypes.StatusSucceeded, now.Add(-4*time.Hour))

	created, err := repo.Create(dbc, []*jobtypes.JobRun{queued, retryDue, retryLater, stale, done})
	require.NoError(t, err)
	require.Len(t, created, 5)

	for _, want := range []uuid.UUID{queued.ID, retryDue.ID, stale.ID} {
		got, err := repo.ClaimNextRunnable(dbc, time.Hour)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, want, got.ID)
		require.Equal(t, jobtypes.StatusRunning, got.Status)
		require.Equal(t, 1, got.Attempts)
	}

	none, err := repo.ClaimNextRunnable(dbc, time.Hour)
	require.NoError(t, err)
	require.Nil(t, none)

	rows, err := repo.GetByIDs(dbc, []uuid.UUID{queued.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, jobtypes.StatusRunning, rows[0].Status)
	require.Equal(t, 1, rows[0].Attempts)
}

func TestJobRunRepoLookups(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	owner := uuid.New()
	corr := uuid.New()
	entityID := uuid.New()

	older := newJob(owner, "quiz_generate", jobtypes.StatusSucceeded, now.Add(-2*time.Hour))
	older.EntityID = &entityID
	older.CorrelationID = &corr
	older.DedupeKey = "quiz_generate:" + entityID.String()
	newer := newJob(owner, "quiz_generate", jobtypes.StatusQueued, now.Add(-time.Hour))
	newer.EntityID = &entityID
	newer.CorrelationID = &corr
	newer.DedupeKey = older.DedupeKey
	_, err := repo.Create(dbc, []*jobtypes.JobRun{older, newer})
	require.NoError(t, err)

	latest, err := repo.GetLatestByEntity(dbc, "module", entityID, "quiz_generate")
	require.NoError(t, err)
	require.Equal(t, newer.ID, latest.ID)

	active, err := repo.FindActiveByDedupeKey(dbc, older.DedupeKey)
	require.NoError(t, err)
	require.Equal(t, newer.ID, active.ID)

	missing, err := repo.FindActiveByDedupeKey(dbc, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	byCorr, err := repo.ListByCorrelation(dbc, corr)
	require.NoError(t, err)
	require.Len(t, byCorr, 2)
	require.Equal(t, older.ID, byCorr[0].ID)
}

func TestJobRunRepoGuardedUpdates(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	job := newJob(uuid.New(), "module_generate", jobtypes.StatusSucceeded, time.Now().UTC())
	_, err := repo.Create(dbc, []*jobtypes.JobRun{job})
	require.NoError(t, err)

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, job.ID, []string{jobtypes.StatusSucceeded}, map[string]interface{}{"stage": "x"})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.MarkRunning(dbc, job.ID)
	require.NoError(t, err)
	require.False(t, ok, "terminal jobs are never reclaimed")

	require.NoError(t, repo.UpdateFields(dbc, job.ID, map[string]interface{}{"status": jobtypes.StatusQueued}))
	ok, err = repo.MarkRunning(dbc, job.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.Heartbeat(dbc, job.ID))
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestJobRunEventRepoTimeline(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunEventRepo(db, testutil.Logger(t))

	corr := uuid.New()
	jobID := uuid.New()
	base := time.Now().UTC().Add(-time.Minute)
	for i, kind := range []string{jobtypes.EventCreated, jobtypes.EventProgress, jobtypes.EventSucceeded} {
		require.NoError(t, repo.Append(dbc, &jobtypes.JobRunEvent{
			JobID:         jobID,
			CorrelationID: &corr,
			JobType:       "chapter_generate",
			Kind:          kind,
			Status:        jobtypes.StatusRunning,
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := repo.ListByJob(dbc, jobID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, jobtypes.EventCreated, all[0].Kind)

	last2, err := repo.ListByCorrelation(dbc, corr, 2)
	require.NoError(t, err)
	require.Len(t, last2, 2)
	require.Equal(t, jobtypes.EventProgress, last2[0].Kind)
	require.Equal(t, jobtypes.EventSucceeded, last2[1].Kind)
}
