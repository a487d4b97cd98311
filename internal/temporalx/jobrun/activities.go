package jobrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/coursegen/internal/data/repos"
	types "github.com/yungbote/coursegen/internal/domain"
	jobrt "github.com/yungbote/coursegen/internal/jobs/runtime"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

// Activities executes job rows on behalf of the job_run workflow. Temporal
// only schedules; status, attempts and backoff live on the row.
type Activities struct {
	Log      *logger.Logger
	Jobs     repos.JobRunRepo
	Executor *jobrt.Executor
	// Now is swapped in tests.
	Now func() time.Time
}

func (a *Activities) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

// Tick runs the job once when it is due. A retrying job that is not due yet
// is reported back with WaitUntil so the workflow can sleep on a timer.
func (a *Activities) Tick(ctx context.Context, jobID string) (TickResult, error) {
	res := TickResult{JobID: strings.TrimSpace(jobID)}
	if a == nil || a.Jobs == nil || a.Executor == nil {
		return res, fmt.Errorf("jobrun: activity not configured")
	}
	id, err := uuid.Parse(res.JobID)
	if err != nil || id == uuid.Nil {
		return res, fmt.Errorf("jobrun: invalid job_id %q", jobID)
	}

	job, err := a.loadJob(ctx, id)
	if err != nil {
		return res, err
	}
	if job == nil {
		return res, fmt.Errorf("jobrun: job %s not found", id)
	}
	if job.Terminal() {
		return fill(res, job), nil
	}
	if job.Status == types.JobStatusRetrying && job.NextRunAt != nil && job.NextRunAt.After(a.now()) {
		return fill(res, job), nil
	}

	ok, err := a.Jobs.MarkRunning(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return res, err
	}
	if !ok {
		// Finished between the read and the claim.
		job, err = a.loadJob(ctx, id)
		if err != nil || job == nil {
			return res, err
		}
		return fill(res, job), nil
	}
	job.Status = types.JobStatusRunning
	job.Attempts++

	out := a.Executor.Execute(ctx, job)
	if a.Log != nil {
		a.Log.Debug("Job tick finished", "job_id", id, "job_type", job.JobType, "status", out.Status, "attempt", job.Attempts)
	}
	return fill(res, job), nil
}

func fill(res TickResult, job *types.JobRun) TickResult {
	res.Status = job.Status
	res.Stage = job.Stage
	res.Attempts = job.Attempts
	res.Error = job.Error
	if job.Status == types.JobStatusRetrying {
		res.WaitUntil = job.NextRunAt
	}
	return res
}

func (a *Activities) loadJob(ctx context.Context, id uuid.UUID) (*types.JobRun, error) {
	rows, err := a.Jobs.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0] == nil {
		return nil, nil
	}
	return rows[0], nil
}
