package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	types "github.com/yungbote/coursegen/internal/domain"
)

const (
	defaultPollInterval  = 2 * time.Second
	maxSleep             = 15 * time.Minute
	continueTickLimit    = 500
	continueHistoryLimit = 10000
)

// Workflow drives one job row until it is terminal. The workflow id is the
// job id.
func Workflow(ctx workflow.Context) error {
	jobID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if jobID == "" {
		return fmt.Errorf("jobrun: missing job_id")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    45 * time.Second,
		// Attempts are counted on the job row; an activity error here is an
		// infrastructure failure, retried a few times before giving up.
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	})

	for ticks := 1; ; ticks++ {
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick, jobID).Get(ctx, &out); err != nil {
			return err
		}

		switch out.Status {
		case types.JobStatusSucceeded:
			return nil
		case types.JobStatusFailed:
			return temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("job failed (stage=%s): %s", out.Stage, out.Error), "JobFailed", nil)
		}

		if err := workflow.Sleep(ctx, nextWait(workflow.Now(ctx), out.WaitUntil)); err != nil {
			return err
		}
		if shouldContinueAsNew(ticks, workflow.GetInfo(ctx).GetCurrentHistoryLength()) {
			return workflow.NewContinueAsNewError(ctx, Workflow)
		}
	}
}

func nextWait(now time.Time, waitUntil *time.Time) time.Duration {
	if waitUntil == nil || waitUntil.IsZero() || !waitUntil.After(now) {
		return defaultPollInterval
	}
	d := waitUntil.Sub(now)
	if d > maxSleep {
		return maxSleep
	}
	return d
}

func shouldContinueAsNew(ticks, historyLen int) bool {
	return ticks >= continueTickLimit || historyLen >= continueHistoryLimit
}
