package runtime

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/data/repos"
	types "github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/jobs/retry"
	"github.com/yungbote/coursegen/internal/observability"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
	"github.com/yungbote/coursegen/internal/platform/logger"
	"github.com/yungbote/coursegen/internal/services"
)

// Outcome is what one execution left on the job row.
type Outcome struct {
	Status    string
	Stage     string
	NextRunAt *time.Time
	Err       error
}

type ExecutorOptions struct {
	// Backoff shapes the delay before a retrying job is claimable again.
	// MaxAttempts comes from the job row.
	Backoff           retry.Policy
	DefaultTimeout    time.Duration
	HeartbeatInterval time.Duration
	// Heartbeat is called alongside the DB heartbeat, e.g. to keep a Temporal
	// activity alive.
	Heartbeat func(ctx context.Context)
}

// Executor runs one claimed job through its handler and classifies the result.
// The polling worker and the Temporal activity share it.
type Executor struct {
	log      *logger.Logger
	db       *gorm.DB
	repo     repos.JobRunRepo
	registry *Registry
	notify   services.JobNotifier
	opts     ExecutorOptions
	tracer   trace.Tracer
}

func NewExecutor(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *Registry, notify services.JobNotifier, opts ExecutorOptions) *Executor {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 15 * time.Second
	}
	if opts.Backoff.Retryable == nil {
		opts.Backoff.Retryable = apierr.IsRetryable
	}
	return &Executor{
		log:      baseLog.With("component", "JobExecutor"),
		db:       db,
		repo:     repo,
		registry: registry,
		notify:   notify,
		opts:     opts,
		tracer:   otel.Tracer("coursegen/jobs"),
	}
}

// Execute expects job to be in status running with Attempts already counting
// this run.
func (e *Executor) Execute(ctx context.Context, job *types.JobRun) Outcome {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "job."+job.JobType, trace.WithAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.type", job.JobType),
		attribute.Int("job.attempt", job.Attempts),
	))
	defer span.End()

	jc := NewContext(ctx, e.db, job, e.repo, e.notify)
	h, ok := e.registry.Get(job.JobType)
	if !ok {
		err := apierr.Validation("no handler registered for job_type=%s", job.JobType)
		e.log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", err)
		span.SetStatus(codes.Error, err.Error())
		return e.outcome(job, start, err)
	}

	timeout := job.Timeout()
	if timeout <= 0 {
		timeout = e.opts.DefaultTimeout
	}
	runCtx := ctx
	var cancel context.CancelFunc = func() {}
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()
	jc.Ctx = runCtx

	stopHB := e.startHeartbeat(runCtx, job)
	err := e.run(h, jc)
	stopHB()

	if err == nil {
		if !jc.Terminal() {
			jc.Succeed("done", nil)
		}
		return e.outcome(job, start, nil)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if jc.Terminal() {
		return e.outcome(job, start, err)
	}

	stage := job.Stage
	if stage == "" || stage == "queued" {
		stage = "run"
	}
	pol := e.opts.Backoff
	pol.MaxAttempts = job.MaxAttempts
	if pol.ShouldRetry(job.Attempts, err) {
		next := time.Now().UTC().Add(pol.Backoff(job.Attempts))
		e.log.Warn("Job failed; will retry",
			"job_id", job.ID,
			"job_type", job.JobType,
			"attempt", job.Attempts,
			"next_run_at", next,
			"error", err,
		)
		jc.Retry(stage, err, next)
		return e.outcome(job, start, err)
	}

	e.log.Error("Job failed terminally",
		"job_id", job.ID,
		"job_type", job.JobType,
		"attempt", job.Attempts,
		"kind", apierr.KindOf(err),
		"error", err,
	)
	jc.Fail(stage, err)
	if th, ok := h.(TerminalHandler); ok {
		jc.Ctx = context.WithoutCancel(ctx)
		e.runTerminal(th, jc, err)
	}
	return e.outcome(job, start, err)
}

func (e *Executor) run(h Handler, jc *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Job handler panic", "job_id", jc.Job.ID, "job_type", jc.Job.JobType, "panic", r)
			err = apierr.Internal(fmt.Errorf("panic: %v", r))
		}
	}()
	return h.Run(jc)
}

func (e *Executor) runTerminal(th TerminalHandler, jc *Context, cause error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Terminal failure hook panic", "job_id", jc.Job.ID, "panic", r)
		}
	}()
	th.OnTerminalFailure(jc, cause)
}

func (e *Executor) outcome(job *types.JobRun, start time.Time, err error) Outcome {
	observability.Current().ObserveJob(job.JobType, job.Status, time.Since(start))
	return Outcome{Status: job.Status, Stage: job.Stage, NextRunAt: job.NextRunAt, Err: err}
}

func (e *Executor) startHeartbeat(ctx context.Context, job *types.JobRun) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(e.opts.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if e.opts.Heartbeat != nil {
					e.opts.Heartbeat(ctx)
				}
				if err := e.repo.Heartbeat(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
					e.log.Debug("Job heartbeat failed", "job_id", job.ID, "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}
