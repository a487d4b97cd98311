package worker

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/data/repos"
	"github.com/yungbote/coursegen/internal/jobs/runtime"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	// StaleRunning is how long a running job may go without a heartbeat
	// before another worker reclaims it.
	StaleRunning time.Duration
}

// Worker polls job_run for runnable rows. It is the dispatcher in db mode.
type Worker struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.JobRunRepo
	exec *runtime.Executor
	cfg  Config
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, exec *runtime.Executor, cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StaleRunning <= 0 {
		cfg.StaleRunning = 10 * time.Minute
	}
	return &Worker{
		db:   db,
		log:  baseLog.With("component", "JobWorker"),
		repo: repo,
		exec: exec,
		cfg:  cfg,
	}
}

// Run blocks until ctx is done and every loop has returned.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency, "poll_interval", w.cfg.PollInterval)
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.runLoop(ctx, workerID)
		}(i + 1)
	}
	wg.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain without waiting for the next tick while work is available.
			for ctx.Err() == nil {
				ran, err := w.RunOnce(ctx)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// RunOnce claims and executes at most one job. It reports whether a job ran.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.StaleRunning)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	out := w.exec.Execute(ctx, job)
	w.log.Debug("Job executed",
		"job_id", job.ID,
		"job_type", job.JobType,
		"status", out.Status,
		"attempt", job.Attempts,
	)
	return true, nil
}

// Drain runs jobs until none is runnable right now. Retrying jobs whose
// next_run_at is in the future are left for a later pass.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	n := 0
	for ctx.Err() == nil {
		ran, err := w.RunOnce(ctx)
		if err != nil {
			return n, err
		}
		if !ran {
			return n, nil
		}
		n++
	}
	return n, ctx.Err()
}
