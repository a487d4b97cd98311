package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/data/aggregates"
	"github.com/yungbote/coursegen/internal/data/repos"
	"github.com/yungbote/coursegen/internal/jobs/pipeline/chapter_generate"
	"github.com/yungbote/coursegen/internal/jobs/pipeline/course_advance"
	"github.com/yungbote/coursegen/internal/jobs/pipeline/module_generate"
	"github.com/yungbote/coursegen/internal/jobs/pipeline/quiz_generate"
	"github.com/yungbote/coursegen/internal/jobs/retry"
	jobruntime "github.com/yungbote/coursegen/internal/jobs/runtime"
	"github.com/yungbote/coursegen/internal/jobs/worker"
	"github.com/yungbote/coursegen/internal/modules/coursegen"
	"github.com/yungbote/coursegen/internal/observability"
	"github.com/yungbote/coursegen/internal/platform/logger"
	"github.com/yungbote/coursegen/internal/services"
	"github.com/yungbote/coursegen/internal/temporalx/temporalworker"
)

type Services struct {
	// Notifications
	Realtime       services.RealtimeNotifier
	JobNotifier    services.JobNotifier
	CourseNotifier services.CourseNotifier

	// Jobs
	JobService services.JobService
	Registry   *jobruntime.Registry
	Executor   *jobruntime.Executor

	// Exactly one runner is set, following runner.mode.
	Worker         *worker.Worker
	TemporalWorker *temporalworker.Runner

	CourseGen *coursegen.Service
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repoSet repos.Set, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	push := services.NewRealtimeNotifier(log, clients.Bus)
	jobNotifier := services.NewJobNotifier(log, push, repoSet.Events)
	courseNotifier := services.NewCourseNotifier(push)

	jobService := services.NewJobService(
		db,
		log,
		repoSet.Jobs,
		jobNotifier,
		services.JobDefaults{
			MaxAttempts: cfg.Runner.DefaultMaxAttempts,
			Timeout:     cfg.Runner.DefaultMaxDuration,
		},
		clients.Temporal,
		cfg.Temporal.TaskQueue,
	)

	courseAgg := aggregates.NewCourseAggregate(aggregates.CourseAggregateDeps{
		Base: aggregates.BaseDeps{
			DB:    db,
			Log:   log,
			Hooks: aggregates.NewMetricsHooks(metrics),
		},
		Courses:  repoSet.Courses,
		Modules:  repoSet.Modules,
		Chapters: repoSet.Chapters,
		Quizzes:  repoSet.Quizzes,
	})

	courseGen, err := coursegen.New(coursegen.Deps{
		DB:        db,
		Log:       log,
		LLM:       clients.LLM,
		Vectors:   clients.Vectors,
		Courses:   repoSet.Courses,
		Modules:   repoSet.Modules,
		Chapters:  repoSet.Chapters,
		Quizzes:   repoSet.Quizzes,
		Aggregate: courseAgg,
		Jobs:      jobService,
		Notify:    courseNotifier,
	}, cfg.CourseGenConfig())
	if err != nil {
		return Services{}, fmt.Errorf("init course generation: %w", err)
	}

	// Job registry
	registry := jobruntime.NewRegistry()
	for _, p := range []jobruntime.Handler{
		module_generate.New(log, courseGen),
		chapter_generate.New(log, courseGen),
		quiz_generate.New(log, courseGen),
		course_advance.New(log, courseGen),
	} {
		if err := registry.Register(p); err != nil {
			return Services{}, err
		}
	}

	execOpts := jobruntime.ExecutorOptions{
		Backoff: retry.Policy{
			MinBackoff: cfg.Runner.RetryMinBackoff,
			MaxBackoff: cfg.Runner.RetryMaxBackoff,
		},
		DefaultTimeout: cfg.Runner.DefaultMaxDuration,
	}
	if cfg.Runner.Mode == RunnerModeTemporal {
		execOpts.Heartbeat = temporalworker.ActivityHeartbeat
	}
	executor := jobruntime.NewExecutor(db, log, repoSet.Jobs, registry, jobNotifier, execOpts)

	out := Services{
		Realtime:       push,
		JobNotifier:    jobNotifier,
		CourseNotifier: courseNotifier,
		JobService:     jobService,
		Registry:       registry,
		Executor:       executor,
		CourseGen:      courseGen,
	}

	switch cfg.Runner.Mode {
	case RunnerModeTemporal:
		runner, err := temporalworker.NewRunner(log, cfg.TemporalConfig(), clients.Temporal, repoSet.Jobs, executor, cfg.Runner.Concurrency)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal worker: %w", err)
		}
		out.TemporalWorker = runner
	default:
		out.Worker = worker.NewWorker(db, log, repoSet.Jobs, executor, cfg.WorkerConfig())
	}
	return out, nil
}
