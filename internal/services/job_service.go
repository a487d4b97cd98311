package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/data/repos"
	types "github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

// JobWorkflowName is the Temporal workflow that drives one job row.
const JobWorkflowName = "job_run"

type EnqueueOptions struct {
	MaxAttempts   int
	Timeout       time.Duration
	ParentJobID   *uuid.UUID
	CorrelationID *uuid.UUID
	// DedupeKey collapses enqueues while a job with the same key is still active.
	DedupeKey string
}

type JobDefaults struct {
	MaxAttempts int
	Timeout     time.Duration
}

type JobService interface {
	// Enqueue inserts a queued job. When a job with opts.DedupeKey is still
	// active it is returned instead and created is false. Inside a transaction
	// the job is not dispatched; callers Dispatch after commit.
	Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any, opts EnqueueOptions) (job *types.JobRun, created bool, err error)
	Dispatch(dbc dbctx.Context, jobID uuid.UUID) error
	GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	ListByCorrelation(dbc dbctx.Context, correlationID uuid.UUID) ([]*types.JobRun, error)
}

type jobService struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	notify   JobNotifier
	defaults JobDefaults

	temporal          temporalsdkclient.Client
	temporalTaskQueue string
}

// NewJobService builds the job substrate. With a nil Temporal client jobs are
// picked up by the polling worker and Dispatch only announces them.
func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.JobRunRepo,
	notify JobNotifier,
	defaults JobDefaults,
	tc temporalsdkclient.Client,
	taskQueue string,
) JobService {
	if defaults.MaxAttempts <= 0 {
		defaults.MaxAttempts = 5
	}
	return &jobService{
		db:                db,
		log:               baseLog.With("service", "JobService"),
		repo:              repo,
		notify:            notify,
		defaults:          defaults,
		temporal:          tc,
		temporalTaskQueue: strings.TrimSpace(taskQueue),
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any, opts EnqueueOptions) (*types.JobRun, bool, error) {
	if ownerUserID == uuid.Nil {
		return nil, false, apierr.Validation("missing owner_user_id")
	}
	if jobType == "" {
		return nil, false, apierr.Validation("missing job_type")
	}
	repoCtx := dbctx.Context{Ctx: dbc.Ctx, Tx: dbc.Or(s.db)}

	if key := strings.TrimSpace(opts.DedupeKey); key != "" {
		existing, err := s.repo.FindActiveByDedupeKey(repoCtx, key)
		if err != nil {
			return nil, false, fmt.Errorf("dedupe lookup: %w", err)
		}
		if existing != nil {
			s.log.Debug("Job enqueue collapsed", "dedupe_key", key, "job_id", existing.ID)
			return existing, false, nil
		}
	}

	if payload == nil {
		payload = map[string]any{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, false, apierr.Validation("payload not serializable: %v", err)
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.defaults.MaxAttempts
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.defaults.Timeout
	}

	now := time.Now().UTC()
	job := &types.JobRun{
		ID:             uuid.New(),
		OwnerUserID:    ownerUserID,
		JobType:        jobType,
		EntityType:     entityType,
		EntityID:       entityID,
		ParentJobID:    opts.ParentJobID,
		CorrelationID:  opts.CorrelationID,
		DedupeKey:      strings.TrimSpace(opts.DedupeKey),
		Status:         types.JobStatusQueued,
		Stage:          "queued",
		Message:        "Queued",
		MaxAttempts:    maxAttempts,
		TimeoutSeconds: int(timeout / time.Second),
		Payload:        datatypes.JSON(b),
		Result:         datatypes.JSON([]byte(`{}`)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.repo.Create(repoCtx, []*types.JobRun{job}); err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	if s.notify != nil {
		s.notify.JobCreated(repoCtx, job)
	}

	// gorm.DB values are cloned freely, so pointer comparison cannot tell a
	// transaction apart; inspect the connection pool instead.
	if isDBTransaction(dbc.Tx) {
		s.log.Debug("Job enqueued inside transaction; awaiting dispatch after commit", "job_id", job.ID, "job_type", job.JobType)
		return job, true, nil
	}
	if err := s.Dispatch(dbctx.Context{Ctx: dbc.Ctx}, job.ID); err != nil {
		return job, true, err
	}
	return job, true, nil
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}

func (s *jobService) Dispatch(dbc dbctx.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return apierr.Validation("missing job id")
	}
	if s.temporal == nil {
		return nil
	}
	ctx := dbc.Context()

	err := s.startTemporalJobWorkflow(ctx, jobID)
	if err == nil {
		return nil
	}
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		return nil
	}

	// The row stays queued; the stale-job sweep in the worker or a later
	// Dispatch picks it up again.
	s.log.Warn("Temporal dispatch failed", "job_id", jobID, "error", err)
	return apierr.Provider(fmt.Errorf("start temporal workflow: %w", err), true)
}

func (s *jobService) GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, apierr.Validation("missing job id")
	}
	rows, err := s.repo.GetByIDs(dbctx.Context{Ctx: dbc.Ctx, Tx: dbc.Or(s.db)}, []uuid.UUID{jobID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0] == nil {
		return nil, apierr.NotFound("job", jobID)
	}
	return rows[0], nil
}

func (s *jobService) ListByCorrelation(dbc dbctx.Context, correlationID uuid.UUID) ([]*types.JobRun, error) {
	return s.repo.ListByCorrelation(dbctx.Context{Ctx: dbc.Ctx, Tx: dbc.Or(s.db)}, correlationID)
}

func (s *jobService) startTemporalJobWorkflow(ctx context.Context, jobID uuid.UUID) error {
	if s.temporal == nil || jobID == uuid.Nil {
		return fmt.Errorf("temporal not configured")
	}
	tq := s.temporalTaskQueue
	if tq == "" {
		tq = "coursegen"
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    jobID.String(),
		TaskQueue:             tq,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 1.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}
	_, err := s.temporal.ExecuteWorkflow(ctx, opts, JobWorkflowName)
	return err
}
