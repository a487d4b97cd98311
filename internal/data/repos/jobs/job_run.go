package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	jobtypes "github.com/yungbote/coursegen/internal/domain/jobs"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type JobRunRepo interface {
	Create(dbc dbctx.Context, jobs []*jobtypes.JobRun) ([]*jobtypes.JobRun, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*jobtypes.JobRun, error)
	GetLatestByEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*jobtypes.JobRun, error)
	FindActiveByDedupeKey(dbc dbctx.Context, key string) (*jobtypes.JobRun, error)
	ListByCorrelation(dbc dbctx.Context, correlationID uuid.UUID) ([]*jobtypes.JobRun, error)
	ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*jobtypes.JobRun, error)
	MarkRunning(dbc dbctx.Context, id uuid.UUID) (bool, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

func (r *jobRunRepo) Create(dbc dbctx.Context, jobs []*jobtypes.JobRun) ([]*jobtypes.JobRun, error) {
	if len(jobs) == 0 {
		return []*jobtypes.JobRun{}, nil
	}
	if err := dbc.Or(r.db).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRunRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*jobtypes.JobRun, error) {
	var out []*jobtypes.JobRun
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Or(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRunRepo) GetLatestByEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*jobtypes.JobRun, error) {
	if entityID == uuid.Nil || entityType == "" || jobType == "" {
		return nil, nil
	}
	var job jobtypes.JobRun
	err := dbc.Or(r.db).
		Where("entity_type = ? AND entity_id = ? AND job_type = ?", entityType, entityID, jobType).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

// FindActiveByDedupeKey returns the oldest non-terminal job carrying key, if any.
func (r *jobRunRepo) FindActiveByDedupeKey(dbc dbctx.Context, key string) (*jobtypes.JobRun, error) {
	if key == "" {
		return nil, nil
	}
	var job jobtypes.JobRun
	err := dbc.Or(r.db).
		Where("dedupe_key = ? AND status IN ?", key, jobtypes.ActiveStatuses).
		Order("created_at ASC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRunRepo) ListByCorrelation(dbc dbctx.Context, correlationID uuid.UUID) ([]*jobtypes.JobRun, error) {
	var out []*jobtypes.JobRun
	if correlationID == uuid.Nil {
		return out, nil
	}
	err := dbc.Or(r.db).
		Where("correlation_id = ?", correlationID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimNextRunnable picks the oldest job that is queued, due for retry, or
// running with a stale heartbeat, and moves it to running. On postgres the
// candidate row is locked with SKIP LOCKED so concurrent workers never claim
// the same job; the status-guarded update covers drivers without row locks.
func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*jobtypes.JobRun, error) {
	now := time.Now().UTC()
	staleCutoff := now.Add(-staleRunning)
	var claimed *jobtypes.JobRun
	err := dbc.Or(r.db).Transaction(func(txx *gorm.DB) error {
		var job jobtypes.JobRun
		q := txx
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		qErr := q.Where(`
        (
          status = ?
          OR (status = ? AND (next_run_at IS NULL OR next_run_at <= ?))
          OR (status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?)
        )
      `, jobtypes.StatusQueued, jobtypes.StatusRetrying, now, jobtypes.StatusRunning, staleCutoff).
			Order("created_at ASC").
			First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		res := txx.Model(&jobtypes.JobRun{}).
			Where("id = ? AND status = ?", job.ID, job.Status).
			Updates(map[string]interface{}{
				"status":       jobtypes.StatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		job.Status = jobtypes.StatusRunning
		job.Attempts++
		job.LockedAt = &now
		job.HeartbeatAt = &now
		job.UpdatedAt = now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkRunning is the claim used when an external scheduler (Temporal) owns
// dispatch. Terminal jobs are left alone.
func (r *jobRunRepo) MarkRunning(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	now := time.Now().UTC()
	res := dbc.Or(r.db).
		Model(&jobtypes.JobRun{}).
		Where("id = ? AND status IN ?", id, jobtypes.ActiveStatuses).
		Updates(map[string]interface{}{
			"status":       jobtypes.StatusRunning,
			"attempts":     gorm.Expr("attempts + 1"),
			"locked_at":    now,
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.Or(r.db).
		Model(&jobtypes.JobRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := dbc.Or(r.db).Model(&jobtypes.JobRun{}).Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return dbc.Or(r.db).
		Model(&jobtypes.JobRun{}).
		Where("id = ? AND status = ?", id, jobtypes.StatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}
