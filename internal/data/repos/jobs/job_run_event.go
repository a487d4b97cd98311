package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	jobtypes "github.com/yungbote/coursegen/internal/domain/jobs"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type JobRunEventRepo interface {
	Append(dbc dbctx.Context, ev *jobtypes.JobRunEvent) error
	ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*jobtypes.JobRunEvent, error)
	ListByCorrelation(dbc dbctx.Context, correlationID uuid.UUID, limit int) ([]*jobtypes.JobRunEvent, error)
}

type jobRunEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunEventRepo(db *gorm.DB, baseLog *logger.Logger) JobRunEventRepo {
	return &jobRunEventRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunEventRepo"),
	}
}

func (r *jobRunEventRepo) Append(dbc dbctx.Context, ev *jobtypes.JobRunEvent) error {
	if ev == nil {
		return nil
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return dbc.Or(r.db).Create(ev).Error
}

func (r *jobRunEventRepo) ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*jobtypes.JobRunEvent, error) {
	var out []*jobtypes.JobRunEvent
	if jobID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Or(r.db).Where("job_id = ?", jobID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListByCorrelation returns the newest limit events, oldest first.
func (r *jobRunEventRepo) ListByCorrelation(dbc dbctx.Context, correlationID uuid.UUID, limit int) ([]*jobtypes.JobRunEvent, error) {
	var out []*jobtypes.JobRunEvent
	if correlationID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 200
	}
	err := dbc.Or(r.db).
		Where("correlation_id = ?", correlationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
