package learning

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursegen/internal/domain/learning"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type CourseRepo interface {
	Create(dbc dbctx.Context, course *types.Course) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Course, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Course, error)
	ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID, limit int) ([]*types.Course, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) (bool, error)
	UpdateFieldsWhere(dbc dbctx.Context, id uuid.UUID, where map[string]any, updates map[string]any) (bool, error)
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]any) (bool, error)
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With("repo", "CourseRepo")}
}

func (r *courseRepo) Create(dbc dbctx.Context, course *types.Course) error {
	return dbc.Or(r.db).Create(course).Error
}

// GetByID returns (nil, nil) when the course does not exist.
func (r *courseRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Course, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.Course
	if err := dbc.Or(r.db).Where("id = ?", id).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *courseRepo) ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID, limit int) ([]*types.Course, error) {
	var out []*types.Course
	if ownerUserID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	err := dbc.Or(r.db).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *courseRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	return updateWhere(dbc.Or(r.db), &types.Course{}, id, nil, updates)
}

func (r *courseRepo) UpdateFieldsWhere(dbc dbctx.Context, id uuid.UUID, where map[string]any, updates map[string]any) (bool, error) {
	return updateWhere(dbc.Or(r.db), &types.Course{}, id, where, updates)
}

func (r *courseRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]any) (bool, error) {
	db := dbc.Or(r.db)
	if len(disallowedStatuses) > 0 {
		db = db.Where("status NOT IN ?", disallowedStatuses)
	}
	return updateWhere(db, &types.Course{}, id, nil, updates)
}

// LockByID reads the row for update. Call it with dbc.Tx set.
func (r *courseRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Course, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.Course
	if err := forUpdate(dbc.Or(r.db)).Where("id = ?", id).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}
