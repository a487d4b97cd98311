package learning

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursegen/internal/domain/learning"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type ModuleRepo interface {
	Create(dbc dbctx.Context, modules []*types.Module) ([]*types.Module, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Module, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Module, error)
	ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Module, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) (bool, error)
	UpdateFieldsWhere(dbc dbctx.Context, id uuid.UUID, where map[string]any, updates map[string]any) (bool, error)
}

type moduleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModuleRepo(db *gorm.DB, baseLog *logger.Logger) ModuleRepo {
	return &moduleRepo{db: db, log: baseLog.With("repo", "ModuleRepo")}
}

func (r *moduleRepo) Create(dbc dbctx.Context, modules []*types.Module) ([]*types.Module, error) {
	if len(modules) == 0 {
		return []*types.Module{}, nil
	}
	if err := dbc.Or(r.db).Create(&modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

func (r *moduleRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Module, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var m types.Module
	if err := dbc.Or(r.db).Where("id = ?", id).Limit(1).Find(&m).Error; err != nil {
		return nil, err
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return &m, nil
}

// ListByCourse returns modules in course order.
func (r *moduleRepo) ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Module, error) {
	var out []*types.Module
	if courseID == uuid.Nil {
		return out, nil
	}
	err := dbc.Or(r.db).
		Where("course_id = ?", courseID).
		Order("position ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *moduleRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	return updateWhere(dbc.Or(r.db), &types.Module{}, id, nil, updates)
}

func (r *moduleRepo) UpdateFieldsWhere(dbc dbctx.Context, id uuid.UUID, where map[string]any, updates map[string]any) (bool, error) {
	return updateWhere(dbc.Or(r.db), &types.Module{}, id, where, updates)
}

// LockByID reads the row for update. Call it with dbc.Tx set.
func (r *moduleRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Module, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var m types.Module
	if err := forUpdate(dbc.Or(r.db)).Where("id = ?", id).Limit(1).Find(&m).Error; err != nil {
		return nil, err
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return &m, nil
}
