package learning

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursegen/internal/domain/learning"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type ChapterRepo interface {
	Create(dbc dbctx.Context, chapters []*types.Chapter) ([]*types.Chapter, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error)
	ListByModule(dbc dbctx.Context, moduleID uuid.UUID) ([]*types.Chapter, error)
	ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Chapter, error)
	CountByModule(dbc dbctx.Context, moduleID uuid.UUID) (total int64, generated int64, err error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) (bool, error)
	UpdateFieldsWhere(dbc dbctx.Context, id uuid.UUID, where map[string]any, updates map[string]any) (bool, error)
}

type chapterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChapterRepo(db *gorm.DB, baseLog *logger.Logger) ChapterRepo {
	return &chapterRepo{db: db, log: baseLog.With("repo", "ChapterRepo")}
}

func (r *chapterRepo) Create(dbc dbctx.Context, chapters []*types.Chapter) ([]*types.Chapter, error) {
	if len(chapters) == 0 {
		return []*types.Chapter{}, nil
	}
	if err := dbc.Or(r.db).Create(&chapters).Error; err != nil {
		return nil, err
	}
	return chapters, nil
}

func (r *chapterRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var ch types.Chapter
	if err := dbc.Or(r.db).Where("id = ?", id).Limit(1).Find(&ch).Error; err != nil {
		return nil, err
	}
	if ch.ID == uuid.Nil {
		return nil, nil
	}
	return &ch, nil
}

func (r *chapterRepo) ListByModule(dbc dbctx.Context, moduleID uuid.UUID) ([]*types.Chapter, error) {
	var out []*types.Chapter
	if moduleID == uuid.Nil {
		return out, nil
	}
	err := dbc.Or(r.db).
		Where("module_id = ?", moduleID).
		Order("position ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chapterRepo) ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Chapter, error) {
	var out []*types.Chapter
	if courseID == uuid.Nil {
		return out, nil
	}
	err := dbc.Or(r.db).
		Where("course_id = ?", courseID).
		Order("module_id, position ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chapterRepo) CountByModule(dbc dbctx.Context, moduleID uuid.UUID) (int64, int64, error) {
	var total, generated int64
	db := dbc.Or(r.db)
	if err := db.Model(&types.Chapter{}).Where("module_id = ?", moduleID).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := db.Model(&types.Chapter{}).Where("module_id = ? AND is_generated = ?", moduleID, true).Count(&generated).Error; err != nil {
		return 0, 0, err
	}
	return total, generated, nil
}

func (r *chapterRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	return updateWhere(dbc.Or(r.db), &types.Chapter{}, id, nil, updates)
}

func (r *chapterRepo) UpdateFieldsWhere(dbc dbctx.Context, id uuid.UUID, where map[string]any, updates map[string]any) (bool, error) {
	return updateWhere(dbc.Or(r.db), &types.Chapter{}, id, where, updates)
}

// LockByID reads the row for update. Call it with dbc.Tx set.
func (r *chapterRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var ch types.Chapter
	if err := forUpdate(dbc.Or(r.db)).Where("id = ?", id).Limit(1).Find(&ch).Error; err != nil {
		return nil, err
	}
	if ch.ID == uuid.Nil {
		return nil, nil
	}
	return &ch, nil
}
