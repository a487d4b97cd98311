package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/coursegen/internal/domain/learning"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type QuizRepo interface {
	Upsert(dbc dbctx.Context, quiz *types.Quiz) (*types.Quiz, error)
	GetByModule(dbc dbctx.Context, moduleID uuid.UUID) (*types.Quiz, error)
	ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Quiz, error)
}

type quizRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuizRepo(db *gorm.DB, baseLog *logger.Logger) QuizRepo {
	return &quizRepo{db: db, log: baseLog.With("repo", "QuizRepo")}
}

// Upsert writes the quiz for quiz.ModuleID, replacing the questions of an
// existing one. The stored row is returned, so its ID is stable across reruns.
func (r *quizRepo) Upsert(dbc dbctx.Context, quiz *types.Quiz) (*types.Quiz, error) {
	now := time.Now().UTC()
	if quiz.ID == uuid.Nil {
		quiz.ID = uuid.New()
	}
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = now
	}
	quiz.UpdatedAt = now
	db := dbc.Or(r.db)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "module_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"questions", "difficulty", "updated_at"}),
	}).Create(quiz).Error
	if err != nil {
		return nil, err
	}
	return r.GetByModule(dbc, quiz.ModuleID)
}

func (r *quizRepo) GetByModule(dbc dbctx.Context, moduleID uuid.UUID) (*types.Quiz, error) {
	if moduleID == uuid.Nil {
		return nil, nil
	}
	var q types.Quiz
	if err := dbc.Or(r.db).Where("module_id = ?", moduleID).Limit(1).Find(&q).Error; err != nil {
		return nil, err
	}
	if q.ID == uuid.Nil {
		return nil, nil
	}
	return &q, nil
}

func (r *quizRepo) ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Quiz, error) {
	var out []*types.Quiz
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Or(r.db).Where("course_id = ?", courseID).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
