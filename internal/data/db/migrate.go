package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(domain.All()...); err != nil {
		return err
	}
	return EnsureIndexes(db)
}

// EnsureIndexes adds the composite indexes AutoMigrate cannot express from tags.
// Both statements are valid on postgres and sqlite.
func EnsureIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_job_run_runnable ON job_run(status, next_run_at, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_chapter_module_position ON chapter(module_id, position)`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}
