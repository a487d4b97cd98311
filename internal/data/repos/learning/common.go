package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// updateWhere applies updates to the row with id when every where condition
// holds. The bool reports whether a row matched, so callers can tell a missing
// or already-transitioned row from a write.
func updateWhere(db *gorm.DB, model any, id uuid.UUID, where map[string]any, updates map[string]any) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]any{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := db.Model(model).Where("id = ?", id)
	for col, val := range where {
		q = q.Where(col+" = ?", val)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// forUpdate row-locks the selected rows on postgres. sqlite serializes
// writers on its own, so the clause is skipped there.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}
