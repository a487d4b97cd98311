package aggregates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/platform/apierr"
)

// InvariantError reports a write that would break a course-tree invariant.
// It is a programming or data error, never retried.
func InvariantError(format string, args ...any) error {
	return apierr.Internal(fmt.Errorf("invariant violation: "+format, args...))
}

// MapError classifies infrastructure failures into apierr kinds. Errors that
// already carry a kind pass through with the operation name attached.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *apierr.Error
	if errors.As(err, &classified) {
		return err
	}
	wrapped := fmt.Errorf("%s: %w", op, err)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apierr.New(404, "not_found", wrapped)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apierr.Unavailable(wrapped)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505": // unique_violation
			return apierr.Conflict("%v", wrapped)
		case "23503": // foreign_key_violation
			return apierr.Precondition("%v", wrapped)
		case "40001", "40P01", "55P03": // serialization, deadlock, lock_not_available
			return apierr.Unavailable(wrapped)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"):
		return apierr.Conflict("%v", wrapped)
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "timeout"):
		return apierr.Unavailable(wrapped)
	default:
		return apierr.Internal(wrapped)
	}
}
