package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation     Kind = "validation"
	KindProvider       Kind = "provider"
	KindNotFound       Kind = "not_found"
	KindSchemaMismatch Kind = "schema_mismatch"
	KindConflict       Kind = "conflict"
	KindPrecondition   Kind = "precondition_failed"
	KindUnavailable    Kind = "unavailable"
	KindInternal       Kind = "internal"
)

// Error is the single classified error type shared by the HTTP layer and the
// job executor. Retryable is only meaningful for provider and schema errors.
type Error struct {
	Kind      Kind
	Status    int
	Code      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Code != "" {
			return e.Code + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Kind: kindForStatus(status), Status: status, Code: code, Err: err}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Code: "validation_failed", Err: fmt.Errorf(format, args...)}
}

func Provider(err error, retryable bool) *Error {
	return &Error{Kind: KindProvider, Status: http.StatusBadGateway, Code: "provider_failed", Retryable: retryable, Err: err}
}

func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Code: entity + "_not_found", Err: fmt.Errorf("%s %v not found", entity, id)}
}

// SchemaMismatch marks structured output that failed decoding or validation.
// It starts retryable; the fix-pass loop clears Retryable once its budget is spent.
func SchemaMismatch(err error) *Error {
	return &Error{Kind: KindSchemaMismatch, Status: http.StatusBadGateway, Code: "schema_mismatch", Retryable: true, Err: err}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusConflict, Code: "conflict", Err: fmt.Errorf(format, args...)}
}

// Precondition reports that the target entity is not in a state the
// operation accepts. It is terminal for the stage that hit it.
func Precondition(format string, args ...any) *Error {
	return &Error{Kind: KindPrecondition, Status: http.StatusConflict, Code: "precondition_failed", Err: fmt.Errorf(format, args...)}
}

// Unavailable marks a transient infrastructure failure (lock contention,
// serialization failure, dropped connection).
func Unavailable(err error) *Error {
	return &Error{Kind: KindUnavailable, Status: http.StatusServiceUnavailable, Code: "unavailable", Retryable: true, Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Code: "internal", Err: err}
}

// Terminal returns a copy of err with Retryable cleared.
func Terminal(err error) error {
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		cp.Retryable = false
		return &cp
	}
	return err
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsRetryable reports whether the task substrate may run the stage again.
// Deadline overruns count as retryable for the stage that overran.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindInternal
	}
}
