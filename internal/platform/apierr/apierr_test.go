package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
		status    int
	}{
		{"validation", Validation("bad %s", "topic"), KindValidation, false, http.StatusBadRequest},
		{"provider retryable", Provider(errors.New("429"), true), KindProvider, true, http.StatusBadGateway},
		{"provider terminal", Provider(errors.New("401"), false), KindProvider, false, http.StatusBadGateway},
		{"not found", NotFound("course", "x"), KindNotFound, false, http.StatusNotFound},
		{"schema", SchemaMismatch(errors.New("missing field")), KindSchemaMismatch, true, http.StatusBadGateway},
		{"wrapped", fmt.Errorf("stage: %w", Provider(errors.New("503"), true)), KindProvider, true, http.StatusBadGateway},
		{"precondition", Precondition("quiz before chapters"), KindPrecondition, false, http.StatusConflict},
		{"unavailable", Unavailable(errors.New("deadlock")), KindUnavailable, true, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, KindInternal, true, http.StatusInternalServerError},
		{"plain", errors.New("boom"), KindInternal, false, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.kind, KindOf(tc.err))
			require.Equal(t, tc.retryable, IsRetryable(tc.err))
			require.Equal(t, tc.status, HTTPStatus(tc.err))
		})
	}
}

func TestTerminalClearsRetryable(t *testing.T) {
	err := SchemaMismatch(errors.New("still wrong"))
	term := Terminal(err)
	require.False(t, IsRetryable(term))
	require.True(t, IsRetryable(err))
	require.True(t, Is(term, KindSchemaMismatch))
}

func TestNewDerivesKind(t *testing.T) {
	require.Equal(t, KindNotFound, New(http.StatusNotFound, "x", nil).Kind)
	require.Equal(t, KindValidation, New(http.StatusBadRequest, "x", nil).Kind)
	require.Equal(t, "x", New(http.StatusBadRequest, "x", nil).Error())
}
