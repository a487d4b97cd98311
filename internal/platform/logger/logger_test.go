package logger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerRedactsSecretsAndHashesOwners(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core)).With("service", "Test")

	log.Info("hello",
		"openai_api_key", "sk-live-123",
		"owner_user_id", "2f0c7a4e-9a43-4a3c-b1f6-6a4b1c0e0d11",
		"course_id", "c-1",
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "[REDACTED]", fields["openai_api_key"])
	require.True(t, strings.HasPrefix(fields["owner_user_id"].(string), "hash:"))
	require.Equal(t, "c-1", fields["course_id"])
	require.Equal(t, "Test", fields["service"])
}

func TestSanitizeKVsKeepsDanglingKey(t *testing.T) {
	out := sanitizeKVs([]interface{}{"a", 1, "dangling"})
	require.Equal(t, []interface{}{"a", 1, "dangling"}, out)
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"prod", "dev", "test"} {
		l, err := New(mode)
		require.NoError(t, err, mode)
		require.NotNil(t, l.SugaredLogger)
	}
}
