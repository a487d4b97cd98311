package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

func newTestClient(t *testing.T, h http.HandlerFunc, maxRetries int) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	temp := 0.2
	c, err := NewClient(logger.Nop(), Config{
		APIKey:      "test",
		BaseURL:     srv.URL,
		Model:       "test-model",
		MaxRetries:  maxRetries,
		Temperature: &temp,
	})
	require.NoError(t, err)
	return c
}

func writeOutput(w http.ResponseWriter, text string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"output": []any{map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []any{map[string]any{
				"type": "output_text",
				"text": text,
			}},
		}},
	})
}

func TestGenerateJSONParsesStructuredOutput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/responses", r.URL.Path)
		require.Equal(t, "Bearer test", r.Header.Get("Authorization"))
		var req responsesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "json_schema", req.Text.Format["type"])
		require.Equal(t, "outline", req.Text.Format["name"])
		writeOutput(w, `{"title":"Go"}`)
	}, 0)

	obj, err := c.GenerateJSON(context.Background(), "sys", "user", "outline", map[string]any{"type": "object"})
	require.NoError(t, err)
	require.Equal(t, "Go", obj["title"])
}

func TestGenerateJSONMalformedIsSchemaMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeOutput(w, `{"title":`)
	}, 0)

	_, err := c.GenerateJSON(context.Background(), "sys", "user", "outline", map[string]any{})
	require.Error(t, err)
	require.True(t, apierr.Is(err, apierr.KindSchemaMismatch))
}

func TestDoRetriesServerErrorsThenClassifies(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 2)

	_, err := c.GenerateJSON(context.Background(), "sys", "user", "outline", map[string]any{})
	require.Error(t, err)
	require.Equal(t, int32(3), calls.Load())
	require.True(t, apierr.Is(err, apierr.KindProvider))
	require.True(t, apierr.IsRetryable(err))
}

func TestBadRequestIsTerminal(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad schema"}}`))
	}, 3)

	_, err := c.GenerateJSON(context.Background(), "sys", "user", "outline", map[string]any{})
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
	require.False(t, apierr.IsRetryable(err))
}

func TestTemperatureFallback(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		var req responsesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if n == 1 {
			require.NotNil(t, req.Temperature)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`Unsupported parameter: 'temperature' is not supported with this model.`))
			return
		}
		require.Nil(t, req.Temperature)
		writeOutput(w, `{}`)
	}, 0)

	_, err := c.GenerateJSON(context.Background(), "sys", "user", "s", map[string]any{})
	require.NoError(t, err)
	_, err = c.GenerateJSON(context.Background(), "sys", "user", "s", map[string]any{})
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
}

func TestEmbedOrdersByIndex(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []any{
				map[string]any{"index": 1, "embedding": []float64{0, 1}},
				map[string]any{"index": 0, "embedding": []float64{1, 0}},
			},
		})
	}, 0)

	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("x", 9) + "日本"
	got := truncate(s, 10)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, strings.Repeat("x", 9)+"...", got)
	require.Equal(t, "ok", truncate("ok", 10))
}
