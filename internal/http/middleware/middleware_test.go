package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/coursegen/internal/platform/ctxutil"
)

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	uid := uuid.New()

	r := gin.New()
	r.Use(RequireUser())
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, ctxutil.UserID(c.Request.Context()).String())
	})

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(headerUserID, "not-a-uuid")
	require.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(headerUserID, uid.String())
	rec = serve(r, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uid.String(), rec.Body.String())

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/me?user_id="+uid.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAttachTraceContextKeepsValidRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/x", func(c *gin.Context) {
		td := ctxutil.GetTraceData(c.Request.Context())
		c.String(http.StatusOK, td.RequestID)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "req-123")
	rec := serve(r, req)
	require.Equal(t, "req-123", rec.Body.String())
	require.Equal(t, "req-123", rec.Header().Get(headerRequestID))
	require.NotEmpty(t, rec.Header().Get(headerTraceID))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, strings.Repeat("a", maxRequestIDLen+1))
	rec = serve(r, req)
	_, err := uuid.Parse(rec.Body.String())
	require.NoError(t, err)
}

func TestRateLimitSlidingWindow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := gin.New()
	r.Use(RateLimit(nil, NewRedisLimiter(rdb, "test"), 2, time.Minute))
	r.POST("/api/courses", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusAccepted, serve(r, httptest.NewRequest(http.MethodPost, "/api/courses", nil)).Code)
	}
	rec := serve(r, httptest.NewRequest(http.MethodPost, "/api/courses", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	r := gin.New()
	r.Use(RateLimit(nil, NewRedisLimiter(rdb, ""), 1, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	}
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BodyLimit(8))
	r.POST("/x", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			if IsBodyTooLarge(err) {
				RespondBodyTooLarge(c, err)
				return
			}
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	rec := serve(r, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"topic":"a long topic"}`)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	rec = serve(r, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusOK, rec.Code)
}
