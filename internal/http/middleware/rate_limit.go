package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/coursegen/internal/http/response"
	"github.com/yungbote/coursegen/internal/platform/ctxutil"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

// Limiter decides whether one more hit on key fits in the window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type redisLimiter struct {
	rdb    goredis.UniversalClient
	prefix string
}

// NewRedisLimiter is a sliding-window limiter over one sorted set per key.
func NewRedisLimiter(rdb goredis.UniversalClient, prefix string) Limiter {
	if prefix == "" {
		prefix = "coursegen:rate_limit"
	}
	return &redisLimiter{rdb: rdb, prefix: prefix}
}

func (l *redisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	k := l.prefix + ":" + key
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()[:8]

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(now.Add(-window).UnixNano(), 10))
	pipe.ZAdd(ctx, k, goredis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, k)
	pipe.PExpire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return card.Val() <= int64(limit), nil
}

// RateLimit allows limit requests per window for each caller and route.
// A nil limiter or a limiter error lets the request through.
func RateLimit(log *logger.Logger, l Limiter, limit int, window time.Duration) gin.HandlerFunc {
	if l == nil || limit <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		caller := c.ClientIP()
		if uid := ctxutil.UserID(c.Request.Context()); uid != uuid.Nil {
			caller = uid.String()
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := fmt.Sprintf("%s:%s:%s", caller, c.Request.Method, route)
		ok, err := l.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			if log != nil {
				log.Warn("rate limit check failed; allowing request", "error", err)
			}
			c.Next()
			return
		}
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.RespondError(c, http.StatusTooManyRequests, "rate_limited", fmt.Errorf("too many requests, retry later"))
			c.Abort()
			return
		}
		c.Next()
	}
}
