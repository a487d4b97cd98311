package app

import (
	"context"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	httpx "github.com/yungbote/coursegen/internal/http"
	httpH "github.com/yungbote/coursegen/internal/http/handlers"
	httpMW "github.com/yungbote/coursegen/internal/http/middleware"
	"github.com/yungbote/coursegen/internal/observability"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Course   *httpH.CourseHandler
	Realtime *httpH.RealtimeHandler
	Job      *httpH.JobHandler
}

func wireHandlers(log *logger.Logger, a *App) Handlers {
	log.Info("Wiring handlers...")
	checks := map[string]httpH.Pinger{
		"db": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.Clients.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Clients.Redis.Ping(ctx).Err()
		}
	}
	return Handlers{
		Health:   httpH.NewHealthHandler(checks),
		Course:   httpH.NewCourseHandler(log, a.Services.CourseGen),
		Realtime: httpH.NewRealtimeHandler(log, a.Hub, a.Clients.Bus, a.Services.CourseGen),
		Job:      httpH.NewJobHandler(log, a.Services.JobService, a.Repos.Events),
	}
}

func wireRouter(log *logger.Logger, cfg Config, h Handlers, redis goredis.UniversalClient, metrics *observability.Metrics) *gin.Engine {
	var limiter httpMW.Limiter
	if redis != nil {
		limiter = httpMW.NewRedisLimiter(redis, "coursegen:ratelimit")
	}
	return httpx.NewRouter(httpx.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		BodyLimit:       cfg.HTTP.BodyLimit,
		Limiter:         limiter,
		RateLimit:       cfg.HTTP.RateLimit,
		RateWindow:      cfg.HTTP.RateWindow,
		HealthHandler:   h.Health,
		CourseHandler:   h.Course,
		RealtimeHandler: h.Realtime,
		JobHandler:      h.Job,
	})
}
