package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/coursegen/internal/http/handlers"
	httpMW "github.com/yungbote/coursegen/internal/http/middleware"
	"github.com/yungbote/coursegen/internal/observability"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
	BodyLimit   int64

	// Limiter throttles course creation; nil disables it.
	Limiter    httpMW.Limiter
	RateLimit  int
	RateWindow time.Duration

	HealthHandler   *httpH.HealthHandler
	CourseHandler   *httpH.CourseHandler
	RealtimeHandler *httpH.RealtimeHandler
	JobHandler      *httpH.JobHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("coursegen"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")
	api.Use(httpMW.RequireUser())
	if cfg.BodyLimit > 0 {
		api.Use(httpMW.BodyLimit(cfg.BodyLimit))
	}
	{
		// Course
		if cfg.CourseHandler != nil {
			api.POST("/courses", httpMW.RateLimit(cfg.Log, cfg.Limiter, cfg.RateLimit, cfg.RateWindow), cfg.CourseHandler.CreateCourse)
			api.GET("/courses", cfg.CourseHandler.ListCourses)
			api.GET("/courses/:id", cfg.CourseHandler.GetCourse)
			api.GET("/courses/:id/progress", cfg.CourseHandler.GetProgress)
			api.GET("/courses/:id/jobs", cfg.CourseHandler.GetGenerationStatus)
			api.POST("/courses/:id/resume", cfg.CourseHandler.ResumeCourse)
			api.POST("/chapters/:id/complete", cfg.CourseHandler.CompleteChapter)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/courses/:id/events", cfg.RealtimeHandler.CourseEvents)
		}

		// Job
		if cfg.JobHandler != nil {
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
			api.GET("/jobs/:id/events", cfg.JobHandler.ListEvents)
		}
	}

	return r
}
