package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/http/response"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/ctxutil"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type JobReader interface {
	GetByID(dbc dbctx.Context, jobID uuid.UUID) (*domain.JobRun, error)
}

type JobEventReader interface {
	ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*domain.JobRunEvent, error)
}

type JobHandler struct {
	log    *logger.Logger
	jobs   JobReader
	events JobEventReader
}

func NewJobHandler(log *logger.Logger, jobs JobReader, events JobEventReader) *JobHandler {
	return &JobHandler{
		log:    log.With("handler", "JobHandler"),
		jobs:   jobs,
		events: events,
	}
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /api/jobs/:id/events
func (h *JobHandler) ListEvents(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}
	if h.events == nil {
		response.RespondOK(c, gin.H{"events": []*domain.JobRunEvent{}})
		return
	}
	events, err := h.events.ListByJob(dbctx.Context{Ctx: c.Request.Context()}, job.ID)
	if err != nil {
		h.log.Warn("ListEvents failed", "job_id", job.ID, "error", err)
		response.RespondAPIError(c, err)
		return
	}
	if events == nil {
		events = []*domain.JobRunEvent{}
	}
	response.RespondOK(c, gin.H{"events": events})
}

// ownedJob hides jobs of other users behind a 404.
func (h *JobHandler) ownedJob(c *gin.Context) (*domain.JobRun, bool) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return nil, false
	}
	job, err := h.jobs.GetByID(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		response.RespondAPIError(c, err)
		return nil, false
	}
	if job == nil || job.OwnerUserID != ctxutil.UserID(c.Request.Context()) {
		response.RespondAPIError(c, apierr.NotFound("job", jobID))
		return nil, false
	}
	return job, true
}
