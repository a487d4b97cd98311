package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/coursegen/internal/http/response"
	"github.com/yungbote/coursegen/internal/modules/coursegen"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/ctxutil"
	"github.com/yungbote/coursegen/internal/platform/logger"
	"github.com/yungbote/coursegen/internal/realtime"
)

const replayLimit = 200

// Replayer returns the recent messages of a channel, oldest first.
type Replayer interface {
	Replay(ctx context.Context, channel string, limit int) ([]realtime.SSEMessage, error)
}

type CourseReader interface {
	CourseData(ctx context.Context, courseID uuid.UUID) (*coursegen.CourseData, error)
}

type RealtimeHandler struct {
	log     *logger.Logger
	hub     *realtime.SSEHub
	replay  Replayer
	courses CourseReader
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, replay Replayer, courses CourseReader) *RealtimeHandler {
	return &RealtimeHandler{
		log:     log.With("handler", "RealtimeHandler"),
		hub:     hub,
		replay:  replay,
		courses: courses,
	}
}

// GET /api/courses/:id/events
//
// Streams the course's generation channel. Buffered events are written first
// so a client that connects late still sees the whole run.
func (h *RealtimeHandler) CourseEvents(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_course_id", err)
		return
	}
	userID := ctxutil.UserID(c.Request.Context())
	d, err := h.courses.CourseData(c.Request.Context(), courseID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if !coursegen.CanView(d.Course, userID) {
		response.RespondAPIError(c, apierr.NotFound("course", courseID))
		return
	}
	channel := d.Course.GenerationID.String()

	client := h.hub.NewSSEClient(userID)
	h.hub.AddChannel(client, channel)
	defer h.hub.CloseClient(client)

	var backlog []realtime.SSEMessage
	if h.replay != nil {
		backlog, err = h.replay.Replay(c.Request.Context(), channel, replayLimit)
		if err != nil {
			h.log.Warn("SSE replay failed; streaming live only", "channel", channel, "error", err)
			backlog = nil
		}
	}
	h.log.Debug("SSE stream open", "course_id", courseID, "client_id", client.ID, "backlog", len(backlog))
	h.hub.Serve(c.Writer, c.Request, client, backlog)
}
