package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/http/middleware"
	"github.com/yungbote/coursegen/internal/http/response"
	"github.com/yungbote/coursegen/internal/modules/coursegen"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/ctxutil"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

// CourseService is the slice of the generation pipeline the API exposes.
type CourseService interface {
	CreateCourse(ctx context.Context, req coursegen.CreateCourseRequest) (*coursegen.CreateCourseResult, error)
	ListCourses(ctx context.Context, owner uuid.UUID, limit int) ([]*domain.Course, error)
	CourseData(ctx context.Context, courseID uuid.UUID) (*coursegen.CourseData, error)
	GenerationStatus(ctx context.Context, courseID uuid.UUID) ([]coursegen.StageStatus, error)
	Resume(ctx context.Context, courseID uuid.UUID) (*domain.Course, error)
	MarkChapterCompleted(ctx context.Context, ownerUserID, chapterID uuid.UUID, completed bool) (*domain.Chapter, error)
}

type CourseHandler struct {
	log     *logger.Logger
	courses CourseService
}

func NewCourseHandler(log *logger.Logger, courses CourseService) *CourseHandler {
	return &CourseHandler{
		log:     log.With("handler", "CourseHandler"),
		courses: courses,
	}
}

type createCourseBody struct {
	Topic       string `json:"topic"`
	Description string `json:"description"`
	Difficulty  string `json:"difficulty"`
	Language    string `json:"language"`
	IsPublic    bool   `json:"is_public"`
}

// POST /api/courses
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	var body createCourseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		if middleware.IsBodyTooLarge(err) {
			middleware.RespondBodyTooLarge(c, err)
			return
		}
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	res, err := h.courses.CreateCourse(c.Request.Context(), coursegen.CreateCourseRequest{
		OwnerUserID: ctxutil.UserID(c.Request.Context()),
		Topic:       body.Topic,
		Description: body.Description,
		Difficulty:  body.Difficulty,
		Language:    body.Language,
		IsPublic:    body.IsPublic,
	})
	if err != nil {
		h.log.Warn("CreateCourse failed", "error", err, "kind", apierr.KindOf(err))
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{
		"course":   res.Course,
		"modules":  res.Modules,
		"chapters": res.Chapters,
		"job":      res.Job,
	})
}

// GET /api/courses
func (h *CourseHandler) ListCourses(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	courses, err := h.courses.ListCourses(c.Request.Context(), ctxutil.UserID(c.Request.Context()), limit)
	if err != nil {
		h.log.Error("ListCourses failed", "error", err)
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"courses": courses})
}

// GET /api/courses/:id
func (h *CourseHandler) GetCourse(c *gin.Context) {
	d, ok := h.viewable(c)
	if !ok {
		return
	}
	response.RespondOK(c, d)
}

// GET /api/courses/:id/progress
func (h *CourseHandler) GetProgress(c *gin.Context) {
	d, ok := h.viewable(c)
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{"progress": coursegen.ComputeProgress(d.Course, d.Modules, d.Chapters)})
}

// GET /api/courses/:id/jobs
func (h *CourseHandler) GetGenerationStatus(c *gin.Context) {
	d, ok := h.owned(c)
	if !ok {
		return
	}
	stages, err := h.courses.GenerationStatus(c.Request.Context(), d.Course.ID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"course_id":     d.Course.ID,
		"generation_id": d.Course.GenerationID,
		"status":        d.Course.Status,
		"stages":        stages,
	})
}

// POST /api/courses/:id/resume
func (h *CourseHandler) ResumeCourse(c *gin.Context) {
	d, ok := h.owned(c)
	if !ok {
		return
	}
	course, err := h.courses.Resume(c.Request.Context(), d.Course.ID)
	if err != nil {
		h.log.Warn("ResumeCourse failed", "error", err, "course_id", d.Course.ID)
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"course": course})
}

type completeChapterBody struct {
	Completed *bool `json:"completed"`
}

// POST /api/chapters/:id/complete
func (h *CourseHandler) CompleteChapter(c *gin.Context) {
	chapterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_chapter_id", err)
		return
	}
	completed := true
	if c.Request.ContentLength > 0 {
		var body completeChapterBody
		if err := c.ShouldBindJSON(&body); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
		if body.Completed != nil {
			completed = *body.Completed
		}
	}
	ch, err := h.courses.MarkChapterCompleted(c.Request.Context(), ctxutil.UserID(c.Request.Context()), chapterID, completed)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"chapter": ch})
}

// viewable loads the course in the path and writes the error response when
// the caller may not read it. Private courses of other users read as missing.
func (h *CourseHandler) viewable(c *gin.Context) (*coursegen.CourseData, bool) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_course_id", err)
		return nil, false
	}
	d, err := h.courses.CourseData(c.Request.Context(), courseID)
	if err != nil {
		response.RespondAPIError(c, err)
		return nil, false
	}
	if !coursegen.CanView(d.Course, ctxutil.UserID(c.Request.Context())) {
		response.RespondAPIError(c, apierr.NotFound("course", courseID))
		return nil, false
	}
	return d, true
}

func (h *CourseHandler) owned(c *gin.Context) (*coursegen.CourseData, bool) {
	d, ok := h.viewable(c)
	if !ok {
		return nil, false
	}
	if d.Course.OwnerUserID != ctxutil.UserID(c.Request.Context()) {
		response.RespondError(c, http.StatusForbidden, "forbidden", apierr.Precondition("course %s is owned by another user", d.Course.ID))
		return nil, false
	}
	return d, true
}
