package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/coursegen/internal/data/repos"
	types "github.com/yungbote/coursegen/internal/domain"
	jobtypes "github.com/yungbote/coursegen/internal/domain/jobs"
	"github.com/yungbote/coursegen/internal/observability"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
	"github.com/yungbote/coursegen/internal/platform/logger"
	"github.com/yungbote/coursegen/internal/realtime"
	"github.com/yungbote/coursegen/internal/realtime/bus"
)

// RealtimeNotifier pushes one event to the subscribers of a channel.
// Delivery is best-effort: failures are logged and never returned.
type RealtimeNotifier interface {
	PushToClient(ctx context.Context, channel string, event realtime.SSEEvent, payload any)
}

type busNotifier struct {
	log *logger.Logger
	bus bus.Bus
}

func NewRealtimeNotifier(baseLog *logger.Logger, b bus.Bus) RealtimeNotifier {
	return &busNotifier{log: baseLog.With("service", "RealtimeNotifier"), bus: b}
}

func (n *busNotifier) PushToClient(ctx context.Context, channel string, event realtime.SSEEvent, payload any) {
	if n == nil || n.bus == nil || channel == "" {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	msg := realtime.SSEMessage{Channel: channel, Event: event, Data: payload}
	if err := n.bus.Publish(ctx, msg); err != nil {
		n.log.Warn("realtime push failed", "channel", channel, "event", event, "error", err)
		observability.Current().IncPushFailure(string(event))
	}
}

// =========================
// Job notifier
// =========================

type JobNotifier interface {
	JobCreated(dbc dbctx.Context, job *types.JobRun)
	JobProgress(dbc dbctx.Context, job *types.JobRun, stage string, progress int, message string)
	JobRetrying(dbc dbctx.Context, job *types.JobRun, errorMessage string, nextRunAt time.Time)
	JobFailed(dbc dbctx.Context, job *types.JobRun, stage string, errorMessage string)
	JobDone(dbc dbctx.Context, job *types.JobRun)
}

type jobNotifier struct {
	log    *logger.Logger
	push   RealtimeNotifier
	events repos.JobRunEventRepo
}

// NewJobNotifier records every transition in the job timeline and pushes it on
// the job's generation channel. Either sink may be nil. The timeline row is
// written through dbc.Tx when set so it commits with the transition.
func NewJobNotifier(baseLog *logger.Logger, push RealtimeNotifier, events repos.JobRunEventRepo) JobNotifier {
	return &jobNotifier{
		log:    baseLog.With("service", "JobNotifier"),
		push:   push,
		events: events,
	}
}

func (n *jobNotifier) JobCreated(dbc dbctx.Context, job *types.JobRun) {
	n.emit(dbc, job, jobtypes.EventCreated, realtime.SSEEventJobCreated, job.Stage, 0, "", map[string]any{"job": job})
}

func (n *jobNotifier) JobProgress(dbc dbctx.Context, job *types.JobRun, stage string, progress int, message string) {
	n.emit(dbc, job, jobtypes.EventProgress, realtime.SSEEventJobProgress, stage, progress, message, map[string]any{
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *jobNotifier) JobRetrying(dbc dbctx.Context, job *types.JobRun, errorMessage string, nextRunAt time.Time) {
	n.emit(dbc, job, jobtypes.EventRetrying, realtime.SSEEventJobRetrying, job.Stage, job.Progress, errorMessage, map[string]any{
		"error":       errorMessage,
		"attempts":    job.Attempts,
		"next_run_at": nextRunAt,
	})
}

func (n *jobNotifier) JobFailed(dbc dbctx.Context, job *types.JobRun, stage string, errorMessage string) {
	n.emit(dbc, job, jobtypes.EventFailed, realtime.SSEEventJobFailed, stage, job.Progress, errorMessage, map[string]any{
		"stage": stage,
		"error": errorMessage,
	})
}

func (n *jobNotifier) JobDone(dbc dbctx.Context, job *types.JobRun) {
	n.emit(dbc, job, jobtypes.EventSucceeded, realtime.SSEEventJobDone, job.Stage, 100, "", map[string]any{})
}

func (n *jobNotifier) emit(dbc dbctx.Context, job *types.JobRun, kind string, event realtime.SSEEvent, stage string, progress int, message string, data map[string]any) {
	if n == nil || job == nil {
		return
	}
	data["job_id"] = job.ID
	data["job_type"] = job.JobType
	if job.EntityID != nil {
		data["entity_id"] = *job.EntityID
	}

	if n.events != nil {
		raw, _ := json.Marshal(data)
		err := n.events.Append(dbc, &types.JobRunEvent{
			JobID:         job.ID,
			CorrelationID: job.CorrelationID,
			JobType:       job.JobType,
			Kind:          kind,
			Status:        job.Status,
			Stage:         stage,
			Progress:      progress,
			Message:       message,
			Data:          datatypes.JSON(raw),
		})
		if err != nil {
			n.log.Warn("job event append failed", "job_id", job.ID, "kind", kind, "error", err)
		}
	}
	if n.push != nil && job.CorrelationID != nil {
		n.push.PushToClient(dbc.Context(), job.CorrelationID.String(), event, data)
	}
}

// =========================
// Course notifier
// =========================

type CourseNotifier interface {
	CourseCreated(ctx context.Context, course *types.Course)
	CourseGenerationProgress(ctx context.Context, course *types.Course, stage string, progress int, message string)
	CourseModuleUnlocked(ctx context.Context, course *types.Course, module *types.Module)
	CourseGenerationFailed(ctx context.Context, course *types.Course, stage string, errorMessage string)
	CourseGenerationDone(ctx context.Context, course *types.Course)
}

type courseNotifier struct {
	push RealtimeNotifier
}

func NewCourseNotifier(push RealtimeNotifier) CourseNotifier {
	return &courseNotifier{push: push}
}

func (n *courseNotifier) CourseCreated(ctx context.Context, course *types.Course) {
	n.send(ctx, course, realtime.SSEEventCourseCreated, map[string]any{"course": course})
}

func (n *courseNotifier) CourseGenerationProgress(ctx context.Context, course *types.Course, stage string, progress int, message string) {
	n.send(ctx, course, realtime.SSEEventCourseGenerationProgress, map[string]any{
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *courseNotifier) CourseModuleUnlocked(ctx context.Context, course *types.Course, module *types.Module) {
	if module == nil {
		return
	}
	n.send(ctx, course, realtime.SSEEventCourseModuleUnlocked, map[string]any{
		"module_id":    module.ID,
		"module_index": module.Index,
		"title":        module.Title,
	})
}

func (n *courseNotifier) CourseGenerationFailed(ctx context.Context, course *types.Course, stage string, errorMessage string) {
	n.send(ctx, course, realtime.SSEEventCourseGenerationFailed, map[string]any{
		"stage": stage,
		"error": errorMessage,
	})
}

func (n *courseNotifier) CourseGenerationDone(ctx context.Context, course *types.Course) {
	n.send(ctx, course, realtime.SSEEventCourseGenerationDone, map[string]any{})
}

func (n *courseNotifier) send(ctx context.Context, course *types.Course, event realtime.SSEEvent, data map[string]any) {
	if n == nil || n.push == nil || course == nil || course.GenerationID == uuid.Nil {
		return
	}
	data["course_id"] = course.ID
	n.push.PushToClient(ctx, course.GenerationID.String(), event, data)
}
