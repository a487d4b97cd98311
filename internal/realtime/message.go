package realtime

type SSEEvent string

const (
	SSEEventJobCreated  SSEEvent = "JobCreated"
	SSEEventJobProgress SSEEvent = "JobProgress"
	SSEEventJobRetrying SSEEvent = "JobRetrying"
	SSEEventJobFailed   SSEEvent = "JobFailed"
	SSEEventJobDone     SSEEvent = "JobDone"

	SSEEventCourseCreated            SSEEvent = "CourseCreated"
	SSEEventCourseGenerationProgress SSEEvent = "CourseGenerationProgress"
	SSEEventCourseModuleUnlocked     SSEEvent = "CourseModuleUnlocked"
	SSEEventCourseGenerationFailed   SSEEvent = "CourseGenerationFailed"
	SSEEventCourseGenerationDone     SSEEvent = "CourseGenerationDone"
)

// SSEMessage is one event on a channel. Channels are generation ids.
type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}
