package course_advance

import (
	"context"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/coursegen/internal/domain/aggregates"
	"github.com/yungbote/coursegen/internal/modules/coursegen"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type Orchestrator interface {
	Advance(ctx context.Context, in coursegen.AdvanceInput) (domainagg.AdvanceResult, error)
	MarkFailed(ctx context.Context, courseID uuid.UUID, stage string, cause error) error
}

type Pipeline struct {
	log  *logger.Logger
	orch Orchestrator
}

func New(baseLog *logger.Logger, orch Orchestrator) *Pipeline {
	return &Pipeline{
		log:  baseLog.With("job", coursegen.JobCourseAdvance),
		orch: orch,
	}
}

func (p *Pipeline) Type() string { return coursegen.JobCourseAdvance }
