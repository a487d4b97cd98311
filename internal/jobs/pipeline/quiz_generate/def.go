package quiz_generate

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/coursegen/internal/modules/coursegen"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type Generator interface {
	GenerateQuiz(ctx context.Context, in coursegen.GenerateQuizInput) (coursegen.GenerateQuizOutput, error)
	MarkFailed(ctx context.Context, courseID uuid.UUID, stage string, cause error) error
}

type Pipeline struct {
	log *logger.Logger
	gen Generator
}

func New(baseLog *logger.Logger, gen Generator) *Pipeline {
	return &Pipeline{
		log: baseLog.With("job", coursegen.JobQuizGenerate),
		gen: gen,
	}
}

func (p *Pipeline) Type() string { return coursegen.JobQuizGenerate }
