package chapter_generate

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/coursegen/internal/modules/coursegen"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type Generator interface {
	GenerateChapter(ctx context.Context, in coursegen.GenerateChapterInput) (coursegen.GenerateChapterOutput, error)
	MarkFailed(ctx context.Context, courseID uuid.UUID, stage string, cause error) error
}

type Pipeline struct {
	log *logger.Logger
	gen Generator
}

func New(baseLog *logger.Logger, gen Generator) *Pipeline {
	return &Pipeline{
		log: baseLog.With("job", coursegen.JobChapterGenerate),
		gen: gen,
	}
}

func (p *Pipeline) Type() string { return coursegen.JobChapterGenerate }
