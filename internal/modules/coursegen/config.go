package coursegen

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/coursegen/internal/domain"
)

type ChapterStrategy string

const (
	// StrategyFanout enqueues one chapter_generate job per chapter.
	StrategyFanout ChapterStrategy = "fanout"
	// StrategyInline generates every chapter inside the module_generate job.
	StrategyInline ChapterStrategy = "inline"
)

const (
	maxPlanModules       = 12
	maxChaptersPerModule = 10
	maxQuestionsPerChap  = 3
)

type Config struct {
	ChapterStrategy   ChapterStrategy
	InlineParallelism int
	// SchemaAttempts bounds the fix-pass loop for one structured call.
	SchemaAttempts int
	// PlanAttempts bounds provider retries of the synchronous plan call.
	PlanAttempts  int
	PlanBackoff   time.Duration
	QuizSizing    map[string]int
	ReferenceTopK int

	JobMaxAttempts int
	JobTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ChapterStrategy:   StrategyFanout,
		InlineParallelism: 4,
		SchemaAttempts:    3,
		PlanAttempts:      3,
		PlanBackoff:       time.Second,
		QuizSizing: map[string]int{
			domain.DifficultyBeginner:     5,
			domain.DifficultyIntermediate: 7,
			domain.DifficultyAdvanced:     10,
		},
		ReferenceTopK:  3,
		JobMaxAttempts: 5,
		JobTimeout:     10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	c.ChapterStrategy = ChapterStrategy(strings.ToLower(strings.TrimSpace(string(c.ChapterStrategy))))
	if c.ChapterStrategy == "" {
		c.ChapterStrategy = def.ChapterStrategy
	}
	if c.InlineParallelism <= 0 {
		c.InlineParallelism = def.InlineParallelism
	}
	if c.SchemaAttempts <= 0 {
		c.SchemaAttempts = def.SchemaAttempts
	}
	if c.PlanAttempts <= 0 {
		c.PlanAttempts = def.PlanAttempts
	}
	if c.PlanBackoff <= 0 {
		c.PlanBackoff = def.PlanBackoff
	}
	if len(c.QuizSizing) == 0 {
		c.QuizSizing = def.QuizSizing
	}
	if c.ReferenceTopK <= 0 {
		c.ReferenceTopK = def.ReferenceTopK
	}
	if c.JobMaxAttempts <= 0 {
		c.JobMaxAttempts = def.JobMaxAttempts
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = def.JobTimeout
	}
	return c
}

func (c Config) Validate() error {
	switch ChapterStrategy(strings.ToLower(strings.TrimSpace(string(c.ChapterStrategy)))) {
	case "", StrategyFanout, StrategyInline:
	default:
		return fmt.Errorf("generation.chapter_strategy must be fanout or inline, got %q", c.ChapterStrategy)
	}
	for k, v := range c.QuizSizing {
		if v <= 0 {
			return fmt.Errorf("generation.quiz_sizing.%s must be positive", k)
		}
	}
	return nil
}

func (c Config) quizSize(difficulty string, chapters int) int {
	n := c.QuizSizing[difficulty]
	if n <= 0 {
		n = c.QuizSizing[domain.DifficultyIntermediate]
	}
	if n <= 0 {
		n = 7
	}
	if limit := chapters * maxQuestionsPerChap; limit > 0 && n > limit {
		n = limit
	}
	return n
}
