package coursegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/coursegen/internal/domain/content"
	"github.com/yungbote/coursegen/internal/modules/coursegen/prompts"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

const maxFixNote = 600

func llmTimer(log *logger.Logger, name string, fields ...any) func(error) {
	start := time.Now()
	return func(err error) {
		kv := append([]any{"llm_call", name, "elapsed_ms", time.Since(start).Milliseconds()}, fields...)
		if err != nil {
			log.Warn("llm call finished", append(kv, "error", err)...)
			return
		}
		log.Debug("llm call finished", kv...)
	}
}

// generateStructured renders the prompt, decodes the answer into T and runs
// check on it. A rejected answer is retried with the rejection reason in the
// prompt; once attempts are used up the schema error is terminal. Provider
// errors return immediately so the job substrate owns their retries.
func generateStructured[T any](ctx context.Context, s *Service, name prompts.Name, in prompts.Input, check func(*T) error, fields ...any) (*T, error) {
	attempts := s.cfg.SchemaAttempts
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		built, err := prompts.Build(name, in)
		if err != nil {
			return nil, apierr.Validation("%v", err)
		}
		done := llmTimer(s.log, string(name), append([]any{"attempt", attempt, "prompt_version", built.Version}, fields...)...)
		raw, err := s.deps.LLM.GenerateJSON(ctx, built.System, built.User, built.SchemaName, built.Schema)
		done(err)
		if err == nil {
			out, derr := decodeInto[T](raw)
			if derr == nil && check != nil {
				derr = check(out)
			}
			if derr == nil {
				return out, nil
			}
			err = asSchemaMismatch(derr)
		}
		if !apierr.Is(err, apierr.KindSchemaMismatch) {
			return nil, err
		}
		lastErr = err
		s.log.Warn("structured output rejected", append([]any{"prompt", name, "attempt", attempt, "error", err}, fields...)...)
		in.FixNote = rejectReason(err)
	}
	return nil, apierr.Terminal(lastErr)
}

func decodeInto[T any](raw map[string]any) (*T, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode model output: %w", err)
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return &out, nil
}

func asSchemaMismatch(err error) error {
	if apierr.Is(err, apierr.KindSchemaMismatch) {
		return err
	}
	return apierr.SchemaMismatch(err)
}

func rejectReason(err error) string {
	var e *apierr.Error
	msg := err.Error()
	if errors.As(err, &e) && e.Err != nil {
		msg = e.Err.Error()
	}
	return content.Clip(msg, maxFixNote)
}
