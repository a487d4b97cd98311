package coursegen

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/domain/content"
	"github.com/yungbote/coursegen/internal/platform/qdrant"
)

const summaryChars = 2000

func vectorNamespace(courseID uuid.UUID) string {
	return "course:" + courseID.String()
}

// findReferences returns earlier chapters of the course related to ch. The
// vector index is advisory, so failures yield no references.
func (s *Service) findReferences(ctx context.Context, course *domain.Course, ch *domain.Chapter) []domain.Reference {
	if s.deps.Vectors == nil {
		return nil
	}
	query := strings.TrimSpace(ch.Title + "\n" + ch.Outline)
	vecs, err := s.deps.LLM.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		s.log.Warn("reference embedding failed", "chapter_id", ch.ID, "error", err)
		return nil
	}
	matches, err := s.deps.Vectors.QueryMatches(ctx, vectorNamespace(course.ID), vecs[0], s.cfg.ReferenceTopK, []string{ch.ID.String()})
	if err != nil {
		s.log.Warn("reference query failed", "chapter_id", ch.ID, "error", err)
		return nil
	}
	out := make([]domain.Reference, 0, len(matches))
	for _, m := range matches {
		if m.ID == ch.ID.String() {
			continue
		}
		title, _ := m.Metadata["title"].(string)
		if title == "" {
			continue
		}
		out = append(out, domain.Reference{ChapterID: m.ID, Title: title, Score: m.Score})
	}
	return out
}

// indexChapter upserts the chapter summary under its own id, so a re-run
// overwrites the previous point.
func (s *Service) indexChapter(ctx context.Context, course *domain.Course, m *domain.Module, ch *domain.Chapter, blocks content.Blocks) {
	if s.deps.Vectors == nil || ch == nil {
		return
	}
	text := ch.Title + "\n" + content.PlainText(blocks, summaryChars)
	vecs, err := s.deps.LLM.Embed(ctx, []string{text})
	if err != nil || len(vecs) == 0 {
		s.log.Warn("chapter embedding failed", "chapter_id", ch.ID, "error", err)
		return
	}
	err = s.deps.Vectors.Upsert(ctx, vectorNamespace(course.ID), []qdrant.Vector{{
		ID:     ch.ID.String(),
		Values: vecs[0],
		Metadata: map[string]any{
			"title":      ch.Title,
			"module_id":  m.ID.String(),
			"chapter_id": ch.ID.String(),
		},
	}})
	if err != nil {
		s.log.Warn("chapter index upsert failed", "chapter_id", ch.ID, "error", err)
	}
}
