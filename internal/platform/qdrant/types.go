package qdrant

import "context"

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type VectorMatch struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// VectorStore is a namespaced similarity index. Ids are caller-chosen and
// stable, so re-upserting the same id overwrites.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	QueryMatches(ctx context.Context, namespace string, q []float32, topK int, excludeIDs []string) ([]VectorMatch, error)
}
