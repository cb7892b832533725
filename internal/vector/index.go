// Package vector provides the knowledge index: nearest-neighbor search over chunk embeddings,
// always scoped to one companion.
package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/companion/internal/models"
)

// DefaultTopK is used when a query asks for zero or fewer results.
const DefaultTopK = 5

// KnowledgeIndex stores knowledge chunks and answers filtered similarity queries.
// Every operation requires a filter with a companion id, and never touches chunks of
// another companion.
type KnowledgeIndex interface {
	// Upsert writes chunks, replacing any chunk with the same id.
	Upsert(ctx context.Context, chunks []*models.KnowledgeChunk) error
	// Query returns up to topK chunks matching filter by descending similarity.
	Query(ctx context.Context, vector []float32, topK int, filter models.Filter) ([]*models.QueryResult, error)
	// Delete removes every chunk matching filter and returns how many were removed.
	Delete(ctx context.Context, filter models.Filter) (int, error)
	// Count returns the number of chunks matching filter.
	Count(ctx context.Context, filter models.Filter) (int, error)
	Dimensions() int
	Close() error
}

func indexErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrIndexUnavailable, op, err)
}

func checkDims(dims int, vec []float32) error {
	if len(vec) != dims {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), dims)
	}
	return nil
}
