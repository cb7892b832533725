// Package embedding turns text into vectors for the knowledge index.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/companion/internal/models"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

func embedErr(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrEmbedFailed, provider, err)
}

// embedEach calls embed for every text in order, stopping at the first failure.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}
