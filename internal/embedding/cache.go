package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachedEmbedder memoizes embeddings by exact text in a ristretto cache.
// Each vector costs 1, so the cache holds roughly size entries.
type CachedEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCachedEmbedder wraps inner with a cache of about size entries. A size of zero or less
// returns inner unchanged.
func NewCachedEmbedder(inner Embedder, size int) (Embedder, error) {
	if size <= 0 {
		return inner, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(size) * 10,
		MaxCost:     int64(size),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachedEmbedder) get(text string) ([]float32, bool) {
	v, ok := c.cache.Get(text)
	if !ok {
		return nil, false
	}
	emb := v.([]float32)
	out := make([]float32, len(emb))
	copy(out, emb)
	return out, true
}

func (c *CachedEmbedder) set(text string, emb []float32) {
	stored := make([]float32, len(emb))
	copy(stored, emb)
	c.cache.Set(text, stored, 1)
}

// Embed returns the cached vector for text or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if emb, ok := c.get(text); ok {
		return emb, nil
	}
	emb, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.set(text, emb)
	c.cache.Wait()
	return emb, nil
}

// EmbedBatch embeds only the texts that miss the cache, in one inner batch call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if emb, ok := c.get(text); ok {
			out[i] = emb
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	embs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(embs) != len(missing) {
		return nil, embedErr("cache", fmt.Errorf("provider returned %d vectors for %d texts", len(embs), len(missing)))
	}
	for j, emb := range embs {
		out[missingIdx[j]] = emb
		c.set(missing[j], emb)
	}
	c.cache.Wait()
	return out, nil
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Close releases the cache and the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Close()
	return c.inner.Close()
}
