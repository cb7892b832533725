package vector

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/hyperjump/companion/internal/models"
)

const chromemCollection = "knowledge"

// ChromemIndex stores knowledge chunks in one chromem-go collection shared by all companions.
// Companion scoping is a metadata where-filter on every call.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	dimensions int
	// Queries must not see the collection shrink between sizing nResults and querying.
	mu sync.RWMutex
}

// NewChromemIndex opens a persistent chromem database at path, or an in-memory one when path is empty.
func NewChromemIndex(path string, dimensions int) (*ChromemIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, indexErr("open", err)
		}
	}
	// Embeddings are always supplied by the caller, so no embedding func is configured.
	col, err := db.GetOrCreateCollection(chromemCollection, nil, nil)
	if err != nil {
		return nil, indexErr("create collection", err)
	}
	return &ChromemIndex{db: db, collection: col, dimensions: dimensions}, nil
}

func (c *ChromemIndex) Dimensions() int { return c.dimensions }

// Upsert adds chunks as chromem documents; a document with an existing id is replaced.
func (c *ChromemIndex) Upsert(ctx context.Context, chunks []*models.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for _, ch := range chunks {
		if ch.ID == "" {
			return indexErr("upsert", errors.New("chunk id is required"))
		}
		if err := ch.Metadata.ToFilter().Validate(); err != nil {
			return err
		}
		if err := checkDims(c.dimensions, ch.Embedding); err != nil {
			return indexErr("upsert", err)
		}
		emb := make([]float32, len(ch.Embedding))
		copy(emb, ch.Embedding)
		docs = append(docs, chromem.Document{
			ID:        ch.ID,
			Content:   ch.Text,
			Embedding: emb,
			Metadata:  ch.Metadata.Map(),
		})
	}
	if err := c.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return indexErr("upsert", err)
	}
	return nil
}

// Query returns up to topK chunks matching filter by descending cosine similarity.
func (c *ChromemIndex) Query(ctx context.Context, vector []float32, topK int, filter models.Filter) ([]*models.QueryResult, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if err := checkDims(c.dimensions, vector); err != nil {
		return nil, indexErr("query", err)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	c.mu.RLock()
	res, err := c.query(ctx, vector, topK, filter)
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out := make([]*models.QueryResult, 0, len(res))
	for _, r := range res {
		out = append(out, &models.QueryResult{
			ID:       r.ID,
			Text:     r.Content,
			Metadata: models.ChunkMetadataFromMap(r.Metadata),
			Score:    float64(r.Similarity),
		})
	}
	return out, nil
}

// query clamps n to the collection size, which chromem requires.
func (c *ChromemIndex) query(ctx context.Context, vector []float32, n int, filter models.Filter) ([]chromem.Result, error) {
	total := c.collection.Count()
	if total == 0 {
		return nil, nil
	}
	if n > total {
		n = total
	}
	res, err := c.collection.QueryEmbedding(ctx, vector, n, filter.Where(), nil)
	if err != nil {
		return nil, indexErr("query", err)
	}
	return res, nil
}

// Count returns the number of chunks matching filter.
func (c *ChromemIndex) Count(ctx context.Context, filter models.Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count(ctx, filter)
}

func (c *ChromemIndex) count(ctx context.Context, filter models.Filter) (int, error) {
	res, err := c.query(ctx, UnitVector(c.dimensions), c.collection.Count(), filter)
	if err != nil {
		return 0, err
	}
	return len(res), nil
}

// Delete removes every chunk matching filter and reports how many were removed.
func (c *ChromemIndex) Delete(ctx context.Context, filter models.Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.count(ctx, filter)
	if err != nil || n == 0 {
		return 0, err
	}
	if err := c.collection.Delete(ctx, filter.Where(), nil); err != nil {
		return 0, indexErr("delete", err)
	}
	return n, nil
}

// Close is a no-op; the persistent database writes through on every change.
func (c *ChromemIndex) Close() error { return nil }
