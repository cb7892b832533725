package vector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hyperjump/companion/internal/models"
)

func chunk(companion, source string, idx int, vec ...float32) *models.KnowledgeChunk {
	return &models.KnowledgeChunk{
		ID:        fmt.Sprintf("%s/%s/%d", companion, source, idx),
		Text:      fmt.Sprintf("%s %s chunk %d", companion, source, idx),
		Embedding: vec,
		Metadata: models.ChunkMetadata{
			CompanionID: companion,
			SourceID:    source,
			SourceType:  models.SourceText,
			ChunkIndex:  idx,
		},
	}
}

// testKnowledgeIndex runs the behavior every backend must share.
func testKnowledgeIndex(t *testing.T, newIndex func(t *testing.T) KnowledgeIndex) {
	ctx := context.Background()

	t.Run("QueryScopedToCompanion", func(t *testing.T) {
		idx := newIndex(t)
		err := idx.Upsert(ctx, []*models.KnowledgeChunk{
			chunk("elon", "s1", 0, 1, 0, 0),
			chunk("elon", "s1", 1, 0.6, 0.8, 0),
			chunk("other", "s1", 0, 1, 0, 0),
		})
		if err != nil {
			t.Fatal(err)
		}
		res, err := idx.Query(ctx, []float32{1, 0, 0}, 5, models.Filter{CompanionID: "elon"})
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != 2 {
			t.Fatalf("expected 2 results, got %d", len(res))
		}
		if res[0].ID != "elon/s1/0" || res[0].Score < res[1].Score {
			t.Errorf("results not ordered by similarity: %+v %+v", res[0], res[1])
		}
		for _, r := range res {
			if r.Metadata.CompanionID != "elon" {
				t.Errorf("foreign chunk returned: %+v", r)
			}
		}
		if res[1].Metadata.ChunkIndex != 1 || res[1].Metadata.SourceType != models.SourceText {
			t.Errorf("metadata not round-tripped: %+v", res[1].Metadata)
		}
	})

	t.Run("TopKLimitsResults", func(t *testing.T) {
		idx := newIndex(t)
		var chunks []*models.KnowledgeChunk
		for i := 0; i < 8; i++ {
			chunks = append(chunks, chunk("elon", "s1", i, 1, float32(i)*0.1, 0))
		}
		if err := idx.Upsert(ctx, chunks); err != nil {
			t.Fatal(err)
		}
		res, err := idx.Query(ctx, []float32{1, 0, 0}, 1, models.Filter{CompanionID: "elon", SourceID: "s1"})
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != 1 {
			t.Errorf("topK=1 returned %d", len(res))
		}
		res, _ = idx.Query(ctx, []float32{1, 0, 0}, 0, models.Filter{CompanionID: "elon"})
		if len(res) != DefaultTopK {
			t.Errorf("topK=0 returned %d, want default %d", len(res), DefaultTopK)
		}
		res, _ = idx.Query(ctx, []float32{1, 0, 0}, 100, models.Filter{CompanionID: "elon"})
		if len(res) != 8 {
			t.Errorf("topK above size returned %d, want 8", len(res))
		}
	})

	t.Run("EmptyIsNotAnError", func(t *testing.T) {
		idx := newIndex(t)
		res, err := idx.Query(ctx, []float32{1, 0, 0}, 5, models.Filter{CompanionID: "nobody"})
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != 0 {
			t.Errorf("expected no results, got %d", len(res))
		}
	})

	t.Run("UpsertReplacesByID", func(t *testing.T) {
		idx := newIndex(t)
		c := chunk("elon", "s1", 0, 1, 0, 0)
		if err := idx.Upsert(ctx, []*models.KnowledgeChunk{c}); err != nil {
			t.Fatal(err)
		}
		c2 := chunk("elon", "s1", 0, 0, 1, 0)
		c2.Text = "replaced"
		if err := idx.Upsert(ctx, []*models.KnowledgeChunk{c2}); err != nil {
			t.Fatal(err)
		}
		n, _ := idx.Count(ctx, models.Filter{CompanionID: "elon"})
		if n != 1 {
			t.Errorf("count = %d after upsert of same id", n)
		}
		res, _ := idx.Query(ctx, []float32{0, 1, 0}, 1, models.Filter{CompanionID: "elon"})
		if len(res) != 1 || res[0].Text != "replaced" {
			t.Errorf("got %+v", res)
		}
	})

	t.Run("DeleteBySourceAndCompanion", func(t *testing.T) {
		idx := newIndex(t)
		err := idx.Upsert(ctx, []*models.KnowledgeChunk{
			chunk("elon", "s1", 0, 1, 0, 0),
			chunk("elon", "s1", 1, 1, 0, 0),
			chunk("elon", "s2", 0, 0, 1, 0),
			chunk("other", "s1", 0, 1, 0, 0),
		})
		if err != nil {
			t.Fatal(err)
		}
		n, err := idx.Delete(ctx, models.Filter{CompanionID: "elon", SourceID: "s1"})
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Errorf("deleted %d, want 2", n)
		}
		n, _ = idx.Delete(ctx, models.Filter{CompanionID: "elon"})
		if n != 1 {
			t.Errorf("deleted %d, want 1", n)
		}
		if c, _ := idx.Count(ctx, models.Filter{CompanionID: "other"}); c != 1 {
			t.Errorf("other companion lost chunks: %d", c)
		}
		if n, _ := idx.Delete(ctx, models.Filter{CompanionID: "elon"}); n != 0 {
			t.Errorf("second delete removed %d", n)
		}
	})

	t.Run("FilterRequiresCompanion", func(t *testing.T) {
		idx := newIndex(t)
		if _, err := idx.Query(ctx, []float32{1, 0, 0}, 1, models.Filter{}); !errors.Is(err, models.ErrInvalidFilter) {
			t.Errorf("Query: expected ErrInvalidFilter, got %v", err)
		}
		if _, err := idx.Delete(ctx, models.Filter{SourceID: "s1"}); !errors.Is(err, models.ErrInvalidFilter) {
			t.Errorf("Delete: expected ErrInvalidFilter, got %v", err)
		}
		if err := idx.Upsert(ctx, []*models.KnowledgeChunk{chunk("", "s1", 0, 1, 0, 0)}); !errors.Is(err, models.ErrInvalidFilter) {
			t.Errorf("Upsert: expected ErrInvalidFilter, got %v", err)
		}
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		idx := newIndex(t)
		err := idx.Upsert(ctx, []*models.KnowledgeChunk{chunk("elon", "s1", 0, 1, 0)})
		if !errors.Is(err, models.ErrIndexUnavailable) {
			t.Errorf("expected ErrIndexUnavailable, got %v", err)
		}
	})
}

func TestMemoryIndex(t *testing.T) {
	testKnowledgeIndex(t, func(t *testing.T) KnowledgeIndex {
		idx, err := NewMemoryIndex(3)
		if err != nil {
			t.Fatal(err)
		}
		return idx
	})
}

func TestChromemIndex(t *testing.T) {
	testKnowledgeIndex(t, func(t *testing.T) KnowledgeIndex {
		idx, err := NewChromemIndex(t.TempDir(), 3)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = idx.Close() })
		return idx
	})
}
