package vector

import (
	"context"
	"testing"

	"github.com/hyperjump/companion/internal/models"
)

func TestChromemIndex_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := NewChromemIndex(dir, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(ctx, []*models.KnowledgeChunk{chunk("elon", "s1", 0, 1, 0, 0)}); err != nil {
		t.Fatal(err)
	}
	_ = idx.Close()

	reopened, err := NewChromemIndex(dir, 3)
	if err != nil {
		t.Fatal(err)
	}
	n, err := reopened.Count(ctx, models.Filter{CompanionID: "elon", SourceID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count=%d after reopen, want 1", n)
	}
}

func TestChromemIndex_InMemory(t *testing.T) {
	idx, err := NewChromemIndex("", 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(context.Background(), nil); err != nil {
		t.Errorf("empty upsert should be a no-op, got %v", err)
	}
}
