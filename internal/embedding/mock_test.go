package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/companion/internal/models"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "mars")
	b, _ := e.Embed(ctx, "mars")
	c, _ := e.Embed(ctx, "venus")
	same := true
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text produced different vectors")
		}
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}
	var sum float64
	for _, v := range a {
		sum += float64(v * v)
	}
	if math.Abs(sum-1) > 1e-4 {
		t.Errorf("vector not unit length: %f", sum)
	}
}

func TestMockEmbedder_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockEmbedder(4).EmbedBatch(ctx, []string{"a"})
	if !errors.Is(err, models.ErrEmbedFailed) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected wrapped cancellation, got %v", err)
	}
}
