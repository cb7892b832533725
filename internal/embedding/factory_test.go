package embedding

import (
	"context"
	"testing"

	"github.com/hyperjump/companion/internal/config"
)

func TestNew_Mock(t *testing.T) {
	emb, err := New(context.Background(), config.EmbeddingConfig{Provider: "mock", Dimensions: 12, CacheSize: 10}, config.Secrets{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer emb.Close()
	if emb.Dimensions() != 12 {
		t.Errorf("Dimensions() = %d", emb.Dimensions())
	}
	if _, ok := emb.(*CachedEmbedder); !ok {
		t.Errorf("expected cached embedder, got %T", emb)
	}
}

func TestNew_ONNXFallsBackToMock(t *testing.T) {
	emb, err := New(context.Background(), config.EmbeddingConfig{Provider: "onnx", ModelPath: "/nonexistent/model.onnx", Dimensions: 8}, config.Secrets{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer emb.Close()
	if _, ok := emb.(*MockEmbedder); !ok {
		t.Errorf("expected mock fallback, got %T", emb)
	}
}

func TestNew_OpenAIRequiresKey(t *testing.T) {
	if _, err := New(context.Background(), config.EmbeddingConfig{Provider: "openai"}, config.Secrets{}, nil); err == nil {
		t.Error("expected error without OpenAI key")
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), config.EmbeddingConfig{Provider: "nope"}, config.Secrets{}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}
