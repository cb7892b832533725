package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/companion/internal/config"
)

// New builds the embedder selected by cfg.Provider and wraps it in a cache of cfg.CacheSize
// entries. An onnx provider that fails to load falls back to the mock embedder with a warning,
// so the service still starts on hosts without onnxruntime.
func New(ctx context.Context, cfg config.EmbeddingConfig, secrets config.Secrets, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		inner Embedder
		err   error
	)
	switch cfg.Provider {
	case "", "onnx":
		var onnx *ONNXEmbedder
		onnx, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			logger.Warn("ONNX embedder unavailable, using mock embedder", zap.Error(err))
			inner, err = NewMockEmbedder(cfg.Dimensions), nil
		} else {
			inner = onnx
		}
	case "mock":
		inner = NewMockEmbedder(cfg.Dimensions)
	case "openai":
		inner, err = NewOpenAIEmbedder(cfg.BaseURL, secrets.OpenAIAPIKey, cfg.Model, cfg.Dimensions)
	case "gemini":
		inner, err = NewGeminiEmbedder(ctx, secrets.GeminiAPIKey, cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	cached, err := NewCachedEmbedder(inner, cfg.CacheSize)
	if err != nil {
		_ = inner.Close()
		return nil, err
	}
	logger.Info("Embedder ready", zap.String("provider", cfg.Provider), zap.Int("dimensions", inner.Dimensions()))
	return cached, nil
}
