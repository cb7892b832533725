package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiEmbeddingModel = "text-embedding-004"

// GeminiEmbedder embeds text with a Gemini embedding model.
type GeminiEmbedder struct {
	client     *genai.Client
	model      *genai.EmbeddingModel
	dimensions int
}

// NewGeminiEmbedder creates a client for the given API key and model.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimensions int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("missing Gemini API key (GEMINI_API_KEY)")
	}
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: client.EmbeddingModel(model), dimensions: dimensions}, nil
}

// Embed returns the embedding for text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, embedErr("gemini", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, embedErr("gemini", errors.New("no embedding data received"))
	}
	return res.Embedding.Values, nil
}

// EmbedBatch embeds all texts in one batch request.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	batch := e.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}
	res, err := e.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, embedErr("gemini", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, embedErr("gemini", fmt.Errorf("got %d embeddings for %d inputs", len(res.Embeddings), len(texts)))
	}
	out := make([][]float32, len(texts))
	for i, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, embedErr("gemini", fmt.Errorf("empty embedding for input %d", i))
		}
		out[i] = emb.Values
	}
	return out, nil
}

func (e *GeminiEmbedder) Dimensions() int { return e.dimensions }

func (e *GeminiEmbedder) Close() error { return e.client.Close() }
