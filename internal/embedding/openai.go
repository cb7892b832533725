package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "text-embedding-3-small"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	maxRetries int
}

// OpenAIOption configures an OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.client = c }
}

// WithMaxRetries sets how many times a 429, 5xx or transport error is retried.
func WithMaxRetries(n int) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.maxRetries = n }
}

// NewOpenAIEmbedder returns an embedder for baseURL (default https://api.openai.com/v1).
// dimensions is what the model produces; responses of another size are rejected.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dimensions int, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("missing OpenAI API key (OPENAI_API_KEY)")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	e := &OpenAIEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 5,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type openAIRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding for one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch sends all texts in one request and returns vectors in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	body, err := json.Marshal(openAIRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, embedErr("openai", err)
	}

	payload, err := e.post(ctx, body)
	if err != nil {
		return nil, embedErr("openai", err)
	}

	var resp openAIResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, embedErr("openai", fmt.Errorf("decode response: %w", err))
	}
	if len(resp.Data) != len(texts) {
		return nil, embedErr("openai", fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, embedErr("openai", fmt.Errorf("embedding index %d out of range", d.Index))
		}
		if e.dimensions > 0 && len(d.Embedding) != e.dimensions {
			return nil, embedErr("openai", fmt.Errorf("expected %d dimensions, got %d", e.dimensions, len(d.Embedding)))
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, embedErr("openai", fmt.Errorf("missing embedding for input %d", i))
		}
	}
	return out, nil
}

func (e *OpenAIEmbedder) post(ctx context.Context, body []byte) ([]byte, error) {
	url := e.baseURL + "/embeddings"
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryDelay(attempt-1)); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("embeddings request failed: %s", resp.Status)
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && attempt < e.maxRetries {
				if err := sleepCtx(ctx, time.Duration(secs)*time.Second); err != nil {
					return nil, err
				}
			}
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("embeddings request failed: %s: %s", resp.Status, strings.TrimSpace(string(payload)))
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}
		return payload, nil
	}
	return nil, lastErr
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

func (e *OpenAIEmbedder) Close() error { return nil }

// retryDelay is exponential from 200ms, capped at 5s.
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return 5 * time.Second
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
