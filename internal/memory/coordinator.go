// Package memory assembles per-turn prompts from conversation history and companion knowledge.
package memory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/companion/internal/embedding"
	"github.com/hyperjump/companion/internal/models"
	"github.com/hyperjump/companion/internal/storage"
	"github.com/hyperjump/companion/internal/vector"
)

const (
	DefaultRecentLimit   = 30
	DefaultSeedDelimiter = "\n\n"
)

// Ingester makes sure a companion's stored sources are in the knowledge index.
type Ingester interface {
	EnsureIngested(ctx context.Context, c *models.Companion) error
}

// Generator turns a prompt into completion text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Coordinator runs the memory side of a chat turn. It holds no per-key state and is safe for
// concurrent turns.
type Coordinator struct {
	history     storage.HistoryStore
	index       vector.KnowledgeIndex
	embedder    embedding.Embedder
	ingester    Ingester
	recentLimit int
	topK        int
	delimiter   string
	logger      *zap.Logger // optional
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets a logger for degraded-turn warnings.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithRecentLimit sets how many history entries go into the prompt.
func WithRecentLimit(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.recentLimit = n
		}
	}
}

// WithTopK sets how many knowledge chunks are retrieved per turn.
func WithTopK(k int) Option {
	return func(c *Coordinator) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithSeedDelimiter sets the separator between lines of a companion's seed dialogue.
func WithSeedDelimiter(d string) Option {
	return func(c *Coordinator) {
		if d != "" {
			c.delimiter = d
		}
	}
}

// NewCoordinator creates a coordinator. ingester may be nil when companions carry no sources.
func NewCoordinator(history storage.HistoryStore, index vector.KnowledgeIndex, embedder embedding.Embedder, ingester Ingester, opts ...Option) *Coordinator {
	c := &Coordinator{
		history:     history,
		index:       index,
		embedder:    embedder,
		ingester:    ingester,
		recentLimit: DefaultRecentLimit,
		topK:        vector.DefaultTopK,
		delimiter:   DefaultSeedDelimiter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AnswerTurn records the user's message and returns the prompt for the companion's reply.
// Only an invalid key or a failed append of the user's message is an error; seeding, ingestion
// and retrieval problems are logged and the prompt is built with what is available.
func (c *Coordinator) AnswerTurn(ctx context.Context, key models.CompanionKey, companion *models.Companion, userQuery string) (string, error) {
	return c.answerTurn(ctx, key, companion, userQuery, "")
}

func (c *Coordinator) answerTurn(ctx context.Context, key models.CompanionKey, companion *models.Companion, userQuery, tone string) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	if companion == nil {
		return "", fmt.Errorf("%w: %s", models.ErrCompanionNotFound, key.CompanionID)
	}

	// Seed before appending so the seed dialogue precedes the first message.
	if err := c.history.SeedIfEmpty(ctx, key, companion.Seed, c.delimiter); err != nil {
		c.warn("Seeding history failed", key, err)
	}
	if err := c.history.Append(ctx, key, userQuery); err != nil {
		return "", fmt.Errorf("append user message: %w", err)
	}

	if c.ingester != nil {
		if err := c.ingester.EnsureIngested(ctx, companion); err != nil {
			c.warn("Knowledge ingestion incomplete", key, err)
		}
	}

	relevant := c.relevantContext(ctx, key, userQuery)

	recent, err := c.history.ReadRecent(ctx, key, c.recentLimit)
	var lines []string
	if err != nil {
		c.warn("Reading history failed, using the current message only", key, err)
		lines = []string{userQuery}
	} else {
		lines = models.Texts(recent)
	}

	return BuildPrompt(PromptInput{
		Name:         companion.Name,
		Instructions: companion.Instructions,
		Context:      relevant,
		History:      lines,
		Tone:         tone,
	}), nil
}

// relevantContext returns the top chunks for query joined by newlines, or "" when retrieval fails.
func (c *Coordinator) relevantContext(ctx context.Context, key models.CompanionKey, query string) string {
	if c.index == nil || c.embedder == nil {
		return ""
	}
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		c.warn("Embedding query failed, answering without knowledge", key, err)
		return ""
	}
	hits, err := c.index.Query(ctx, vec, c.topK, models.Filter{CompanionID: key.CompanionID})
	if err != nil {
		c.warn("Knowledge query failed, answering without knowledge", key, err)
		return ""
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return strings.Join(texts, "\n")
}

// RecordReply appends the companion's reply to the history under key.
func (c *Coordinator) RecordReply(ctx context.Context, key models.CompanionKey, reply string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := c.history.Append(ctx, key, reply); err != nil {
		return fmt.Errorf("append reply: %w", err)
	}
	return nil
}

// Respond runs a full turn: build the prompt, generate, clean the reply and record it.
// tone optionally overrides the speaking style. An empty cleaned reply is returned but not recorded.
func (c *Coordinator) Respond(ctx context.Context, gen Generator, key models.CompanionKey, companion *models.Companion, userQuery, tone string) (string, error) {
	prompt, err := c.answerTurn(ctx, key, companion, userQuery, tone)
	if err != nil {
		return "", err
	}
	raw, err := gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	reply := CleanReply(raw, companion.Name)
	if reply == "" {
		if c.logger != nil {
			c.logger.Warn("Generator returned an empty reply", zap.String("history_key", key.HistoryKey()))
		}
		return "", nil
	}
	if err := c.RecordReply(ctx, key, reply); err != nil {
		return "", err
	}
	return reply, nil
}

func (c *Coordinator) warn(msg string, key models.CompanionKey, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, zap.String("history_key", key.HistoryKey()), zap.Error(err))
	}
}
