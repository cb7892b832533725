// Package generate provides completion generators that turn an assembled prompt into a reply.
package generate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/companion/internal/config"
	"github.com/hyperjump/companion/internal/models"
)

// Generator turns a prompt into completion text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

func genErr(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrGenerationFailed, provider, err)
}

// New creates the generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.GenerationConfig, secrets config.Secrets, logger *zap.Logger) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "echo":
		if logger != nil {
			logger.Info("Using echo generator; replies repeat the last message")
		}
		return EchoGenerator{}, nil
	case "anthropic":
		if secrets.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic generator requires ANTHROPIC_API_KEY")
		}
		return NewAnthropicGenerator(secrets.AnthropicAPIKey, cfg.Model, cfg.MaxTokens), nil
	case "gemini":
		if secrets.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini generator requires GEMINI_API_KEY")
		}
		return NewGeminiGenerator(ctx, secrets.GeminiAPIKey, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

// EchoGenerator answers offline by repeating the last message before the speaker cue.
type EchoGenerator struct{}

func (EchoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimRight(prompt, "\n"), "\n")
	// the final line is the "Name:" cue
	for i := len(lines) - 2; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return "You said: " + line, nil
		}
	}
	return "", genErr("echo", fmt.Errorf("empty prompt"))
}
