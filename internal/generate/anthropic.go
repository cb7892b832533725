package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultMaxTokens      = 1024
)

// AnthropicGenerator completes prompts with the Anthropic Messages API.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicGenerator creates a generator. Extra request options (base URL, retries) are
// passed through to the client.
func NewAnthropicGenerator(apiKey, model string, maxTokens int, opts ...option.RequestOption) *AnthropicGenerator {
	if model == "" {
		model = defaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicGenerator{
		client:    anthropic.NewClient(clientOpts...),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

// Generate sends the prompt as a single user message and returns the concatenated text blocks.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", genErr("anthropic", err)
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", genErr("anthropic", fmt.Errorf("response has no text (stop reason %q)", resp.StopReason))
	}
	return b.String(), nil
}
