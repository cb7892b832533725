package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hyperjump/companion/internal/config"
	"github.com/hyperjump/companion/internal/models"
)

func TestEchoGenerator(t *testing.T) {
	prompt := "You are Elon.\n\nHuman: Hi\nElon: Hello!\nTell me about Mars\nElon:"
	got, err := EchoGenerator{}.Generate(context.Background(), prompt)
	if err != nil {
		t.Fatal(err)
	}
	if got != "You said: Tell me about Mars" {
		t.Errorf("Generate = %q", got)
	}
	if _, err := (EchoGenerator{}).Generate(context.Background(), "Elon:"); !errors.Is(err, models.ErrGenerationFailed) {
		t.Errorf("empty prompt: err = %v, want ErrGenerationFailed", err)
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	gen, err := New(ctx, config.GenerationConfig{Provider: "echo"}, config.Secrets{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := gen.(EchoGenerator); !ok {
		t.Errorf("New(echo) = %T", gen)
	}
	if _, err := New(ctx, config.GenerationConfig{Provider: "anthropic"}, config.Secrets{}, nil); err == nil {
		t.Error("anthropic without key: expected error")
	}
	if _, err := New(ctx, config.GenerationConfig{Provider: "gpt-2"}, config.Secrets{}, nil); err == nil {
		t.Error("unknown provider: expected error")
	}
}

func TestAnthropicGenerator(t *testing.T) {
	var gotPrompt, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		gotKey = r.Header.Get("X-Api-Key")
		var body struct {
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) == 1 && len(body.Messages[0].Content) == 1 {
			gotPrompt = body.Messages[0].Content[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"test",
			"content":[{"type":"text","text":"Mars is "},{"type":"text","text":"next."}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	gen := NewAnthropicGenerator("test-key", "test", 64, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	got, err := gen.Generate(context.Background(), "Tell me about Mars\nElon:")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Mars is next." {
		t.Errorf("Generate = %q", got)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotPrompt != "Tell me about Mars\nElon:" {
		t.Errorf("prompt sent = %q", gotPrompt)
	}
}

func TestAnthropicGenerator_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	gen := NewAnthropicGenerator("k", "", 0, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := gen.Generate(context.Background(), "hi")
	if !errors.Is(err, models.ErrGenerationFailed) {
		t.Errorf("err = %v, want ErrGenerationFailed", err)
	}
}
