package memory

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/companion/internal/embedding"
	"github.com/hyperjump/companion/internal/extract"
	"github.com/hyperjump/companion/internal/indexer"
	"github.com/hyperjump/companion/internal/models"
	"github.com/hyperjump/companion/internal/storage"
	"github.com/hyperjump/companion/internal/vector"
)

var elonKey = models.CompanionKey{CompanionID: "elon", UserID: "u1", ModelName: "m"}

func elon() *models.Companion {
	return &models.Companion{
		ID:           "elon",
		Name:         "Elon",
		Instructions: "You are an entrepreneur who builds rockets.",
		Seed:         "Human: Hi\n\nElon: Hello!",
		Sources: []models.Source{
			{Type: models.SourceText, Title: "mars", Content: "Mars is the fourth planet and the target for a self-sustaining city."},
		},
	}
}

type testEnv struct {
	store    *storage.SQLiteStorage
	index    *vector.MemoryIndex
	embedder embedding.Embedder
	pipeline *indexer.Pipeline
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	idx, err := vector.NewMemoryIndex(16)
	if err != nil {
		t.Fatal(err)
	}
	emb := embedding.NewMockEmbedder(16)
	return &testEnv{
		store:    store,
		index:    idx,
		embedder: emb,
		pipeline: indexer.NewPipeline(idx, emb, extract.NewLoader(), 1000, 200),
	}
}

type brokenIndex struct{ vector.KnowledgeIndex }

func (brokenIndex) Query(context.Context, []float32, int, models.Filter) ([]*models.QueryResult, error) {
	return nil, models.ErrIndexUnavailable
}

type brokenAppend struct{ storage.HistoryStore }

func (brokenAppend) Append(context.Context, models.CompanionKey, string) error {
	return models.ErrStoreUnavailable
}

type fixedGenerator struct {
	reply  string
	prompt string
}

func (g *fixedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.reply, nil
}

func TestAnswerTurn_FirstTurnSeedsThenAppends(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := NewCoordinator(env.store, env.index, env.embedder, env.pipeline)

	prompt, err := c.AnswerTurn(ctx, elonKey, elon(), "Tell me about Mars")
	if err != nil {
		t.Fatal(err)
	}
	entries, err := env.store.ReadRecent(ctx, elonKey, 30)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Human: Hi", "Elon: Hello!", "Tell me about Mars"}
	if got := models.Texts(entries); !reflect.DeepEqual(got, want) {
		t.Errorf("history = %q, want %q", got, want)
	}

	instr := strings.Index(prompt, "You are an entrepreneur")
	knowledge := strings.Index(prompt, "Mars is the fourth planet")
	history := strings.Index(prompt, "Human: Hi\nElon: Hello!\nTell me about Mars")
	if instr < 0 || knowledge < 0 || history < 0 {
		t.Fatalf("prompt missing a part (instructions %d, knowledge %d, history %d):\n%s", instr, knowledge, history, prompt)
	}
	if !(instr < knowledge && knowledge < history) {
		t.Errorf("prompt parts out of order: instructions %d, knowledge %d, history %d", instr, knowledge, history)
	}
	if !strings.HasSuffix(prompt, "\nElon:") {
		t.Errorf("prompt does not end with the speaker cue: %q", prompt[len(prompt)-20:])
	}
}

func TestAnswerTurn_SecondTurnDoesNotReseed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := NewCoordinator(env.store, env.index, env.embedder, env.pipeline)

	for _, q := range []string{"first", "second"} {
		if _, err := c.AnswerTurn(ctx, elonKey, elon(), q); err != nil {
			t.Fatal(err)
		}
	}
	n, err := env.store.Count(ctx, elonKey)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("history count = %d, want 4", n)
	}
	chunks, err := env.index.Count(ctx, models.Filter{CompanionID: "elon"})
	if err != nil {
		t.Fatal(err)
	}
	if chunks != 1 {
		t.Errorf("chunks = %d, want 1 (knowledge ingested once)", chunks)
	}
}

type countingLoader struct {
	calls int
}

func (l *countingLoader) Load(context.Context, models.Source) (string, error) {
	l.calls++
	return "\n\t \n", nil
}

func TestAnswerTurn_EmptySourceLoadedOnceAcrossTurns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	loader := &countingLoader{}
	pipeline := indexer.NewPipeline(env.index, env.embedder, loader, 1000, 200)
	c := NewCoordinator(env.store, env.index, env.embedder, pipeline)

	for _, q := range []string{"first", "second", "third"} {
		if _, err := c.AnswerTurn(ctx, elonKey, elon(), q); err != nil {
			t.Fatal(err)
		}
	}
	if loader.calls != 1 {
		t.Errorf("loader calls = %d across three turns, want 1", loader.calls)
	}
}

func TestAnswerTurn_DegradesWhenIndexFails(t *testing.T) {
	env := newTestEnv(t)
	c := NewCoordinator(env.store, brokenIndex{env.index}, env.embedder, nil)

	prompt, err := c.AnswerTurn(context.Background(), elonKey, elon(), "Tell me about Mars")
	if err != nil {
		t.Fatalf("AnswerTurn should degrade, got %v", err)
	}
	if !strings.Contains(prompt, "You are an entrepreneur") || !strings.Contains(prompt, "Tell me about Mars") {
		t.Errorf("degraded prompt lacks instructions or history:\n%s", prompt)
	}
	if strings.Contains(prompt, "fourth planet") {
		t.Error("degraded prompt should carry no retrieved knowledge")
	}
}

func TestAnswerTurn_AppendFailureIsReturned(t *testing.T) {
	env := newTestEnv(t)
	c := NewCoordinator(brokenAppend{env.store}, env.index, env.embedder, env.pipeline)

	_, err := c.AnswerTurn(context.Background(), elonKey, elon(), "hello")
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestAnswerTurn_InvalidKey(t *testing.T) {
	env := newTestEnv(t)
	c := NewCoordinator(env.store, env.index, env.embedder, env.pipeline)
	_, err := c.AnswerTurn(context.Background(), models.CompanionKey{CompanionID: "elon"}, elon(), "hello")
	if !errors.Is(err, models.ErrInvalidKey) {
		t.Errorf("err = %v, want ErrInvalidKey", err)
	}
}

func TestAnswerTurn_KnowledgeScopedToCompanion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := NewCoordinator(env.store, env.index, env.embedder, env.pipeline)

	other := &models.Companion{ID: "ada", Name: "Ada", Sources: []models.Source{
		{Type: models.SourceText, Content: "The analytical engine computes Bernoulli numbers."},
	}}
	if err := env.pipeline.EnsureIngested(ctx, other); err != nil {
		t.Fatal(err)
	}
	prompt, err := c.AnswerTurn(ctx, elonKey, elon(), "analytical engine")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(prompt, "Bernoulli") {
		t.Error("prompt for elon contains another companion's knowledge")
	}
}

func TestRespond_CleansAndRecordsReply(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := NewCoordinator(env.store, env.index, env.embedder, env.pipeline, WithRecentLimit(10), WithTopK(2))
	gen := &fixedGenerator{reply: "\n  Elon: Mars is the next frontier.  \nHuman: and then?"}

	reply, err := c.Respond(ctx, gen, elonKey, elon(), "Tell me about Mars", "pirate")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Mars is the next frontier." {
		t.Errorf("reply = %q", reply)
	}
	if !strings.Contains(gen.prompt, "Give Response in pirate words only.") {
		t.Error("tone missing from prompt")
	}
	entries, err := env.store.ReadRecent(ctx, elonKey, 30)
	if err != nil {
		t.Fatal(err)
	}
	texts := models.Texts(entries)
	if len(texts) != 4 || texts[3] != "Mars is the next frontier." {
		t.Errorf("history after reply = %q", texts)
	}
}

func TestRespond_EmptyReplyNotRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := NewCoordinator(env.store, env.index, env.embedder, nil)

	reply, err := c.Respond(ctx, &fixedGenerator{reply: "  \n\n"}, elonKey, elon(), "hi", "")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty", reply)
	}
	if n, _ := env.store.Count(ctx, elonKey); n != 3 {
		t.Errorf("history count = %d, want 3", n)
	}
}
