package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/companion/internal/models"
)

func newTestStorage(t *testing.T, opts ...Option) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var testKey = models.CompanionKey{CompanionID: "elon", UserID: "u1", ModelName: "m"}

func TestSQLiteStorage_AppendReadRecentOrder(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	var want []string
	for i := 0; i < 40; i++ {
		text := fmt.Sprintf("message %d", i)
		want = append(want, text)
		if err := store.Append(ctx, testKey, text); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ReadRecent(ctx, testKey, 30)
	if err != nil {
		t.Fatal(err)
	}
	if texts := models.Texts(got); !reflect.DeepEqual(texts, want[10:]) {
		t.Errorf("ReadRecent(30) = %v, want %v", texts, want[10:])
	}

	got, err = store.ReadRecent(ctx, testKey, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 40 {
		t.Errorf("ReadRecent(100) returned %d entries, want 40", len(got))
	}
}

func TestSQLiteStorage_ReadRecentEmpty(t *testing.T) {
	store := newTestStorage(t)
	got, err := store.ReadRecent(context.Background(), testKey, 30)
	if err != nil {
		t.Fatalf("empty history should not be an error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty slice, got %v", got)
	}
	got, err = store.ReadRecent(context.Background(), testKey, 0)
	if err != nil || len(got) != 0 {
		t.Errorf("limit 0: got %v, %v", got, err)
	}
}

func TestSQLiteStorage_AppendSameMillisecondKeepsInsertionOrder(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	store := newTestStorage(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()
	for _, text := range []string{"a", "b", "c"} {
		if err := store.Append(ctx, testKey, text); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.ReadRecent(ctx, testKey, 2)
	if err != nil {
		t.Fatal(err)
	}
	if texts := models.Texts(got); !reflect.DeepEqual(texts, []string{"b", "c"}) {
		t.Errorf("got %v, want [b c]", texts)
	}
}

func TestSQLiteStorage_AppendTimestampsNeverDecrease(t *testing.T) {
	var mu sync.Mutex
	now := time.UnixMilli(5_000)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	store := newTestStorage(t, WithClock(clock))
	ctx := context.Background()

	if err := store.Append(ctx, testKey, "first"); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	now = time.UnixMilli(1_000) // clock steps backwards
	mu.Unlock()
	if err := store.Append(ctx, testKey, "second"); err != nil {
		t.Fatal(err)
	}

	got, err := store.ReadRecent(ctx, testKey, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Text != "first" || got[1].Text != "second" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[1].Timestamp < got[0].Timestamp {
		t.Errorf("timestamps decreased: %d then %d", got[0].Timestamp, got[1].Timestamp)
	}
}

func TestSQLiteStorage_SeedIfEmpty(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	seed := "Human: Hi\n\nElon: Hello!"

	if err := store.SeedIfEmpty(ctx, testKey, seed, "\n\n"); err != nil {
		t.Fatal(err)
	}
	if err := store.SeedIfEmpty(ctx, testKey, seed, "\n\n"); err != nil {
		t.Fatal(err)
	}
	got, err := store.ReadRecent(ctx, testKey, 30)
	if err != nil {
		t.Fatal(err)
	}
	want := []models.HistoryEntry{{Text: "Human: Hi", Timestamp: 0}, {Text: "Elon: Hello!", Timestamp: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("after two seeds got %+v, want %+v", got, want)
	}

	// Real messages sort after the seed.
	if err := store.Append(ctx, testKey, "Tell me about Mars"); err != nil {
		t.Fatal(err)
	}
	got, _ = store.ReadRecent(ctx, testKey, 30)
	wantTexts := []string{"Human: Hi", "Elon: Hello!", "Tell me about Mars"}
	if texts := models.Texts(got); !reflect.DeepEqual(texts, wantTexts) {
		t.Errorf("got %v, want %v", texts, wantTexts)
	}
}

func TestSQLiteStorage_SeedIfEmptyKeepsBlankLines(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	if err := store.SeedIfEmpty(ctx, testKey, "A\n\n\n\nB\n\n", "\n\n"); err != nil {
		t.Fatal(err)
	}
	got, err := store.ReadRecent(ctx, testKey, 30)
	if err != nil {
		t.Fatal(err)
	}
	want := []models.HistoryEntry{
		{Text: "A", Timestamp: 0},
		{Text: "", Timestamp: 1},
		{Text: "B", Timestamp: 2},
		{Text: "", Timestamp: 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSQLiteStorage_SeedIfEmptyNoopWhenHistoryExists(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	if err := store.Append(ctx, testKey, "hello"); err != nil {
		t.Fatal(err)
	}
	if err := store.SeedIfEmpty(ctx, testKey, "a\nb", "\n"); err != nil {
		t.Fatal(err)
	}
	n, err := store.Count(ctx, testKey)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, seeding a non-empty log must be a no-op", n)
	}
}

func TestSQLiteStorage_SeedIfEmptyConcurrent(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.SeedIfEmpty(ctx, testKey, "one\ntwo\nthree", "\n")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	n, err := store.Count(ctx, testKey)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count = %d, want exactly one seed of 3 lines", n)
	}
}

func TestSQLiteStorage_KeysAreIsolated(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	otherModel := testKey
	otherModel.ModelName = "other"
	otherUser := testKey
	otherUser.UserID = "u2"

	if err := store.Append(ctx, testKey, "mine"); err != nil {
		t.Fatal(err)
	}
	for _, k := range []models.CompanionKey{otherModel, otherUser} {
		got, err := store.ReadRecent(ctx, k, 30)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("key %s sees foreign history: %v", k.HistoryKey(), got)
		}
	}
}

func TestSQLiteStorage_ClearResetsThread(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	otherUser := testKey
	otherUser.UserID = "u2"

	if err := store.SeedIfEmpty(ctx, testKey, "Human: Hi\n\nElon: Hello!", "\n\n"); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, otherUser, "keep me"); err != nil {
		t.Fatal(err)
	}
	n, err := store.Clear(ctx, testKey)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Clear removed %d entries, want 2", n)
	}
	if c, _ := store.Count(ctx, otherUser); c != 1 {
		t.Errorf("other user count = %d, want 1", c)
	}
	if err := store.SeedIfEmpty(ctx, testKey, "Human: Hi\n\nElon: Hello!", "\n\n"); err != nil {
		t.Fatal(err)
	}
	if c, _ := store.Count(ctx, testKey); c != 2 {
		t.Errorf("count after reseed = %d, want 2", c)
	}
}

func TestSQLiteStorage_InvalidKey(t *testing.T) {
	store := newTestStorage(t)
	err := store.Append(context.Background(), models.CompanionKey{CompanionID: "c"}, "x")
	if !errors.Is(err, models.ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestSQLiteStorage_ClosedIsStoreUnavailable(t *testing.T) {
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatal(err)
	}
	_ = store.Close()
	err = store.Append(context.Background(), testKey, "x")
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestSQLiteStorage_CompanionCRUD(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	c := &models.Companion{
		ID:           "elon",
		OwnerID:      "owner",
		Name:         "Elon",
		Instructions: "You are Elon.",
		Seed:         "Human: Hi\n\nElon: Hello!",
		Sources: []models.Source{
			{ID: "s1", Type: models.SourceText, Title: "bio", Content: "Born in Pretoria."},
			{ID: "s2", Type: models.SourceLink, URL: "https://example.com"},
		},
	}
	if err := store.SaveCompanion(ctx, c); err != nil {
		t.Fatal(err)
	}
	if c.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetCompanion(ctx, "elon")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Elon" || got.OwnerID != "owner" || len(got.Sources) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got.Sources[0].ID != "s1" || got.Sources[1].URL != "https://example.com" {
		t.Errorf("sources = %+v", got.Sources)
	}

	c.Name = "Elon Musk"
	c.Sources = c.Sources[1:]
	if err := store.SaveCompanion(ctx, c); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetCompanion(ctx, "elon")
	if got.Name != "Elon Musk" || len(got.Sources) != 1 {
		t.Errorf("update not applied: %+v", got)
	}

	list, err := store.ListCompanions(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 companion, got %d", len(list))
	}

	if err := store.Append(ctx, testKey, "hi"); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteCompanion(ctx, "elon"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetCompanion(ctx, "elon"); !errors.Is(err, models.ErrCompanionNotFound) {
		t.Errorf("expected ErrCompanionNotFound, got %v", err)
	}
	if n, _ := store.Count(ctx, testKey); n != 0 {
		t.Errorf("history should be removed with the companion, count = %d", n)
	}
	if err := store.DeleteCompanion(ctx, "elon"); !errors.Is(err, models.ErrCompanionNotFound) {
		t.Errorf("second delete: expected ErrCompanionNotFound, got %v", err)
	}
}
