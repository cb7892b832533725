package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	ingests map[string][]string // companion -> paths
	removes map[string][]string
}

func newRecorder() *recorder {
	return &recorder{ingests: map[string][]string{}, removes: map[string][]string{}}
}

func (r *recorder) ingest(companionID, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingests[companionID] = append(r.ingests[companionID], path)
}

func (r *recorder) remove(companionID, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes[companionID] = append(r.removes[companionID], path)
}

func (r *recorder) count(m map[string][]string, companionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(m[companionID])
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startWatcher(t *testing.T, root string, rec *recorder) *Watcher {
	t.Helper()
	w := NewWatcher(root, []string{".txt", ".md"}, rec.ingest, rec.remove, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_IngestsFilesPerCompanion(t *testing.T) {
	root := t.TempDir()
	elonDir := filepath.Join(root, "elon")
	if err := os.Mkdir(elonDir, 0755); err != nil {
		t.Fatal(err)
	}
	rec := newRecorder()
	startWatcher(t, root, rec)

	notes := filepath.Join(elonDir, "notes.txt")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(notes, []byte("rev"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(elonDir, "skip.go"), []byte("package x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "orphan.txt"), []byte("no companion"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "ingest of notes.txt", func() bool { return rec.count(rec.ingests, "elon") >= 1 })
	time.Sleep(150 * time.Millisecond)
	if n := rec.count(rec.ingests, "elon"); n != 1 {
		t.Errorf("debounced ingests = %d, want 1", n)
	}
	rec.mu.Lock()
	if len(rec.ingests) != 1 {
		t.Errorf("ingests for companions %v, want only elon", rec.ingests)
	}
	rec.mu.Unlock()

	if err := os.Remove(notes); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "remove of notes.txt", func() bool { return rec.count(rec.removes, "elon") == 1 })
}

func TestWatcher_NewCompanionDirectory(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	startWatcher(t, root, rec)

	staging := t.TempDir()
	adaDir := filepath.Join(staging, "ada")
	if err := os.Mkdir(adaDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(adaDir, "engine.md"), []byte("notes"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(adaDir, filepath.Join(root, "ada")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ingest of moved-in directory", func() bool { return rec.count(rec.ingests, "ada") >= 1 })

	later := filepath.Join(root, "ada", "later.txt")
	if err := os.WriteFile(later, []byte("more"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ingest inside the new directory", func() bool { return rec.count(rec.ingests, "ada") >= 2 })
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"elon/a.txt", "elon/deep/b.md", "ada/c.txt", "ada/.hidden.txt", "d.txt"} {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	rec := newRecorder()
	w := NewWatcher(root, []string{".txt", ".md"}, rec.ingest, rec.remove)
	w.SyncExistingFiles()
	if n := rec.count(rec.ingests, "elon"); n != 2 {
		t.Errorf("elon ingests = %d, want 2", n)
	}
	if n := rec.count(rec.ingests, "ada"); n != 1 {
		t.Errorf("ada ingests = %d, want 1", n)
	}
}

func TestCompanionOf(t *testing.T) {
	w := NewWatcher("/drop", nil, nil, nil)
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"/drop/elon/notes.txt", "elon", true},
		{"/drop/elon/deep/notes.txt", "elon", true},
		{"/drop/notes.txt", "", false},
		{"/drop", "", false},
		{"/other/elon/notes.txt", "", false},
		{"/drop/.git/config", "", false},
	}
	for _, tt := range tests {
		got, ok := w.companionOf(tt.path)
		if got != tt.want || ok != tt.ok {
			t.Errorf("companionOf(%q) = %q, %v; want %q, %v", tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/.b.txt", []string{".txt"}, false},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}
