package sourceid

import (
	"strings"
	"testing"

	"github.com/hyperjump/companion/internal/models"
)

func TestFile(t *testing.T) {
	id1 := File("/foo/bar.txt")
	if id1 != File("/foo/bar.txt") {
		t.Error("same path should give same ID")
	}
	if !strings.HasPrefix(id1, filePrefix) {
		t.Errorf("ID should have prefix %q: got %q", filePrefix, id1)
	}
	if id1 == File("/foo/baz.txt") {
		t.Error("different paths should give different IDs")
	}
	if File("/foo/bar") != File("/foo/./bar/") {
		t.Error("paths should be cleaned before hashing")
	}
}

func TestLink(t *testing.T) {
	if Link("https://Example.com/a#top") != Link("https://example.com/a") {
		t.Error("host case and fragment should not change the id")
	}
	if Link("https://example.com/a") == Link("https://example.com/b") {
		t.Error("different paths should give different IDs")
	}
	if !strings.HasPrefix(Link("not a url"), linkPrefix) {
		t.Error("unparseable urls still get a link id")
	}
}

func TestFor(t *testing.T) {
	tests := []struct {
		name string
		src  models.Source
		want string
	}{
		{"explicit", models.Source{ID: "given", Type: models.SourceText, Content: "x"}, "given"},
		{"text", models.Source{Type: models.SourceText, Content: "x"}, Text("x")},
		{"link", models.Source{Type: models.SourceLink, URL: "https://example.com"}, Link("https://example.com")},
		{"path", models.Source{Type: models.SourcePDF, Path: "/a/b.pdf"}, File("/a/b.pdf")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := For(tt.src); got != tt.want {
				t.Errorf("For() = %q, want %q", got, tt.want)
			}
		})
	}

	a := For(models.Source{Type: models.SourceTXT, Data: []byte("one")})
	b := For(models.Source{Type: models.SourceTXT, Data: []byte("two")})
	if a == b || !strings.HasPrefix(a, filePrefix) {
		t.Errorf("uploads should be identified by content: %q %q", a, b)
	}
}
