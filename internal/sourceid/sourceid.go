// Package sourceid derives stable knowledge source ids, so re-ingesting the same file, link
// or text hits the dedup probe instead of embedding it again.
package sourceid

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/hyperjump/companion/internal/models"
)

const (
	filePrefix = "file:"
	linkPrefix = "link:"
	textPrefix = "text:"
)

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// File returns a stable id for the given path. Equal cleaned paths yield equal ids.
func File(path string) string {
	return filePrefix + digest(filepath.Clean(path))
}

// Link returns a stable id for rawURL. Scheme and host are lowercased and the fragment dropped.
func Link(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		u.Fragment = ""
		rawURL = u.String()
	}
	return linkPrefix + digest(rawURL)
}

// Text returns a stable id for a raw text payload.
func Text(content string) string {
	return textPrefix + digest(content)
}

// For returns src.ID when set and otherwise derives one from the payload.
// Uploaded documents without a path are identified by their bytes.
func For(src models.Source) string {
	if src.ID != "" {
		return src.ID
	}
	switch {
	case src.Type == models.SourceLink && src.URL != "":
		return Link(src.URL)
	case src.Type == models.SourceText:
		return Text(src.Content)
	case src.Path != "":
		return File(src.Path)
	default:
		return filePrefix + digest(string(src.Data))
	}
}
