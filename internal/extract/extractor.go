// Package extract loads knowledge sources (raw text, web pages and document files) into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/companion/internal/models"
)

const (
	defaultFetchTimeout  = 30 * time.Second
	defaultMaxFetchBytes = 10 << 20
)

// Loader turns a Source into plain text.
type Loader struct {
	client        *http.Client
	fetchTimeout  time.Duration
	maxFetchBytes int64
	logger        *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client used to fetch LINK sources.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithFetchLimits bounds LINK fetches by time and body size. Zero values keep the defaults.
func WithFetchLimits(timeout time.Duration, maxBytes int64) Option {
	return func(l *Loader) {
		if timeout > 0 {
			l.fetchTimeout = timeout
		}
		if maxBytes > 0 {
			l.maxFetchBytes = maxBytes
		}
	}
}

// WithLogger sets a logger for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader returns a Loader with default fetch limits.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		client:        &http.Client{},
		fetchTimeout:  defaultFetchTimeout,
		maxFetchBytes: defaultMaxFetchBytes,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func loadErr(src models.Source, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrLoadFailed, src.Type, err)
}

// Load returns the text of src. Missing payloads fail with ErrInvalidSource; fetch and parse
// failures fail with ErrLoadFailed.
func (l *Loader) Load(ctx context.Context, src models.Source) (string, error) {
	if err := src.Validate(); err != nil {
		return "", err
	}
	if src.Type == models.SourceText {
		return src.Content, nil
	}
	if src.Type == models.SourceLink && src.URL != "" {
		text, err := l.fetch(ctx, src.URL)
		if err != nil {
			return "", loadErr(src, err)
		}
		return text, nil
	}

	content := src.Data
	if len(content) == 0 {
		b, err := os.ReadFile(src.Path)
		if err != nil {
			return "", loadErr(src, fmt.Errorf("read file: %w", err))
		}
		content = b
	}
	if l.logger != nil {
		l.logger.Debug("Extracting source", zap.String("type", string(src.Type)), zap.Int("bytes", len(content)))
	}
	text, err := l.ExtractBytes(content, src.Type, filepath.Ext(src.Path))
	if err != nil {
		return "", loadErr(src, err)
	}
	return text, nil
}

// ExtractBytes extracts text from a document payload. ext (with the leading dot, may be empty)
// refines the format inside a type, e.g. ".tsv" for CSV or ".html" for a saved page.
func (l *Loader) ExtractBytes(content []byte, typ models.SourceType, ext string) (string, error) {
	ext = strings.ToLower(ext)
	switch typ {
	case models.SourcePDF:
		return extractPDF(content)
	case models.SourceDOCX:
		return extractDOCX(content)
	case models.SourceCSV:
		if isZip(content) {
			return extractExcel(content)
		}
		return extractCSV(content, ext == ".tsv")
	case models.SourceJSON:
		return extractJSON(content, ext == ".jsonl")
	case models.SourceLink:
		// a saved web page dropped into the knowledge directory
		return StripHTML(string(content)), nil
	case models.SourceTXT, models.SourceText:
		return extractPlain(content)
	default:
		return "", fmt.Errorf("unsupported source type %q", typ)
	}
}

// isZip reports whether content starts with the zip local file header, as xlsx workbooks do.
func isZip(content []byte) bool {
	return bytes.HasPrefix(content, []byte("PK\x03\x04"))
}
