package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/companion/internal/embedding"
	"github.com/hyperjump/companion/internal/models"
	"github.com/hyperjump/companion/internal/sourceid"
	"github.com/hyperjump/companion/internal/vector"
)

// embedBatchSize bounds how many chunks go to the embedding provider in one request.
const embedBatchSize = 64

// defaultRetryAfter is how long EnsureIngested waits before loading a failed source again.
const defaultRetryAfter = 5 * time.Minute

// chunkNamespace is the UUIDv5 namespace for chunk ids.
var chunkNamespace = uuid.MustParse("6f1c8a52-3b7e-5d8a-9c61-2e4f0b7d9a13")

// SourceLoader turns a source into plain text.
type SourceLoader interface {
	Load(ctx context.Context, src models.Source) (string, error)
}

// Pipeline ingests knowledge sources: dedup probe, load, normalize and chunk, embed, upsert.
type Pipeline struct {
	index    vector.KnowledgeIndex
	embedder embedding.Embedder
	loader   SourceLoader
	chunker  *Chunker
	logger   *zap.Logger // optional; when set, logs debug events

	retryAfter time.Duration
	now        func() time.Time

	mu       sync.Mutex
	attempts map[string]attempt // companionID/sourceID -> last unsuccessful outcome
}

// attempt records a source that loaded empty or failed, so turns do not reload it.
type attempt struct {
	empty    bool
	failedAt time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithRetryAfter sets how long EnsureIngested leaves a failed source alone before loading it again.
func WithRetryAfter(d time.Duration) Option {
	return func(p *Pipeline) { p.retryAfter = d }
}

// NewPipeline creates a pipeline with the given dependencies and window settings.
func NewPipeline(index vector.KnowledgeIndex, embedder embedding.Embedder, loader SourceLoader, chunkSize, chunkOverlap int, opts ...Option) *Pipeline {
	p := &Pipeline{
		index:    index,
		embedder: embedder,
		loader:   loader,
		chunker:  NewChunker(chunkSize, chunkOverlap),

		retryAfter: defaultRetryAfter,
		now:        time.Now,
		attempts:   make(map[string]attempt),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ChunkID returns the deterministic id of one chunk, so a re-ingest after a raced probe
// overwrites chunks instead of duplicating them.
func ChunkID(companionID, sourceID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(companionID+"/"+sourceID+"/"+strconv.Itoa(index))).String()
}

// Ingested reports whether any chunk of the source is already in the index.
// This is a topK=1 query filtered on companion and source.
func (p *Pipeline) Ingested(ctx context.Context, companionID, sourceID string) (bool, error) {
	filter := models.Filter{CompanionID: companionID, SourceID: sourceID}
	hits, err := p.index.Query(ctx, vector.UnitVector(p.index.Dimensions()), 1, filter)
	if err != nil {
		return false, err
	}
	return len(hits) > 0, nil
}

// Ingest embeds one source for a companion and returns the number of chunks written.
// A source that is already present returns 0 without loading it. A missing src.ID is
// derived from the payload.
func (p *Pipeline) Ingest(ctx context.Context, companionID string, src models.Source) (int, error) {
	if companionID == "" {
		return 0, fmt.Errorf("%w: companion id is required", models.ErrInvalidFilter)
	}
	if err := src.Validate(); err != nil {
		return 0, err
	}
	src.ID = sourceid.For(src)

	found, err := p.Ingested(ctx, companionID, src.ID)
	if err != nil {
		return 0, fmt.Errorf("dedup probe: %w", err)
	}
	if found {
		if p.logger != nil {
			p.logger.Debug("Source already ingested", zap.String("companion_id", companionID), zap.String("source_id", src.ID))
		}
		return 0, nil
	}

	text, err := p.loader.Load(ctx, src)
	if err != nil {
		return 0, err
	}
	pieces := p.chunker.Split(Preprocess(text))
	if len(pieces) == 0 {
		if p.logger != nil {
			p.logger.Debug("Source has no text", zap.String("companion_id", companionID), zap.String("source_id", src.ID))
		}
		p.record(companionID, src.ID, attempt{empty: true})
		return 0, nil
	}

	chunks := make([]*models.KnowledgeChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &models.KnowledgeChunk{
			ID:   ChunkID(companionID, src.ID, i),
			Text: piece,
			Metadata: models.ChunkMetadata{
				CompanionID: companionID,
				SourceID:    src.ID,
				SourceType:  src.Type,
				ChunkIndex:  i,
			},
		}
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}
		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, err
		}
		if len(vectors) != len(batch) {
			return 0, fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbedFailed, len(vectors), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}
	}

	if err := p.index.Upsert(ctx, chunks); err != nil {
		if p.logger != nil {
			p.logger.Warn("Upsert failed, source may be partially embedded",
				zap.String("companion_id", companionID), zap.String("source_id", src.ID), zap.Error(err))
		}
		return 0, err
	}
	if p.logger != nil {
		p.logger.Info("Source ingested",
			zap.String("companion_id", companionID),
			zap.String("source_id", src.ID),
			zap.String("type", string(src.Type)),
			zap.Int("chunks", len(chunks)))
	}
	p.forget(companionID, src.ID)
	return len(chunks), nil
}

// IngestBatch ingests every source independently and returns one result per source, in order.
// A failing source never stops its siblings.
func (p *Pipeline) IngestBatch(ctx context.Context, companionID string, sources []models.Source) []models.IngestResult {
	results := make([]models.IngestResult, len(sources))
	for i, src := range sources {
		src.ID = sourceid.For(src)
		res := models.IngestResult{SourceID: src.ID, SourceType: src.Type, Title: src.Title}
		n, err := p.Ingest(ctx, companionID, src)
		if err != nil {
			res.Err = err
			res.Error = err.Error()
			if p.logger != nil {
				p.logger.Warn("Source ingestion failed",
					zap.String("companion_id", companionID), zap.String("source_id", src.ID), zap.Error(err))
			}
		} else {
			res.Chunks = n
			res.Skipped = n == 0
		}
		results[i] = res
	}
	return results
}

// EnsureIngested ingests the companion's stored sources that are not yet in the index.
// It returns the failures joined, after attempting every source.
// Sources that loaded as empty are not attempted again, and a failed source waits
// retryAfter before its next attempt. A successful Ingest, DeleteSource and Clear reset both.
func (p *Pipeline) EnsureIngested(ctx context.Context, c *models.Companion) error {
	if c == nil || len(c.Sources) == 0 {
		return nil
	}
	pending := make([]models.Source, 0, len(c.Sources))
	for _, src := range c.Sources {
		src.ID = sourceid.For(src)
		if p.settled(c.ID, src.ID) {
			continue
		}
		pending = append(pending, src)
	}
	if len(pending) == 0 {
		return nil
	}
	var errs []error
	for _, res := range p.IngestBatch(ctx, c.ID, pending) {
		if res.Err != nil {
			p.record(c.ID, res.SourceID, attempt{failedAt: p.now()})
			errs = append(errs, fmt.Errorf("source %s: %w", res.SourceID, res.Err))
		}
	}
	return errors.Join(errs...)
}

func attemptKey(companionID, sourceID string) string {
	return companionID + "/" + sourceID
}

// settled reports whether EnsureIngested should leave the source alone for now.
func (p *Pipeline) settled(companionID, sourceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.attempts[attemptKey(companionID, sourceID)]
	if !ok {
		return false
	}
	return a.empty || p.now().Sub(a.failedAt) < p.retryAfter
}

func (p *Pipeline) record(companionID, sourceID string, a attempt) {
	p.mu.Lock()
	p.attempts[attemptKey(companionID, sourceID)] = a
	p.mu.Unlock()
}

func (p *Pipeline) forget(companionID, sourceID string) {
	p.mu.Lock()
	delete(p.attempts, attemptKey(companionID, sourceID))
	p.mu.Unlock()
}

// forgetCompanion drops every attempt recorded for the companion.
func (p *Pipeline) forgetCompanion(companionID string) {
	prefix := companionID + "/"
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.attempts {
		if strings.HasPrefix(k, prefix) {
			delete(p.attempts, k)
		}
	}
}

// SourceFromFile describes the file at path as a source, typed by its extension.
func SourceFromFile(path string) (models.Source, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return models.Source{}, fmt.Errorf("absolute path: %w", err)
	}
	typ, ok := models.SourceTypeFromExt(filepath.Ext(absPath))
	if !ok {
		return models.Source{}, fmt.Errorf("%w: unsupported file extension %q", models.ErrInvalidSource, filepath.Ext(absPath))
	}
	return models.Source{
		ID:    sourceid.File(absPath),
		Type:  typ,
		Title: filepath.Base(absPath),
		Path:  absPath,
	}, nil
}

// ReingestFile replaces the chunks of the file at path with its current content.
func (p *Pipeline) ReingestFile(ctx context.Context, companionID, path string) (int, error) {
	src, err := SourceFromFile(path)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(src.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: stat file: %w", models.ErrLoadFailed, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: not a regular file: %s", models.ErrInvalidSource, src.Path)
	}
	if _, err := p.DeleteSource(ctx, companionID, src.ID); err != nil {
		return 0, err
	}
	return p.Ingest(ctx, companionID, src)
}

// IngestDirectory walks dir recursively and ingests each regular file whose extension is in
// allowedExts (all supported files when allowedExts is empty). Failures are recorded per file.
func (p *Pipeline) IngestDirectory(ctx context.Context, companionID, dir string, allowedExts []string) ([]models.IngestResult, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	var sources []models.Source
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if len(allowedExts) > 0 && !ExtensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		src, srcErr := SourceFromFile(path)
		if srcErr != nil {
			return nil
		}
		sources = append(sources, src)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.IngestBatch(ctx, companionID, sources), nil
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and the leading dot.
func ExtensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteSource removes the chunks of one source and returns how many were removed.
func (p *Pipeline) DeleteSource(ctx context.Context, companionID, sourceID string) (int, error) {
	n, err := p.index.Delete(ctx, models.Filter{CompanionID: companionID, SourceID: sourceID})
	if err != nil {
		return 0, err
	}
	p.forget(companionID, sourceID)
	if p.logger != nil {
		p.logger.Debug("Source deleted", zap.String("companion_id", companionID), zap.String("source_id", sourceID), zap.Int("chunks", n))
	}
	return n, nil
}

// Clear removes all knowledge of a companion and returns how many chunks were removed.
func (p *Pipeline) Clear(ctx context.Context, companionID string) (int, error) {
	n, err := p.index.Delete(ctx, models.Filter{CompanionID: companionID})
	if err != nil {
		return 0, err
	}
	p.forgetCompanion(companionID)
	if p.logger != nil {
		p.logger.Info("Knowledge cleared", zap.String("companion_id", companionID), zap.Int("chunks", n))
	}
	return n, nil
}
