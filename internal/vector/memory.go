package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/companion/internal/models"
)

// MemoryIndex is an in-memory knowledge index using brute-force inner product search.
// It can be persisted to a single binary file with Save and restored with Load.
type MemoryIndex struct {
	dimensions int
	path       string
	chunks     map[string]*models.KnowledgeChunk
	mu         sync.RWMutex
}

// NewMemoryIndex creates an empty in-memory index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		chunks:     make(map[string]*models.KnowledgeChunk),
	}, nil
}

// OpenMemoryIndex creates an index backed by the file at path. Existing contents are loaded,
// and Close writes the index back.
func OpenMemoryIndex(path string, dimensions int) (*MemoryIndex, error) {
	m, err := NewMemoryIndex(dimensions)
	if err != nil {
		return nil, err
	}
	m.path = path
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MemoryIndex) Dimensions() int { return m.dimensions }

// Upsert stores copies of chunks keyed by id.
func (m *MemoryIndex) Upsert(ctx context.Context, chunks []*models.KnowledgeChunk) error {
	for _, c := range chunks {
		if c.ID == "" {
			return indexErr("upsert", errors.New("chunk id is required"))
		}
		if err := c.Metadata.ToFilter().Validate(); err != nil {
			return err
		}
		if err := checkDims(m.dimensions, c.Embedding); err != nil {
			return indexErr("upsert", err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		vec := make([]float32, m.dimensions)
		copy(vec, c.Embedding)
		m.chunks[c.ID] = &models.KnowledgeChunk{ID: c.ID, Text: c.Text, Embedding: vec, Metadata: c.Metadata}
	}
	return nil
}

// Query returns the top-k chunks matching filter by inner product (cosine similarity for normalized vectors).
// Ties are broken by chunk id so results are stable.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int, filter models.Filter) ([]*models.QueryResult, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if err := checkDims(m.dimensions, vector); err != nil {
		return nil, indexErr("query", err)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*models.QueryResult, 0)
	for _, c := range m.chunks {
		if !filter.Matches(c.Metadata) {
			continue
		}
		results = append(results, &models.QueryResult{
			ID:       c.ID,
			Text:     c.Text,
			Metadata: c.Metadata,
			Score:    InnerProduct(vector, c.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes all chunks matching filter.
func (m *MemoryIndex) Delete(ctx context.Context, filter models.Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, c := range m.chunks {
		if filter.Matches(c.Metadata) {
			delete(m.chunks, id)
			n++
		}
	}
	return n, nil
}

// Count returns the number of chunks matching filter.
func (m *MemoryIndex) Count(ctx context.Context, filter models.Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.chunks {
		if filter.Matches(c.Metadata) {
			n++
		}
	}
	return n, nil
}

// size returns the total number of chunks across all companions.
func (m *MemoryIndex) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// Save persists the index to path. The directory is created if needed.
// Format (little endian): dimensions u32, count u32, then per chunk: id, text, companion id,
// source id, source type (each u32 length + bytes), chunk index u32, vector (dimensions*4 bytes).
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.write(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *MemoryIndex) write(w io.Writer) error {
	ids := make([]string, 0, len(m.chunks))
	for id := range m.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, id := range ids {
		c := m.chunks[id]
		for _, s := range []string{c.ID, c.Text, c.Metadata.CompanionID, c.Metadata.SourceID, string(c.Metadata.SourceType)} {
			if err := writeString(w, s); err != nil {
				return fmt.Errorf("write chunk %s: %w", id, err)
			}
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(c.Metadata.ChunkIndex)); err != nil {
			return fmt.Errorf("write chunk index: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(c.Embedding)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	chunks := make(map[string]*models.KnowledgeChunk, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var fields [5]string
		for j := range fields {
			s, err := readString(r)
			if err != nil {
				return fmt.Errorf("read chunk %d: %w", i, err)
			}
			fields[j] = s
		}
		var idx uint32
		if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
			return fmt.Errorf("read chunk index: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		chunks[fields[0]] = &models.KnowledgeChunk{
			ID:        fields[0],
			Text:      fields[1],
			Embedding: bytesToFloat32Slice(buf),
			Metadata: models.ChunkMetadata{
				CompanionID: fields[2],
				SourceID:    fields[3],
				SourceType:  models.SourceType(fields[4]),
				ChunkIndex:  int(idx),
			},
		}
	}

	m.mu.Lock()
	m.chunks = chunks
	m.mu.Unlock()
	return nil
}

// Close writes the index back to its file when it was opened with OpenMemoryIndex.
func (m *MemoryIndex) Close() error {
	if m.path == "" {
		return nil
	}
	if err := m.Save(m.path); err != nil {
		return indexErr("save", err)
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
