package vector

import (
	"fmt"
	"path/filepath"
)

// Backend names a KnowledgeIndex implementation.
type Backend string

const (
	// BackendChromem stores chunks in a persistent chromem-go database.
	BackendChromem Backend = "chromem"
	// BackendMemory uses brute-force search over an in-memory map, saved to one file on Close.
	BackendMemory Backend = "memory"
)

const memoryIndexFile = "knowledge.idx"

// NewKnowledgeIndex creates the index for backend rooted at dir. An empty dir keeps the
// index in memory only.
func NewKnowledgeIndex(backend string, dir string, dimensions int) (KnowledgeIndex, error) {
	switch Backend(backend) {
	case BackendChromem, "":
		return NewChromemIndex(dir, dimensions)
	case BackendMemory:
		if dir == "" {
			return NewMemoryIndex(dimensions)
		}
		return OpenMemoryIndex(filepath.Join(dir, memoryIndexFile), dimensions)
	default:
		return nil, fmt.Errorf("unknown knowledge backend: %s (supported: chromem, memory)", backend)
	}
}
