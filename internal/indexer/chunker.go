// Package indexer turns knowledge sources into embedded chunks in the knowledge index.
package indexer

// Chunker splits text into overlapping character windows. Chunk i starts at rune offset
// i*(size-overlap); the last chunk is the first one that reaches the end of the text.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker with the given window size and overlap, both in characters.
// A non-positive size defaults to 1000. An overlap that would stall the window is clamped to size/4.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split returns the ordered chunk texts of text. Empty text yields no chunks; text no longer
// than the window yields exactly one.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := c.size - c.overlap
	var chunks []string
	for start := 0; ; start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
