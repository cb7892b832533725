package models

import (
	"fmt"
	"strconv"
	"strings"
)

// SourceType is the kind of knowledge source being ingested.
type SourceType string

const (
	SourceText SourceType = "TEXT"
	SourceLink SourceType = "LINK"
	SourcePDF  SourceType = "PDF"
	SourceDOCX SourceType = "DOCX"
	SourceTXT  SourceType = "TXT"
	SourceCSV  SourceType = "CSV"
	SourceJSON SourceType = "JSON"
)

// SourceTypes lists every supported source type.
var SourceTypes = []SourceType{SourceText, SourceLink, SourcePDF, SourceDOCX, SourceTXT, SourceCSV, SourceJSON}

// ParseSourceType parses s case-insensitively.
func ParseSourceType(s string) (SourceType, error) {
	t := SourceType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range SourceTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown source type %q", ErrInvalidSource, s)
}

// SourceTypeFromExt maps a file extension (with or without the dot) to a source type.
func SourceTypeFromExt(ext string) (SourceType, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return SourcePDF, true
	case "docx":
		return SourceDOCX, true
	case "txt", "md", "rst":
		return SourceTXT, true
	case "csv", "tsv", "xlsx":
		return SourceCSV, true
	case "json", "jsonl":
		return SourceJSON, true
	case "html", "htm":
		return SourceLink, true
	}
	return "", false
}

// IsFile reports whether the source type carries a document payload.
func (t SourceType) IsFile() bool {
	switch t {
	case SourcePDF, SourceDOCX, SourceTXT, SourceCSV, SourceJSON:
		return true
	}
	return false
}

// Source is one knowledge source of a companion. TEXT uses Content, LINK uses URL,
// file types use Data when set and Path otherwise. A LINK without a URL is a saved page on disk.
type Source struct {
	ID      string     `json:"id,omitempty"`
	Type    SourceType `json:"type"`
	Title   string     `json:"title,omitempty"`
	Content string     `json:"content,omitempty"`
	URL     string     `json:"url,omitempty"`
	Path    string     `json:"path,omitempty"`
	Data    []byte     `json:"-"`
}

// Validate checks that the source has a known type and a payload for it.
func (s *Source) Validate() error {
	if _, err := ParseSourceType(string(s.Type)); err != nil {
		return err
	}
	switch {
	case s.Type == SourceText && s.Content == "":
		return fmt.Errorf("%w: TEXT source has no content", ErrInvalidSource)
	case s.Type == SourceLink && s.URL == "" && s.Path == "" && len(s.Data) == 0:
		return fmt.Errorf("%w: LINK source has no url", ErrInvalidSource)
	case s.Type.IsFile() && len(s.Data) == 0 && s.Path == "":
		return fmt.Errorf("%w: %s source has neither data nor path", ErrInvalidSource, s.Type)
	}
	return nil
}

// Metadata keys stored alongside each chunk in the knowledge index.
const (
	MetaCompanionID = "companion_id"
	MetaSourceID    = "source_id"
	MetaSourceType  = "source_type"
	MetaChunkIndex  = "chunk_index"
)

// ChunkMetadata is the provenance attached to every knowledge chunk.
type ChunkMetadata struct {
	CompanionID string     `json:"companion_id"`
	SourceID    string     `json:"source_id"`
	SourceType  SourceType `json:"source_type"`
	ChunkIndex  int        `json:"chunk_index"`
}

// Map returns the metadata as a flat string map.
func (m ChunkMetadata) Map() map[string]string {
	return map[string]string{
		MetaCompanionID: m.CompanionID,
		MetaSourceID:    m.SourceID,
		MetaSourceType:  string(m.SourceType),
		MetaChunkIndex:  strconv.Itoa(m.ChunkIndex),
	}
}

// ChunkMetadataFromMap is the inverse of ChunkMetadata.Map. Unknown keys are ignored.
func ChunkMetadataFromMap(m map[string]string) ChunkMetadata {
	idx, _ := strconv.Atoi(m[MetaChunkIndex])
	return ChunkMetadata{
		CompanionID: m[MetaCompanionID],
		SourceID:    m[MetaSourceID],
		SourceType:  SourceType(m[MetaSourceType]),
		ChunkIndex:  idx,
	}
}

// ToFilter returns the filter selecting this chunk's source.
func (m ChunkMetadata) ToFilter() Filter {
	return Filter{CompanionID: m.CompanionID, SourceID: m.SourceID}
}

// KnowledgeChunk is a bounded slice of source text plus its embedding and provenance.
type KnowledgeChunk struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Embedding []float32     `json:"-"`
	Metadata  ChunkMetadata `json:"metadata"`
}

// Filter scopes knowledge index operations. CompanionID is mandatory.
type Filter struct {
	CompanionID string `json:"companion_id"`
	SourceID    string `json:"source_id,omitempty"`
}

// Validate returns ErrInvalidFilter when the companion id is missing.
func (f Filter) Validate() error {
	if f.CompanionID == "" {
		return fmt.Errorf("%w: companion id is required", ErrInvalidFilter)
	}
	return nil
}

// Where returns the filter as an equality map over chunk metadata.
func (f Filter) Where() map[string]string {
	where := map[string]string{MetaCompanionID: f.CompanionID}
	if f.SourceID != "" {
		where[MetaSourceID] = f.SourceID
	}
	return where
}

// Matches reports whether chunk metadata satisfies the filter.
func (f Filter) Matches(m ChunkMetadata) bool {
	if m.CompanionID != f.CompanionID {
		return false
	}
	return f.SourceID == "" || m.SourceID == f.SourceID
}

// QueryResult is a single nearest-neighbor hit.
type QueryResult struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float64       `json:"score"`
}

// IngestResult is the outcome of ingesting one source in a batch.
type IngestResult struct {
	SourceID   string     `json:"source_id"`
	SourceType SourceType `json:"source_type"`
	Title      string     `json:"title,omitempty"`
	Chunks     int        `json:"chunks"`
	Skipped    bool       `json:"skipped,omitempty"` // already ingested
	Err        error      `json:"-"`
	Error      string     `json:"error,omitempty"`
}

// OK reports whether the source was ingested or already present.
func (r IngestResult) OK() bool {
	return r.Err == nil
}
