// Package cli provides output writers for the companion command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/companion/internal/models"
	"github.com/hyperjump/companion/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json"; anything else is an error.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// WriteHistory writes a conversation log, oldest entry first.
func WriteHistory(w io.Writer, key models.CompanionKey, entries []models.HistoryEntry, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, map[string]interface{}{"key": key, "entries": entries})
	}
	fmt.Fprintf(w, "%d entries for %s\n\n", len(entries), key.HistoryKey())
	for _, e := range entries {
		fmt.Fprintf(w, "[%s] %s\n", formatTimestamp(e.Timestamp), e.Text)
	}
	return nil
}

// formatTimestamp renders wall-clock timestamps as RFC 3339; seed lines keep their ordinal.
func formatTimestamp(ms int64) string {
	if ms < 1_000_000 {
		return fmt.Sprintf("seed %d", ms)
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// WriteIngestResults writes one line per source and a summary.
func WriteIngestResults(w io.Writer, results []models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, map[string]interface{}{"results": results})
	}
	var chunks, failed int
	for _, r := range results {
		name := r.Title
		if name == "" {
			name = r.SourceID
		}
		name = utils.Truncate(name, 60)
		switch {
		case r.Err != nil || r.Error != "":
			failed++
			msg := r.Error
			if msg == "" {
				msg = r.Err.Error()
			}
			fmt.Fprintf(w, "FAIL  %-6s %s: %s\n", r.SourceType, name, msg)
		case r.Skipped:
			fmt.Fprintf(w, "SKIP  %-6s %s (already ingested)\n", r.SourceType, name)
		default:
			chunks += r.Chunks
			fmt.Fprintf(w, "OK    %-6s %s (%d chunks)\n", r.SourceType, name, r.Chunks)
		}
	}
	fmt.Fprintf(w, "\n%d sources, %d chunks written, %d failed\n", len(results), chunks, failed)
	return nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
