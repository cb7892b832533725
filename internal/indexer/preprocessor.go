package indexer

import (
	"regexp"
	"strings"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLineRuns   = regexp.MustCompile(`\n{3,}`)
)

// Preprocess normalizes loaded text before chunking: line endings become \n, every line is
// trimmed, runs of spaces and tabs collapse to one space and more than one blank line
// collapses to one. Line breaks between logical units (pages, rows, records) are kept.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
