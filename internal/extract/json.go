package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// extractJSON flattens a JSON document into "path: value" lines, e.g. "user.tags[1]: go".
// Elements of a top-level array, and lines of a JSON Lines file, become separate records
// divided by a blank line.
func extractJSON(content []byte, lines bool) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	var records []string
	for n := 0; ; n++ {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode JSON value %d: %w", n+1, err)
		}
		if arr, ok := v.([]any); ok && !lines {
			for _, el := range arr {
				records = appendRecord(records, el)
			}
			continue
		}
		records = appendRecord(records, v)
	}
	return strings.Join(records, "\n\n"), nil
}

func appendRecord(records []string, v any) []string {
	var out []string
	flatten("", v, &out)
	if len(out) == 0 {
		return records
	}
	return append(records, strings.Join(out, "\n"))
}

func flatten(prefix string, v any, out *[]string) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			flatten(path, val[k], out)
		}
	case []any:
		for i, el := range val {
			flatten(fmt.Sprintf("%s[%d]", prefix, i), el, out)
		}
	case nil:
		// nulls carry no knowledge
	default:
		s := strings.TrimSpace(fmt.Sprint(val))
		if s == "" {
			return
		}
		if prefix == "" {
			*out = append(*out, s)
			return
		}
		*out = append(*out, prefix+": "+s)
	}
}
