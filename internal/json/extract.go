// Package json extracts structured data from operator-pasted text.
//
// Pasted lookup results often arrive wrapped in markdown code fences. The
// fence is removed; everything else must already be a valid JSON document.
package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Extract returns the compacted JSON document in text. The text must be
// valid JSON after trimming, optionally wrapped in a markdown code block
// (```json ... ```). JSON surrounded by other text is rejected.
func Extract(text string) (json.RawMessage, error) {
	text = stripMarkdownCodeBlocks(text)

	if doc, ok := compact(text); ok {
		return doc, nil
	}

	preview := text
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return nil, fmt.Errorf("input is not valid JSON: %q", preview)
}

// Valid reports whether Extract would accept text.
func Valid(text string) bool {
	_, err := Extract(text)
	return err == nil
}

func compact(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !json.Valid([]byte(s)) {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, false
	}
	return json.RawMessage(buf.Bytes()), true
}

// stripMarkdownCodeBlocks removes ```json / ``` fences around the text.
func stripMarkdownCodeBlocks(text string) string {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}

	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}

	return trimmed
}
