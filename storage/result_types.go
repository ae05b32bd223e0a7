// Result types for the lookup history.
//
// Information Hiding:
// - Payloads stay opaque JSON; metadata is derived on read
// - Ordering is a read-time view, never a property of stored keys
package storage

import (
	"encoding/json"
)

// Order selects the direction of a history listing.
type Order int

const (
	// Ascending lists oldest first.
	Ascending Order = iota
	// Descending lists newest first.
	Descending
)

// String returns "asc" or "desc".
func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// ResultMetadata summarises one stored result for listings.
type ResultMetadata struct {
	ContentHash string `json:"content_hash"` // xxhash of the compact payload
	Summary     string `json:"summary"`      // first lines of the indented payload
	LineCount   int    `json:"line_count"`   // lines in the indented payload
	ByteSize    int    `json:"byte_size"`    // size of the stored payload
}

// Entry is a stored result together with its index.
type Entry struct {
	Index    int             `json:"index"`
	Value    json.RawMessage `json:"value"`
	Metadata ResultMetadata  `json:"metadata"`
}

// SearchMatch is one occurrence of a pattern inside a stored result.
type SearchMatch struct {
	Index    int    // Result the match is in
	Position int    // Byte offset within the indented payload
	Line     int    // Line number within the indented payload (1-indexed)
	Context  string // The line containing the match
}

// SummaryOptions bounds generated summaries.
type SummaryOptions struct {
	SummaryLength int // Max characters (default: 200)
	SummaryLines  int // Max lines (default: 5)
}

// DefaultSummaryOptions returns sensible defaults.
func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{
		SummaryLength: 200,
		SummaryLines:  5,
	}
}
