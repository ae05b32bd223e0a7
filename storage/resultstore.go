// ResultStore implementation over a KVStore tier.
//
// Architecture:
// - In-memory: arena slice where position == key, plus lazily built SuffixArray for search
// - KVStore: one dense decimal key per entry ("0", "1", ...), written through on every mutation
// - Compaction: one function computes the writes that close gaps after a deletion
package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/richinex/fistop/internal/dsa"
	"go.uber.org/zap"
)

// ResultStore holds the ordered lookup history. Keys always form [0, Count()).
type ResultStore struct {
	mu sync.Mutex

	kv      KVStore
	pointer *CurrentPointer
	logger  *zap.Logger

	entries []json.RawMessage

	// Lazy-built suffix array for search
	searchIndex     *dsa.SuffixArray
	searchContent   string
	searchPositions []searchPosition
	searchDirty     bool
}

// searchPosition maps suffix array positions back to entries.
type searchPosition struct {
	index int
	start int
	end   int
}

// storedEntry is a raw entry as found in the tier during a bulk read.
type storedEntry struct {
	key   int
	value string
}

// OpenResultStore loads the history from kv and repairs it.
// Entries that are not valid JSON are dropped, their keys removed, and the
// remainder compacted to [0, count) with pointer remapped as for RemoveAt.
// A nil logger disables logging.
func OpenResultStore(ctx context.Context, kv KVStore, pointer *CurrentPointer, logger *zap.Logger) (*ResultStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ResultStore{
		kv:          kv,
		pointer:     pointer,
		logger:      logger,
		searchDirty: true,
	}
	if err := s.load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	return s, nil
}

// Append stores value at the next index and returns that index.
func (s *ResultStore) Append(ctx context.Context, value json.RawMessage) (int, error) {
	if !json.Valid(value) {
		return 0, ErrMalformedResult
	}
	copied := make(json.RawMessage, len(value))
	copy(copied, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	index := len(s.entries)
	if err := s.kv.Set(ctx, indexKey(index), string(copied)); err != nil {
		return 0, fmt.Errorf("failed to persist result %d: %w", index, err)
	}
	s.entries = append(s.entries, copied)
	s.searchDirty = true

	s.logger.Debug("result appended", zap.Int("index", index), zap.Int("bytes", len(copied)))
	return index, nil
}

// Get returns the value at index, or nil when nothing is stored there.
func (s *ResultStore) Get(index int) json.RawMessage {
	v, _ := s.Lookup(index)
	return v
}

// Lookup returns the value at index and whether it exists.
func (s *ResultStore) Lookup(index int) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.entries) {
		return nil, false
	}
	return s.entries[index], true
}

// Count returns the number of stored results.
func (s *ResultStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// RemoveAt deletes the entry at index, shifts every later entry down by one
// and remaps the current pointer.
func (s *ResultStore) RemoveAt(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldCount := len(s.entries)
	if index < 0 || index >= oldCount {
		return fmt.Errorf("%w: %d (count %d)", ErrIndexOutOfRange, index, oldCount)
	}

	ptr, err := s.pointer.Get(ctx)
	if err != nil {
		return err
	}

	entries := make([]json.RawMessage, 0, oldCount-1)
	entries = append(entries, s.entries[:index]...)
	entries = append(entries, s.entries[index+1:]...)

	writes := compactionWrites(entries, index, []int{oldCount - 1})
	if err := applyWrites(ctx, s.kv, writes); err != nil {
		return fmt.Errorf("failed to compact results: %w", err)
	}
	s.entries = entries
	s.searchDirty = true

	if next := remapPointer(ptr, index, len(entries)); next != ptr {
		if _, err := s.pointer.Set(ctx, next); err != nil {
			return err
		}
	}

	s.logger.Debug("result removed",
		zap.Int("index", index),
		zap.Int("count", len(entries)),
		zap.Int("pointer_before", ptr))
	return nil
}

// RemoveAll deletes every entry. The current pointer is left as is.
func (s *ResultStore) RemoveAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	writes := make([]Write, 0, len(s.entries))
	for i := range s.entries {
		writes = append(writes, Write{Key: indexKey(i), Delete: true})
	}
	if err := applyWrites(ctx, s.kv, writes); err != nil {
		return fmt.Errorf("failed to clear results: %w", err)
	}
	s.entries = nil
	s.searchDirty = true

	s.logger.Debug("results cleared", zap.Int("removed", len(writes)))
	return nil
}

// Select makes index the current result.
func (s *ResultStore) Select(ctx context.Context, index int) error {
	count := s.Count()
	if index < 0 || index >= count {
		return fmt.Errorf("%w: %d (count %d)", ErrIndexOutOfRange, index, count)
	}
	_, err := s.pointer.Set(ctx, index)
	return err
}

// Current resolves the pointer into the present range and returns the
// index and value it names. With an empty store it returns (0, nil).
func (s *ResultStore) Current(ctx context.Context) (int, json.RawMessage, error) {
	ptr, err := s.pointer.Get(ctx)
	if err != nil {
		return 0, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return 0, nil, nil
	}
	if ptr >= len(s.entries) {
		ptr = len(s.entries) - 1
	}
	return ptr, s.entries[ptr], nil
}

// List returns every entry with metadata in the requested order.
func (s *ResultStore) List(order Order) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := DefaultSummaryOptions()
	out := make([]Entry, len(s.entries))
	for i, v := range s.entries {
		pos := i
		if order == Descending {
			pos = len(s.entries) - 1 - i
		}
		out[pos] = Entry{
			Index:    i,
			Value:    v,
			Metadata: describeResult(v, opts),
		}
	}
	return out
}

// Search finds pattern across the indented form of every stored result.
// limit <= 0 means no limit.
func (s *ResultStore) Search(pattern string, limit int) []SearchMatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.searchDirty {
		s.rebuildSearchIndex()
	}
	if s.searchIndex == nil || len(s.searchContent) == 0 {
		return nil
	}

	var matches []SearchMatch
	for _, pos := range s.searchIndex.Search(pattern) {
		if limit > 0 && len(matches) >= limit {
			break
		}
		i := sort.Search(len(s.searchPositions), func(i int) bool {
			return s.searchPositions[i].end > pos
		})
		if i == len(s.searchPositions) || pos < s.searchPositions[i].start {
			continue
		}
		sp := s.searchPositions[i]
		// Patterns spanning the separator between two entries are not matches.
		if pos+len(pattern) > sp.end {
			continue
		}

		lineStart := strings.LastIndex(s.searchContent[:pos], "\n") + 1
		if lineStart < sp.start {
			lineStart = sp.start
		}
		lineEnd := strings.Index(s.searchContent[pos:], "\n")
		if lineEnd == -1 || pos+lineEnd > sp.end {
			lineEnd = sp.end
		} else {
			lineEnd += pos
		}

		matches = append(matches, SearchMatch{
			Index:    sp.index,
			Position: pos - sp.start,
			Line:     strings.Count(s.searchContent[sp.start:pos], "\n") + 1,
			Context:  s.searchContent[lineStart:lineEnd],
		})
	}
	return matches
}

// load performs the self-healing bulk read.
func (s *ResultStore) load(ctx context.Context) error {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return err
	}

	var stored []storedEntry
	for _, k := range keys {
		n, ok := parseIndex(k)
		if !ok {
			continue
		}
		value, found, err := s.kv.Get(ctx, k)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		stored = append(stored, storedEntry{key: n, value: value})
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].key < stored[j].key })

	ptr, err := s.pointer.Get(ctx)
	if err != nil {
		return err
	}
	// The pointer names a key; translate it to a position in the sorted set.
	ptrPos := ptr
	for i, e := range stored {
		if e.key == ptr {
			ptrPos = i
			break
		}
	}

	entries := make([]json.RawMessage, 0, len(stored))
	keptKeys := make([]int, 0, len(stored))
	var dropped []int
	for i, e := range stored {
		if !json.Valid([]byte(e.value)) {
			dropped = append(dropped, i)
			s.logger.Debug("dropping malformed result", zap.Int("key", e.key))
			continue
		}
		entries = append(entries, json.RawMessage(e.value))
		keptKeys = append(keptKeys, e.key)
	}

	for j := len(dropped) - 1; j >= 0; j-- {
		remaining := len(stored) - (len(dropped) - j)
		ptrPos = remapPointer(ptrPos, dropped[j], remaining)
	}

	from := len(entries)
	for i, k := range keptKeys {
		if k != i {
			from = i
			break
		}
	}
	var stale []int
	for _, e := range stored {
		if e.key >= len(entries) {
			stale = append(stale, e.key)
		}
	}

	if writes := compactionWrites(entries, from, stale); len(writes) > 0 {
		if err := applyWrites(ctx, s.kv, writes); err != nil {
			return fmt.Errorf("failed to compact results: %w", err)
		}
		s.logger.Debug("results compacted on load",
			zap.Int("dropped", len(dropped)),
			zap.Int("count", len(entries)))
	}

	if ptrPos != ptr {
		if _, err := s.pointer.Set(ctx, ptrPos); err != nil {
			return err
		}
	}

	s.entries = entries
	return nil
}

// compactionWrites rewrites entries[from:] at their positional keys and
// deletes every stale key that now lies outside [0, len(entries)).
func compactionWrites(entries []json.RawMessage, from int, stale []int) []Write {
	var writes []Write
	for i := from; i < len(entries); i++ {
		writes = append(writes, Write{Key: indexKey(i), Value: string(entries[i])})
	}
	for _, k := range stale {
		if k >= len(entries) {
			writes = append(writes, Write{Key: indexKey(k), Delete: true})
		}
	}
	return writes
}

// rebuildSearchIndex concatenates indented entries, NUL-separated.
func (s *ResultStore) rebuildSearchIndex() {
	var b strings.Builder
	positions := make([]searchPosition, 0, len(s.entries))

	for i, v := range s.entries {
		start := b.Len()
		b.WriteString(indentResult(v))
		positions = append(positions, searchPosition{index: i, start: start, end: b.Len()})
		b.WriteString("\x00")
	}

	s.searchContent = b.String()
	s.searchPositions = positions
	s.searchIndex = nil
	if len(s.searchContent) > 0 {
		s.searchIndex = dsa.BuildSuffixArray(s.searchContent)
	}
	s.searchDirty = false
}

// Helper functions

func describeResult(v json.RawMessage, opts SummaryOptions) ResultMetadata {
	indented := indentResult(v)
	return ResultMetadata{
		ContentHash: computeContentHash(v),
		Summary:     generateResultSummary(indented, opts),
		LineCount:   countResultLines(indented),
		ByteSize:    len(v),
	}
}

func indentResult(v json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, v, "", "  "); err != nil {
		return string(v)
	}
	return buf.String()
}

// computeContentHash hashes the compact form so formatting does not change it.
func computeContentHash(v json.RawMessage) string {
	var buf bytes.Buffer
	data := []byte(v)
	if err := json.Compact(&buf, v); err == nil {
		data = buf.Bytes()
	}
	h := xxhash.Sum64(data)
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], h)
	return hex.EncodeToString(out[:])
}

func generateResultSummary(content string, opts SummaryOptions) string {
	maxLines := opts.SummaryLines
	if maxLines <= 0 {
		maxLines = 5
	}
	maxLen := opts.SummaryLength
	if maxLen <= 0 {
		maxLen = 200
	}

	var summary strings.Builder
	lineCount := 0
	for _, line := range strings.Split(content, "\n") {
		if lineCount >= maxLines || summary.Len() >= maxLen {
			break
		}
		if summary.Len() > 0 {
			summary.WriteString("\n")
		}
		summary.WriteString(line)
		lineCount++
	}

	out := summary.String()
	if len(out) > maxLen {
		out = out[:maxLen] + "..."
	}
	return out
}

func countResultLines(content string) int {
	if len(content) == 0 {
		return 0
	}
	return strings.Count(content, "\n") + 1
}
