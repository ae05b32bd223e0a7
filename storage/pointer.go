package storage

import (
	"context"
	"fmt"
	"strconv"
)

// CurrentPointer names the active result. It persists under KeyCurrent and
// is always written as a canonical non-negative integer. Reads also accept
// leading zeros ("007" is 7); result keys stay canonical-only.
type CurrentPointer struct {
	kv KVStore
}

// NewCurrentPointer creates a pointer over the persistent tier.
func NewCurrentPointer(kv KVStore) *CurrentPointer {
	return &CurrentPointer{kv: kv}
}

// Get returns the last value set, 0 if none was set or the stored value is invalid.
// Errors come only from the underlying tier.
func (p *CurrentPointer) Get(ctx context.Context) (int, error) {
	raw, ok, err := p.kv.Get(ctx, KeyCurrent)
	if err != nil {
		return 0, fmt.Errorf("failed to read current pointer: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, valid := parsePointer(raw)
	if !valid {
		return 0, nil
	}
	return n, nil
}

// Set persists index and returns it. Negative values are stored and returned as 0.
func (p *CurrentPointer) Set(ctx context.Context, index int) (int, error) {
	if index < 0 {
		index = 0
	}
	if err := p.kv.Set(ctx, KeyCurrent, indexKey(index)); err != nil {
		return 0, fmt.Errorf("failed to write current pointer: %w", err)
	}
	return index, nil
}

// SetString parses raw as an index; anything that is not a non-negative
// integer is stored and returned as 0.
func (p *CurrentPointer) SetString(ctx context.Context, raw string) (int, error) {
	n, ok := parsePointer(raw)
	if !ok {
		n = 0
	}
	return p.Set(ctx, n)
}

// parsePointer accepts any run of decimal digits that fits in an int.
func parsePointer(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// remapPointer applies the removal rule for a deletion at removed leaving
// newCount entries: later pointers shift down, a pointer on the removed slot
// stays on that slot clamped into range, earlier pointers are untouched.
func remapPointer(ptr, removed, newCount int) int {
	switch {
	case ptr > removed:
		return ptr - 1
	case ptr == removed:
		if ptr > newCount-1 {
			ptr = newCount - 1
		}
		if ptr < 0 {
			ptr = 0
		}
		return ptr
	default:
		return ptr
	}
}
