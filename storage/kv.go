// Package storage provides the key-value tiers and the result history built on them.
//
// Information Hiding:
// - Tier backends (SQLite file, process memory) hidden behind KVStore
// - Dense numeric key convention for results hidden inside ResultStore
// - Multi-key writes batched where the backend supports it
package storage

import (
	"context"
	"errors"
	"strconv"
)

// Fixed keys in the persistent tier. Result entries use the decimal keys "0", "1", ...
const (
	KeyCurrent           = "current"
	KeyOrderDesc         = "order_desc"
	KeyDetectionDisabled = "detection_disabled"
	KeyTheme             = "theme"
	KeyBaseURL           = "base_url"
	KeyToken             = "token"
	KeyTermsAccepted     = "terms_accepted"
)

var (
	// ErrIndexOutOfRange is returned when an index names no stored result.
	ErrIndexOutOfRange = errors.New("result index out of range")
	// ErrMalformedResult is returned when a value is not parseable JSON.
	ErrMalformedResult = errors.New("result is not valid JSON")
)

// KVStore is a string-keyed persistence tier.
type KVStore interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys lists every key currently stored.
	Keys(ctx context.Context) ([]string, error)
}

// Write is one mutation in a batch. Delete wins over Value.
type Write struct {
	Key    string
	Value  string
	Delete bool
}

// Batcher is implemented by tiers that can apply several writes in one sweep.
type Batcher interface {
	Apply(ctx context.Context, writes []Write) error
}

// applyWrites uses the tier's batch path when it has one.
func applyWrites(ctx context.Context, kv KVStore, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	if b, ok := kv.(Batcher); ok {
		return b.Apply(ctx, writes)
	}
	for _, w := range writes {
		var err error
		if w.Delete {
			err = kv.Remove(ctx, w.Key)
		} else {
			err = kv.Set(ctx, w.Key, w.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// parseIndex accepts only canonical non-negative decimal integers ("0", "17"; not "007", "-1", "+3").
func parseIndex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || strconv.Itoa(n) != s {
		return 0, false
	}
	return n, true
}

func indexKey(i int) string {
	return strconv.Itoa(i)
}
