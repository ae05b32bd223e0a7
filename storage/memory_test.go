package storage

import (
	"context"
	"testing"
)

func TestMemoryKVBasicOperations(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	if err := kv.Set(ctx, KeyToken, "session-secret"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, ok, err := kv.Get(ctx, KeyToken)
	if err != nil || !ok || v != "session-secret" {
		t.Errorf("expected 'session-secret', got %q (found=%v, err=%v)", v, ok, err)
	}

	if err := kv.Remove(ctx, KeyToken); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, KeyToken); ok {
		t.Error("expected key removed")
	}
}

func TestMemoryKVKeysEmptySlice(t *testing.T) {
	keys, err := NewMemoryKV().Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if keys == nil || len(keys) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", keys)
	}
}

func TestMemoryKVApplyAndClear(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	err := kv.Apply(ctx, []Write{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "2"},
		{Key: "a", Delete: true},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	keys, _ := kv.Keys(ctx)
	if len(keys) != 1 || keys[0] != "b" {
		t.Errorf("expected [b], got %v", keys)
	}

	kv.Clear()
	keys, _ = kv.Keys(ctx)
	if len(keys) != 0 {
		t.Errorf("expected no keys after Clear, got %v", keys)
	}
}

// plainKV has no batch path, so applyWrites must fall back to single writes.
type plainKV struct {
	*MemoryKV
	sets, removes int
}

func (p *plainKV) Set(ctx context.Context, key, value string) error {
	p.sets++
	return p.MemoryKV.Set(ctx, key, value)
}

func (p *plainKV) Remove(ctx context.Context, key string) error {
	p.removes++
	return p.MemoryKV.Remove(ctx, key)
}

func TestApplyWritesFallback(t *testing.T) {
	p := &plainKV{MemoryKV: NewMemoryKV()}
	// Hide the embedded Apply by wrapping in an interface value that lacks it.
	var kv KVStore = struct {
		KVStore
	}{p}

	err := applyWrites(context.Background(), kv, []Write{
		{Key: "0", Value: "x"},
		{Key: "1", Delete: true},
	})
	if err != nil {
		t.Fatalf("applyWrites failed: %v", err)
	}
	if p.sets != 1 || p.removes != 1 {
		t.Errorf("expected 1 set and 1 remove, got %d and %d", p.sets, p.removes)
	}
}
