package storage

import (
	"context"
	"testing"
)

func TestCurrentPointerDefaultsToZero(t *testing.T) {
	p := NewCurrentPointer(NewMemoryKV())

	got, err := p.Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != 0 {
		t.Errorf("expected default 0, got %d", got)
	}
}

func TestCurrentPointerSetAndGet(t *testing.T) {
	p := NewCurrentPointer(NewMemoryKV())
	ctx := context.Background()

	set, err := p.Set(ctx, 7)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if set != 7 {
		t.Errorf("expected Set to return 7, got %d", set)
	}
	got, _ := p.Get(ctx)
	if got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}

func TestCurrentPointerClampsNegative(t *testing.T) {
	kv := NewMemoryKV()
	p := NewCurrentPointer(kv)
	ctx := context.Background()

	set, err := p.Set(ctx, -3)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if set != 0 {
		t.Errorf("expected 0, got %d", set)
	}
	raw, _, _ := kv.Get(ctx, KeyCurrent)
	if raw != "0" {
		t.Errorf("expected persisted '0', got %q", raw)
	}
}

func TestCurrentPointerSetString(t *testing.T) {
	p := NewCurrentPointer(NewMemoryKV())
	ctx := context.Background()

	for input, want := range map[string]int{
		"4":   4,
		"abc": 0,
		"-1":  0,
		"1.5": 0,
		"":    0,
		"+2":  0,
		"007": 7,
		"00":  0,
	} {
		got, err := p.SetString(ctx, input)
		if err != nil {
			t.Fatalf("SetString(%q) failed: %v", input, err)
		}
		if got != want {
			t.Errorf("SetString(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestCurrentPointerCoercesCorruptValue(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	if err := kv.Set(ctx, KeyCurrent, "NaN"); err != nil {
		t.Fatal(err)
	}

	got, err := NewCurrentPointer(kv).Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != 0 {
		t.Errorf("expected corrupt value to read as 0, got %d", got)
	}
}

func TestRemapPointer(t *testing.T) {
	tests := []struct {
		ptr, removed, newCount, want int
	}{
		{0, 1, 2, 0},
		{2, 1, 2, 1},
		{1, 1, 2, 1},
		{2, 2, 2, 1},
		{0, 0, 0, 0},
	}
	for _, tt := range tests {
		if got := remapPointer(tt.ptr, tt.removed, tt.newCount); got != tt.want {
			t.Errorf("remapPointer(%d, %d, %d) = %d, want %d", tt.ptr, tt.removed, tt.newCount, got, tt.want)
		}
	}
}

func TestCurrentPointerReadsLeadingZeros(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	if err := kv.Set(ctx, KeyCurrent, "007"); err != nil {
		t.Fatal(err)
	}

	p := NewCurrentPointer(kv)
	got, err := p.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != 7 {
		t.Errorf("expected 7, got %d", got)
	}

	if _, err := p.Set(ctx, got); err != nil {
		t.Fatal(err)
	}
	raw, _, _ := kv.Get(ctx, KeyCurrent)
	if raw != "7" {
		t.Errorf("expected canonical '7' after Set, got %q", raw)
	}
}
