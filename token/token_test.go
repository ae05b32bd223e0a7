package token

import (
	"context"
	"errors"
	"testing"

	"github.com/richinex/fistop/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager() (*Manager, *storage.MemoryKV, *storage.MemoryKV) {
	session := storage.NewMemoryKV()
	persistent := storage.NewMemoryKV()
	return NewManager(session, persistent), session, persistent
}

func TestPersistentWinsOverSession(t *testing.T) {
	m, _, _ := newManager()
	ctx := context.Background()

	require.NoError(t, m.SetSession(ctx, "a"))
	require.NoError(t, m.SetPersistent(ctx, "b"))

	got, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	tier, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, TierPersistent, tier)
}

func TestSessionUsedWhenPersistentEmpty(t *testing.T) {
	m, _, _ := newManager()
	ctx := context.Background()

	require.NoError(t, m.SetSession(ctx, "a"))

	got, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	persistent, err := m.IsPersistent(ctx)
	require.NoError(t, err)
	assert.False(t, persistent)
}

func TestClearEmptiesBothTiers(t *testing.T) {
	m, session, persistent := newManager()
	ctx := context.Background()

	require.NoError(t, m.SetSession(ctx, "a"))
	require.NoError(t, m.SetPersistent(ctx, "b"))
	require.NoError(t, m.Clear(ctx))

	got, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, ok, _ := session.Get(ctx, storage.KeyToken)
	assert.False(t, ok)
	_, ok, _ = persistent.Get(ctx, storage.KeyToken)
	assert.False(t, ok)

	tier, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, TierNone, tier)
}

func TestSettersTouchOnlyTheirTier(t *testing.T) {
	m, session, persistent := newManager()
	ctx := context.Background()

	require.NoError(t, m.SetPersistent(ctx, "p"))
	v, ok, _ := session.Get(ctx, storage.KeyToken)
	assert.False(t, ok, "session tier written by SetPersistent: %q", v)

	require.NoError(t, m.SetSession(ctx, "s"))
	v, _, _ = persistent.Get(ctx, storage.KeyToken)
	assert.Equal(t, "p", v)

	isPersistent, err := m.IsPersistent(ctx)
	require.NoError(t, err)
	assert.True(t, isPersistent)
}

func TestEmptyPersistentFallsBackToSession(t *testing.T) {
	m, _, persistent := newManager()
	ctx := context.Background()

	require.NoError(t, m.SetSession(ctx, "s"))
	// An empty persistent value left behind by another writer must not win.
	require.NoError(t, persistent.Set(ctx, storage.KeyToken, ""))

	got, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s", got)
}

func TestSetEmptyRemovesKey(t *testing.T) {
	m, session, _ := newManager()
	ctx := context.Background()

	require.NoError(t, m.SetSession(ctx, "s"))
	require.NoError(t, m.SetSession(ctx, ""))

	_, ok, _ := session.Get(ctx, storage.KeyToken)
	assert.False(t, ok)
}

type failingKV struct{ storage.KVStore }

func (failingKV) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func TestReadErrorsAreWrapped(t *testing.T) {
	m := NewManager(storage.NewMemoryKV(), failingKV{storage.NewMemoryKV()})

	_, err := m.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistent token")
}
