// Package token resolves the API access token from its two storage tiers.
//
// The session tier is expected to forget its contents when the host session
// ends; that guarantee belongs to the KVStore passed in, not to this package.
// When both tiers hold a value the persistent one is authoritative.
package token

import (
	"context"
	"fmt"

	"github.com/richinex/fistop/storage"
)

// Tier names which storage tier a token came from.
type Tier string

const (
	TierNone       Tier = "none"
	TierSession    Tier = "session"
	TierPersistent Tier = "persistent"
)

// Manager reads and writes the token across the session and persistent tiers.
type Manager struct {
	session    storage.KVStore
	persistent storage.KVStore
}

// NewManager creates a manager over the two tiers.
func NewManager(session, persistent storage.KVStore) *Manager {
	return &Manager{
		session:    session,
		persistent: persistent,
	}
}

// Get returns the persistent token if set, else the session token, else "".
func (m *Manager) Get(ctx context.Context) (string, error) {
	value, _, err := m.resolve(ctx)
	return value, err
}

// Status reports which tier the authoritative token comes from.
func (m *Manager) Status(ctx context.Context) (Tier, error) {
	_, tier, err := m.resolve(ctx)
	return tier, err
}

// SetSession writes the session tier only. An empty value clears it.
func (m *Manager) SetSession(ctx context.Context, value string) error {
	return write(ctx, m.session, value, TierSession)
}

// SetPersistent writes the persistent tier only. An empty value clears it.
func (m *Manager) SetPersistent(ctx context.Context, value string) error {
	return write(ctx, m.persistent, value, TierPersistent)
}

// IsPersistent reports whether the persistent tier holds a non-empty token.
func (m *Manager) IsPersistent(ctx context.Context) (bool, error) {
	v, err := read(ctx, m.persistent, TierPersistent)
	return v != "", err
}

// Clear empties both tiers.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.session.Remove(ctx, storage.KeyToken); err != nil {
		return fmt.Errorf("failed to clear session token: %w", err)
	}
	if err := m.persistent.Remove(ctx, storage.KeyToken); err != nil {
		return fmt.Errorf("failed to clear persistent token: %w", err)
	}
	return nil
}

func (m *Manager) resolve(ctx context.Context) (string, Tier, error) {
	v, err := read(ctx, m.persistent, TierPersistent)
	if err != nil {
		return "", TierNone, err
	}
	if v != "" {
		return v, TierPersistent, nil
	}

	v, err = read(ctx, m.session, TierSession)
	if err != nil {
		return "", TierNone, err
	}
	if v != "" {
		return v, TierSession, nil
	}
	return "", TierNone, nil
}

func read(ctx context.Context, kv storage.KVStore, tier Tier) (string, error) {
	v, _, err := kv.Get(ctx, storage.KeyToken)
	if err != nil {
		return "", fmt.Errorf("failed to read %s token: %w", tier, err)
	}
	return v, nil
}

func write(ctx context.Context, kv storage.KVStore, value string, tier Tier) error {
	var err error
	if value == "" {
		err = kv.Remove(ctx, storage.KeyToken)
	} else {
		err = kv.Set(ctx, storage.KeyToken, value)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s token: %w", tier, err)
	}
	return nil
}
