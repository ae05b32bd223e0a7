package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/richinex/fistop/storage"
)

// Theme is the rendering palette.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme accepts "light" or "dark" in any case.
func ParseTheme(s string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case ThemeLight:
		return ThemeLight, nil
	case ThemeDark:
		return ThemeDark, nil
	}
	return "", fmt.Errorf("unknown theme: %q (expected light or dark)", s)
}

// Preferences are operator view flags kept in the persistent tier so they
// survive restarts.
type Preferences struct {
	kv storage.KVStore
}

// NewPreferences reads and writes preferences in kv.
func NewPreferences(kv storage.KVStore) *Preferences {
	return &Preferences{kv: kv}
}

// OrderDesc reports whether history is listed newest first.
func (p *Preferences) OrderDesc(ctx context.Context) (bool, error) {
	return p.getBool(ctx, storage.KeyOrderDesc)
}

// SetOrderDesc stores the history order flag.
func (p *Preferences) SetOrderDesc(ctx context.Context, desc bool) error {
	return p.setBool(ctx, storage.KeyOrderDesc, desc)
}

// DetectionDisabled reports whether type detection is switched off.
func (p *Preferences) DetectionDisabled(ctx context.Context) (bool, error) {
	return p.getBool(ctx, storage.KeyDetectionDisabled)
}

// SetDetectionDisabled stores the detection flag.
func (p *Preferences) SetDetectionDisabled(ctx context.Context, disabled bool) error {
	return p.setBool(ctx, storage.KeyDetectionDisabled, disabled)
}

// TermsAccepted reports whether the operator accepted the terms of use.
func (p *Preferences) TermsAccepted(ctx context.Context) (bool, error) {
	return p.getBool(ctx, storage.KeyTermsAccepted)
}

// AcceptTerms records acceptance of the terms of use.
func (p *Preferences) AcceptTerms(ctx context.Context) error {
	return p.setBool(ctx, storage.KeyTermsAccepted, true)
}

// Theme returns the stored theme. Unknown or missing values read as light.
func (p *Preferences) Theme(ctx context.Context) (Theme, error) {
	raw, ok, err := p.kv.Get(ctx, storage.KeyTheme)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", storage.KeyTheme, err)
	}
	if !ok {
		return ThemeLight, nil
	}
	theme, err := ParseTheme(raw)
	if err != nil {
		return ThemeLight, nil
	}
	return theme, nil
}

// SetTheme stores the theme.
func (p *Preferences) SetTheme(ctx context.Context, theme Theme) error {
	if _, err := ParseTheme(string(theme)); err != nil {
		return err
	}
	if err := p.kv.Set(ctx, storage.KeyTheme, string(theme)); err != nil {
		return fmt.Errorf("failed to write %s: %w", storage.KeyTheme, err)
	}
	return nil
}

// BaseURL returns the stored API address override, or "" when unset.
func (p *Preferences) BaseURL(ctx context.Context) (string, error) {
	raw, _, err := p.kv.Get(ctx, storage.KeyBaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", storage.KeyBaseURL, err)
	}
	return raw, nil
}

// SetBaseURL stores an API address override. An empty value removes it.
func (p *Preferences) SetBaseURL(ctx context.Context, u string) error {
	var err error
	if u == "" {
		err = p.kv.Remove(ctx, storage.KeyBaseURL)
	} else {
		err = p.kv.Set(ctx, storage.KeyBaseURL, u)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", storage.KeyBaseURL, err)
	}
	return nil
}

// EffectiveBaseURL returns the override when set, otherwise fallback.
func (p *Preferences) EffectiveBaseURL(ctx context.Context, fallback string) (string, error) {
	u, err := p.BaseURL(ctx)
	if err != nil {
		return "", err
	}
	if u == "" {
		return fallback, nil
	}
	return u, nil
}

// Snapshot is every preference at once.
type Snapshot struct {
	OrderDesc         bool
	DetectionDisabled bool
	Theme             Theme
	BaseURL           string
	TermsAccepted     bool
}

// Snapshot reads every preference.
func (p *Preferences) Snapshot(ctx context.Context) (Snapshot, error) {
	var (
		s   Snapshot
		err error
	)
	if s.OrderDesc, err = p.OrderDesc(ctx); err != nil {
		return Snapshot{}, err
	}
	if s.DetectionDisabled, err = p.DetectionDisabled(ctx); err != nil {
		return Snapshot{}, err
	}
	if s.Theme, err = p.Theme(ctx); err != nil {
		return Snapshot{}, err
	}
	if s.BaseURL, err = p.BaseURL(ctx); err != nil {
		return Snapshot{}, err
	}
	if s.TermsAccepted, err = p.TermsAccepted(ctx); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// getBool treats missing or unparseable values as false.
func (p *Preferences) getBool(ctx context.Context, key string) (bool, error) {
	raw, ok, err := p.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, nil
	}
	return b, nil
}

func (p *Preferences) setBool(ctx context.Context, key string, v bool) error {
	if err := p.kv.Set(ctx, key, strconv.FormatBool(v)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
