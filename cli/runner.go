// Command execution for CLI commands.
//
// Information Hiding:
// - Token lookup and detection preference applied before dispatch
// - History views built from the result store
// - Output formatting delegated to render.go

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/richinex/fistop/api"
	"github.com/richinex/fistop/config"
	"github.com/richinex/fistop/detect"
	"github.com/richinex/fistop/dispatch"
	extract "github.com/richinex/fistop/internal/json"
	"github.com/richinex/fistop/storage"
	"github.com/richinex/fistop/token"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// listPreviewLen bounds the one-line payload preview in history listings.
	listPreviewLen = 72
	// defaultSearchLimit bounds search output when no limit is given.
	defaultSearchLimit = 50
)

// Lookup classifies input, dispatches it and prints the stored answer.
// selected is a request type or dispatch.Auto.
func (a *App) Lookup(ctx context.Context, input, selected string) error {
	a.warnTerms(ctx)

	tok, err := a.tokens.Get(ctx)
	if err != nil {
		return err
	}
	disabled, err := a.prefs.DetectionDisabled(ctx)
	if err != nil {
		return err
	}
	if selected == "" {
		selected = dispatch.Auto
	}

	out, err := a.dispatcher.Submit(ctx, detect.Detector{Disabled: disabled}, input, strings.ToLower(selected), tok)
	if err != nil {
		return err
	}

	if out.IsList {
		a.printHeader("[%d] %s: %d items", out.Index, out.Type, len(out.Items))
	} else {
		a.printHeader("[%d] %s: %s", out.Index, out.Type, out.Items[0])
	}
	a.printJSON(out.Value)
	return nil
}

// Detect prints the classification of input without sending anything.
func (a *App) Detect(ctx context.Context, input string) error {
	disabled, err := a.prefs.DetectionDisabled(ctx)
	if err != nil {
		return err
	}
	res := detect.Detector{Disabled: disabled}.ClassifyInput(input)

	kind := string(res.Type)
	if kind == "" {
		kind = "none"
	}
	if a.raw {
		fmt.Fprintln(a.out, kind)
		return nil
	}
	shape := "single"
	if res.IsList {
		shape = fmt.Sprintf("list of %d", len(detect.SplitTokens(input)))
	}
	fmt.Fprintf(a.out, "%s %s\n", a.styles.header.Render(kind), a.styles.muted.Render("("+shape+")"))
	if disabled {
		a.printLine("%s", a.styles.muted.Render("detection is disabled"))
	}
	return nil
}

// History lists stored results. order is "asc", "desc" or "" for the saved preference.
func (a *App) History(ctx context.Context, order string) error {
	ord, err := a.resolveOrder(ctx, order)
	if err != nil {
		return err
	}
	current, _, err := a.results.Current(ctx)
	if err != nil {
		return err
	}

	entries := a.results.List(ord)
	if len(entries) == 0 {
		a.printLine("%s", a.styles.muted.Render("No results stored."))
		return nil
	}

	if a.raw {
		data, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("failed to encode history: %w", err)
		}
		fmt.Fprintln(a.out, string(data))
		return nil
	}

	a.printHeader("%d results (%s)", len(entries), ord)
	for _, e := range entries {
		marker := "  "
		idx := a.styles.index.Render(fmt.Sprintf("[%d]", e.Index))
		if e.Index == current {
			marker = "* "
			idx = a.styles.current.Render(fmt.Sprintf("[%d]", e.Index))
		}
		fmt.Fprintf(a.out, "%s%s %s %s\n",
			marker, idx,
			preview(e.Value),
			a.styles.muted.Render(fmt.Sprintf("(%d bytes, %d lines, %s)", e.Metadata.ByteSize, e.Metadata.LineCount, e.Metadata.ContentHash)))
	}
	return nil
}

// Show prints one stored result. A nil index shows the current one.
func (a *App) Show(ctx context.Context, index *int) error {
	if index == nil {
		i, v, err := a.results.Current(ctx)
		if err != nil {
			return err
		}
		if v == nil {
			a.printLine("%s", a.styles.muted.Render("No results stored."))
			return nil
		}
		a.printHeader("[%d] current", i)
		a.printJSON(v)
		return nil
	}

	v, ok := a.results.Lookup(*index)
	if !ok {
		return fmt.Errorf("%w: %d (count %d)", storage.ErrIndexOutOfRange, *index, a.results.Count())
	}
	a.printHeader("[%d]", *index)
	a.printJSON(v)
	return nil
}

// Select makes index the current result.
func (a *App) Select(ctx context.Context, index int) error {
	if err := a.results.Select(ctx, index); err != nil {
		return err
	}
	a.printLine("Selected [%d]", index)
	return nil
}

// Delete removes one stored result.
func (a *App) Delete(ctx context.Context, index int) error {
	if err := a.results.RemoveAt(ctx, index); err != nil {
		return err
	}
	a.printLine("Deleted [%d], %d remaining", index, a.results.Count())
	return nil
}

// Clear removes every stored result. The current pointer is kept unless
// resetPointer is set.
func (a *App) Clear(ctx context.Context, resetPointer bool) error {
	n := a.results.Count()
	if err := a.results.RemoveAll(ctx); err != nil {
		return err
	}
	if resetPointer {
		if _, err := a.pointer.Set(ctx, 0); err != nil {
			return err
		}
	}
	a.printLine("Cleared %d results", n)
	return nil
}

// Add stores a pasted result. Text may be bare JSON, fenced JSON or JSON
// embedded in surrounding prose.
func (a *App) Add(ctx context.Context, text string) error {
	v, err := extract.Extract(text)
	if err != nil {
		return err
	}
	index, err := a.results.Append(ctx, v)
	if err != nil {
		return err
	}
	if err := a.results.Select(ctx, index); err != nil {
		return err
	}
	a.printLine("Stored [%d]", index)
	return nil
}

// Search prints occurrences of pattern across stored results.
func (a *App) Search(ctx context.Context, pattern string, limit int) error {
	if pattern == "" {
		return errors.New("search pattern must not be empty")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	matches := a.results.Search(pattern, limit)
	if len(matches) == 0 {
		a.printLine("%s", a.styles.muted.Render("No matches."))
		return nil
	}
	a.printHeader("%d matches for %q", len(matches), pattern)
	for _, m := range matches {
		line := strings.Replace(m.Context, pattern, a.styles.match.Render(pattern), 1)
		fmt.Fprintf(a.out, "%s:%d  %s\n", a.styles.index.Render(fmt.Sprintf("[%d]", m.Index)), m.Line, strings.TrimSpace(line))
	}
	return nil
}

// TokenSet stores value in the session tier, or the persistent tier when persistent is set.
func (a *App) TokenSet(ctx context.Context, value string, persistent bool) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("token must not be empty")
	}
	if persistent {
		if err := a.tokens.SetPersistent(ctx, value); err != nil {
			return err
		}
		a.printLine("Token saved (persistent)")
		return nil
	}
	if err := a.tokens.SetSession(ctx, value); err != nil {
		return err
	}
	a.printLine("Token saved (session)")

	if persisted, err := a.tokens.IsPersistent(ctx); err == nil && persisted {
		a.warnf("a persistent token is set and takes precedence over the session token")
	}
	return nil
}

// TokenClear removes the token from both tiers.
func (a *App) TokenClear(ctx context.Context) error {
	if err := a.tokens.Clear(ctx); err != nil {
		return err
	}
	a.printLine("Token cleared")
	return nil
}

// TokenStatus reports which tier the effective token comes from.
func (a *App) TokenStatus(ctx context.Context) error {
	tier, err := a.tokens.Status(ctx)
	if err != nil {
		return err
	}
	if tier == token.TierNone {
		fmt.Fprintln(a.out, "No token set")
		return nil
	}
	tok, err := a.tokens.Get(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Token %s (%s)\n", maskToken(tok), tier)
	return nil
}

// Info prints one server information document, or every one for "all".
func (a *App) Info(ctx context.Context, kind string) error {
	tok, err := a.tokens.Get(ctx)
	if err != nil {
		return err
	}
	if kind != "all" {
		res, err := a.client.Info(ctx, tok, api.InfoKind(kind))
		if err != nil {
			return err
		}
		a.printHeader("info: %s", kind)
		a.printJSON(res)
		return nil
	}

	docs := make([]json.RawMessage, len(api.InfoKinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range api.InfoKinds {
		g.Go(func() error {
			res, err := a.client.Info(gctx, tok, k)
			if err != nil {
				return fmt.Errorf("info %s: %w", k, err)
			}
			docs[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, k := range api.InfoKinds {
		a.printHeader("info: %s", k)
		a.printJSON(docs[i])
	}
	return nil
}

// Exec sends one server control command.
func (a *App) Exec(ctx context.Context, cmd string) error {
	tok, err := a.tokens.Get(ctx)
	if err != nil {
		return err
	}
	res, err := a.client.Command(ctx, tok, api.Command(cmd))
	if err != nil {
		return err
	}
	a.printHeader("exec: %s", cmd)
	a.printJSON(res)
	return nil
}

// AdminTokens adds (put) or deletes server-side tokens.
func (a *App) AdminTokens(ctx context.Context, put bool, payload api.TokensPayload) error {
	if payload.IsEmpty() {
		return errors.New("nothing to send: set at least one token field")
	}
	tok, err := a.tokens.Get(ctx)
	if err != nil {
		return err
	}

	var res json.RawMessage
	if put {
		res, err = a.client.PutTokens(ctx, tok, payload)
	} else {
		res, err = a.client.DeleteTokens(ctx, tok, payload)
	}
	if err != nil {
		return err
	}
	a.printJSON(res)
	return nil
}

// PrefsShow prints every preference.
func (a *App) PrefsShow(ctx context.Context) error {
	snap, err := a.prefs.Snapshot(ctx)
	if err != nil {
		return err
	}
	order := storage.Ascending
	if snap.OrderDesc {
		order = storage.Descending
	}
	detection := "on"
	if snap.DetectionDisabled {
		detection = "off"
	}
	baseURL := snap.BaseURL
	if baseURL == "" {
		baseURL = "(settings: " + a.settings.API.BaseURL + ")"
	}

	fmt.Fprintf(a.out, "order      %s\n", order)
	fmt.Fprintf(a.out, "detection  %s\n", detection)
	fmt.Fprintf(a.out, "theme      %s\n", snap.Theme)
	fmt.Fprintf(a.out, "api        %s\n", baseURL)
	fmt.Fprintf(a.out, "terms      %t\n", snap.TermsAccepted)
	return nil
}

// PrefsSet updates one preference by name: order, detection, theme or api.
func (a *App) PrefsSet(ctx context.Context, name, value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(name) {
	case "order":
		switch strings.ToLower(value) {
		case "asc":
			return a.prefs.SetOrderDesc(ctx, false)
		case "desc":
			return a.prefs.SetOrderDesc(ctx, true)
		}
		return fmt.Errorf("invalid order %q (expected asc or desc)", value)
	case "detection":
		switch strings.ToLower(value) {
		case "on":
			return a.prefs.SetDetectionDisabled(ctx, false)
		case "off":
			return a.prefs.SetDetectionDisabled(ctx, true)
		}
		return fmt.Errorf("invalid detection value %q (expected on or off)", value)
	case "theme":
		theme, err := config.ParseTheme(value)
		if err != nil {
			return err
		}
		return a.prefs.SetTheme(ctx, theme)
	case "api":
		if value == "" {
			return a.prefs.SetBaseURL(ctx, "")
		}
		normalized, err := api.NormalizeBaseURL(value)
		if err != nil {
			return err
		}
		return a.prefs.SetBaseURL(ctx, normalized)
	}
	return fmt.Errorf("unknown preference %q (expected order, detection, theme or api)", name)
}

// AcceptTerms records acceptance of the terms of use.
func (a *App) AcceptTerms(ctx context.Context) error {
	if err := a.prefs.AcceptTerms(ctx); err != nil {
		return err
	}
	a.printLine("Terms of use accepted")
	return nil
}

func (a *App) warnTerms(ctx context.Context) {
	accepted, err := a.prefs.TermsAccepted(ctx)
	if err != nil {
		a.logger.Debug("failed to read terms flag", zap.Error(err))
		return
	}
	if !accepted {
		a.logger.Debug("lookup before terms acceptance")
		a.warnf("terms of use not accepted yet; run 'fistop terms accept'")
	}
}

func (a *App) resolveOrder(ctx context.Context, order string) (storage.Order, error) {
	switch strings.ToLower(order) {
	case "asc":
		return storage.Ascending, nil
	case "desc":
		return storage.Descending, nil
	case "":
		desc, err := a.prefs.OrderDesc(ctx)
		if err != nil {
			return storage.Ascending, err
		}
		if desc {
			return storage.Descending, nil
		}
		return storage.Ascending, nil
	}
	return storage.Ascending, fmt.Errorf("invalid order %q (expected asc or desc)", order)
}

// preview renders a stored payload on one line.
func preview(v json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return truncateString(string(v), listPreviewLen)
	}
	return truncateString(buf.String(), listPreviewLen)
}
