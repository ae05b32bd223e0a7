// Output formatting for CLI commands.
//
// Information Hiding:
// - Palette selection from the persisted theme hidden
// - Raw mode (compact JSON, no decoration) handled in one place

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/richinex/fistop/config"
)

// Palettes for light and dark terminals.
var (
	lightPrimary = lipgloss.Color("#101F38")
	lightAccent  = lipgloss.Color("#5C8A1E")
	lightMuted   = lipgloss.Color("#6A737D")

	darkPrimary = lipgloss.Color("#8BC34A")
	darkAccent  = lipgloss.Color("#4FC3F7")
	darkMuted   = lipgloss.Color("#8C98A8")

	colorError   = lipgloss.Color("#E53935")
	colorWarning = lipgloss.Color("#FFC107")
)

type styles struct {
	header  lipgloss.Style
	index   lipgloss.Style
	current lipgloss.Style
	muted   lipgloss.Style
	match   lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, theme config.Theme) styles {
	primary, accent, muted := lightPrimary, lightAccent, lightMuted
	if theme == config.ThemeDark {
		primary, accent, muted = darkPrimary, darkAccent, darkMuted
	}
	return styles{
		header:  r.NewStyle().Bold(true).Foreground(primary),
		index:   r.NewStyle().Foreground(accent),
		current: r.NewStyle().Bold(true).Foreground(accent),
		muted:   r.NewStyle().Foreground(muted),
		match:   r.NewStyle().Underline(true),
		warn:    r.NewStyle().Foreground(colorWarning),
		err:     r.NewStyle().Bold(true).Foreground(colorError),
	}
}

// printJSON writes v indented, or compact in raw mode.
func (a *App) printJSON(v json.RawMessage) {
	if len(v) == 0 {
		fmt.Fprintln(a.out, "null")
		return
	}
	var buf bytes.Buffer
	if a.raw {
		if err := json.Compact(&buf, v); err != nil {
			fmt.Fprintln(a.out, string(v))
			return
		}
	} else if err := json.Indent(&buf, v, "", "  "); err != nil {
		fmt.Fprintln(a.out, string(v))
		return
	}
	fmt.Fprintln(a.out, buf.String())
}

// printHeader writes a styled heading line. Suppressed in raw mode.
func (a *App) printHeader(format string, args ...any) {
	if a.raw {
		return
	}
	fmt.Fprintln(a.out, a.styles.header.Render(fmt.Sprintf(format, args...)))
}

// printLine writes a plain line. Suppressed in raw mode.
func (a *App) printLine(format string, args ...any) {
	if a.raw {
		return
	}
	fmt.Fprintf(a.out, format+"\n", args...)
}

// warnf writes a warning to the error stream.
func (a *App) warnf(format string, args ...any) {
	fmt.Fprintln(a.errOut, a.styles.warn.Render("Warning: "+fmt.Sprintf(format, args...)))
}

// PrintError writes err to the error stream in the error style.
func (a *App) PrintError(err error) {
	fmt.Fprintln(a.errOut, a.styles.err.Render("Error: "+err.Error()))
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// maskToken keeps the first and last two characters visible.
func maskToken(t string) string {
	if len(t) <= 4 {
		return strings.Repeat("*", len(t))
	}
	return t[:2] + strings.Repeat("*", len(t)-4) + t[len(t)-2:]
}
