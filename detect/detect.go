// Package detect classifies lookup input into a request category.
package detect

import (
	"fmt"
	"regexp"
	"strings"
)

// Type is a detected request category. The zero value means no input or
// detection disabled.
type Type string

const (
	None   Type = ""
	IPv4   Type = "ipv4"
	IPv6   Type = "ipv6"
	SHA256 Type = "sha256"
	MD5    Type = "md5"
	Domain Type = "domain"
	Other  Type = "other"
)

// Types lists every non-empty category in classification order.
var Types = []Type{IPv4, IPv6, SHA256, MD5, Domain, Other}

// Valid reports whether t is one of the non-empty categories.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// ParseType parses a category name, case-insensitively.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return None, fmt.Errorf("unknown request type: %q", s)
	}
	return t, nil
}

const (
	ipv4Octet = `(?:25[0-5]|2[0-4][0-9]|1[0-9][0-9]|[1-9]?[0-9])`
	ipv4Addr  = ipv4Octet + `(?:\.` + ipv4Octet + `){3}`
	hextet    = `[0-9a-fA-F]{1,4}`
)

// Patterns are tried in this order; the first match wins. A 64-character hex
// string is tested before a 32-character one and both before the domain
// pattern so that the more specific tags take precedence.
var patterns = []struct {
	typ Type
	re  *regexp.Regexp
}{
	{IPv4, regexp.MustCompile(`^` + ipv4Addr + `$`)},
	{IPv6, regexp.MustCompile(`^(?:` +
		`(?:` + hextet + `:){7}` + hextet +
		`|(?:` + hextet + `:){1,7}:` +
		`|(?:` + hextet + `:){1,6}:` + hextet +
		`|(?:` + hextet + `:){1,5}(?::` + hextet + `){1,2}` +
		`|(?:` + hextet + `:){1,4}(?::` + hextet + `){1,3}` +
		`|(?:` + hextet + `:){1,3}(?::` + hextet + `){1,4}` +
		`|(?:` + hextet + `:){1,2}(?::` + hextet + `){1,5}` +
		`|` + hextet + `:(?::` + hextet + `){1,6}` +
		`|:(?:(?::` + hextet + `){1,7}|:)` +
		`|[fF][eE]80:(?::[0-9a-fA-F]{0,4}){0,4}%[0-9a-zA-Z]+` +
		`|::(?:[fF]{4}(?::0{1,4})?:)?` + ipv4Addr +
		`|(?:` + hextet + `:){1,4}:` + ipv4Addr +
		`)$`)},
	{SHA256, regexp.MustCompile(`^[0-9a-fA-F]{64}$`)},
	{MD5, regexp.MustCompile(`^[0-9a-fA-F]{32}$`)},
	{Domain, regexp.MustCompile(`(?i)^(?:(?:xn--)?[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+(?:xn--[a-z0-9-]{1,59}|[a-z]{2,63})\.?$`)},
}

// Detector classifies tokens. When Disabled is set every classification
// yields None and callers must supply an explicit category.
type Detector struct {
	Disabled bool
}

// Classify returns the first matching category for a single token, or Other.
func (d Detector) Classify(token string) Type {
	if d.Disabled {
		return None
	}
	for _, p := range patterns {
		if p.re.MatchString(token) {
			return p.typ
		}
	}
	return Other
}

// Result is the outcome of classifying raw operator input.
type Result struct {
	Type   Type
	IsList bool
}

// ClassifyInput splits raw on single spaces and classifies the tokens.
// A list is tagged with its first token's type only when every token has
// exactly that type; any mix collapses to Other.
func (d Detector) ClassifyInput(raw string) Result {
	tokens := SplitTokens(raw)

	switch len(tokens) {
	case 0:
		return Result{Type: None}
	case 1:
		return Result{Type: d.Classify(tokens[0])}
	}

	candidate := d.Classify(tokens[0])
	for _, tok := range tokens[1:] {
		if d.Classify(tok) != candidate {
			return Result{Type: Other, IsList: true}
		}
	}
	return Result{Type: candidate, IsList: true}
}

// SplitTokens splits on single spaces and discards empty tokens.
func SplitTokens(raw string) []string {
	var tokens []string
	for _, tok := range strings.Split(raw, " ") {
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
