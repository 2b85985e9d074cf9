// Package filter selects credential entries whose auto-type configuration
// matches a window title.
package filter

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"autotyped/internal/entry"
)

// Candidate pairs a matched entry with the sequence template its match
// carries. Association matches bring their own template; title and URL
// matches fall back to the entry's effective sequence.
type Candidate struct {
	Entry    *entry.Entry
	Sequence string
}

// Context is the ambient focus a trigger captured. URL is set only when a
// browser integration supplied it; the title is what native queries see.
type Context struct {
	Title string
	URL   string
}

// Options tunes the weaker match heuristics. Association window patterns
// always apply.
type Options struct {
	// MatchTitle includes entries whose title occurs in the window title.
	MatchTitle bool
	// MatchURL includes entries whose URL host matches the context URL,
	// or whose host (or its leading site label) occurs in the window
	// title.
	MatchURL bool
	// DefaultSequence is used when a matched entry defines no override.
	DefaultSequence string
}

// Match returns candidates for a window context ordered strongest first:
// explicit window associations, then title matches, then URL matches. An
// entry appears at most once, under its strongest match. Entries with
// auto-type disabled never match.
func Match(fc Context, entries []*entry.Entry, opts Options) []Candidate {
	var out []Candidate
	seen := make(map[uuid.UUID]struct{})

	add := func(ent *entry.Entry, seq string) {
		if _, dup := seen[ent.ID]; dup {
			return
		}
		seen[ent.ID] = struct{}{}
		out = append(out, Candidate{Entry: ent, Sequence: ent.EffectiveSequence(seq, opts.DefaultSequence)})
	}

	for _, ent := range entries {
		if !ent.AutoType.Enabled {
			continue
		}
		for _, assoc := range ent.AutoType.Associations {
			if WindowMatches(assoc.Window, fc.Title) {
				add(ent, assoc.Sequence)
				break
			}
		}
	}

	if opts.MatchTitle {
		lower := strings.ToLower(fc.Title)
		for _, ent := range entries {
			if !ent.AutoType.Enabled || ent.Title == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(ent.Title)) {
				add(ent, "")
			}
		}
	}

	if opts.MatchURL {
		lowerTitle := strings.ToLower(fc.Title)
		ctxHost := urlHost(fc.URL)
		for _, ent := range entries {
			if !ent.AutoType.Enabled {
				continue
			}
			host := urlHost(ent.URL)
			if host == "" {
				continue
			}
			if (ctxHost != "" && host == ctxHost) || hostInTitle(lowerTitle, host) {
				add(ent, "")
			}
		}
	}

	return out
}

// hostInTitle reports whether a window title mentions the entry's site.
// Browser tabs show page titles, not addresses, so beyond the full host
// the leading label is also tried: "term session" matches an entry for
// term.example.net. Labels under three characters (and "www") are too
// generic to count.
func hostInTitle(title, host string) bool {
	if strings.Contains(title, host) {
		return true
	}
	site := strings.TrimPrefix(host, "www.")
	label, _, found := strings.Cut(site, ".")
	if !found || len(label) < 3 {
		return false
	}
	return strings.Contains(title, label)
}

// WindowMatches reports whether a window association pattern matches a
// title. Patterns are case-insensitive globs: '*' spans any run of
// characters, '?' exactly one.
func WindowMatches(pattern, title string) bool {
	return globMatch(pattern, title)
}

// globMatch compares case-insensitively, rune by rune, and lets '*' cross
// every character, unlike path.Match which stops at separators. Window
// titles routinely contain slashes (browser tabs showing URLs).
func globMatch(pattern, s string) bool {
	for len(pattern) > 0 {
		r, size := utf8.DecodeRuneInString(pattern)
		switch r {
		case '*':
			pattern = pattern[size:]
			// Collapse consecutive stars.
			for strings.HasPrefix(pattern, "*") {
				pattern = pattern[1:]
			}
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(s); {
				if globMatch(pattern, s[i:]) {
					return true
				}
				_, n := utf8.DecodeRuneInString(s[i:])
				if n == 0 {
					break
				}
				i += n
			}
			return false
		case '?':
			if s == "" {
				return false
			}
			_, n := utf8.DecodeRuneInString(s)
			pattern, s = pattern[size:], s[n:]
		default:
			sr, n := utf8.DecodeRuneInString(s)
			if n == 0 || unicode.ToLower(sr) != unicode.ToLower(r) {
				return false
			}
			pattern, s = pattern[size:], s[n:]
		}
	}
	return s == ""
}

func urlHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
