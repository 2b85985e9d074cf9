package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"autotyped/internal/entry"
)

func TestWindowMatches(t *testing.T) {
	cases := []struct {
		pattern, title string
		want           bool
	}{
		{"*firefox*", "Login - Mozilla Firefox", true},
		{"*FIREFOX*", "login - mozilla firefox", true},
		{"Login*", "Login - Mozilla Firefox", true},
		{"Login", "Login - Mozilla Firefox", false},
		{"*", "anything at all", true},
		{"**", "anything", true},
		{"?ogin*", "Login - app", true},
		{"*bank*", "My Bänk - Chromium", false},
		{"*bänk*", "My Bänk - Chromium", true},
		{"*example.com/login*", "https://example.com/login - Chromium", true},
		{"", "", true},
		{"", "x", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, WindowMatches(tc.pattern, tc.title),
			"pattern %q title %q", tc.pattern, tc.title)
	}
}

func fixtureEntries() []*entry.Entry {
	mail := entry.New("Webmail")
	mail.URL = "https://mail.example.com"
	mail.AutoType.Associations = []entry.Association{
		{Window: "*Roundcube*", Sequence: "{USERNAME}{ENTER}"},
	}

	bank := entry.New("Bank")
	bank.URL = "https://bank.example.org/login"

	disabled := entry.New("Bank")
	disabled.AutoType.Enabled = false

	return []*entry.Entry{mail, bank, disabled}
}

func TestMatchAssociationWins(t *testing.T) {
	entries := fixtureEntries()
	got := Match(Context{Title: "Roundcube Webmail :: Inbox"}, entries, Options{
		MatchTitle:      true,
		MatchURL:        true,
		DefaultSequence: "{USERNAME}{TAB}{PASSWORD}{ENTER}",
	})

	// "Webmail" also title-matches, but the association already claimed
	// the entry and carries its own sequence.
	require.Len(t, got, 1)
	require.Equal(t, entries[0].ID, got[0].Entry.ID)
	require.Equal(t, "{USERNAME}{ENTER}", got[0].Sequence)
}

func TestMatchTitleSubstring(t *testing.T) {
	entries := fixtureEntries()
	got := Match(Context{Title: "bank of nowhere - browser"}, entries, Options{
		MatchTitle:      true,
		DefaultSequence: "{PASSWORD}{ENTER}",
	})

	require.Len(t, got, 1)
	require.Equal(t, entries[1].ID, got[0].Entry.ID)
	require.Equal(t, "{PASSWORD}{ENTER}", got[0].Sequence)
}

func TestMatchURLHost(t *testing.T) {
	entries := fixtureEntries()
	got := Match(Context{Title: "https://bank.example.org/login - Chromium"}, entries, Options{
		MatchURL:        true,
		DefaultSequence: "{PASSWORD}{ENTER}",
	})

	require.NotEmpty(t, got)
	require.Equal(t, entries[1].ID, got[0].Entry.ID)
}

// A browser-supplied URL matches by host even when the title gives
// nothing away.
func TestMatchContextURL(t *testing.T) {
	entries := fixtureEntries()
	got := Match(Context{Title: "Sign in", URL: "https://bank.example.org/login?session=1"}, entries, Options{
		MatchURL:        true,
		DefaultSequence: "{PASSWORD}{ENTER}",
	})

	require.Len(t, got, 1)
	require.Equal(t, entries[1].ID, got[0].Entry.ID)
}

func TestMatchOrderingAndDedup(t *testing.T) {
	assoc := entry.New("Everything")
	assoc.AutoType.Associations = []entry.Association{{Window: "*term*"}}

	title := entry.New("term")

	urlOnly := entry.New("Other")
	urlOnly.URL = "https://term.example.net"

	got := Match(Context{Title: "term session"}, []*entry.Entry{urlOnly, title, assoc}, Options{
		MatchTitle:      true,
		MatchURL:        true,
		DefaultSequence: "{PASSWORD}",
	})

	require.Len(t, got, 3)
	require.Equal(t, assoc.ID, got[0].Entry.ID)
	require.Equal(t, title.ID, got[1].Entry.ID)
	require.Equal(t, urlOnly.ID, got[2].Entry.ID)
}

// Tab titles name the site, not the address: the host's leading label is
// enough for a URL match, but labels too short to be distinctive are not.
func TestMatchURLLabelInTitle(t *testing.T) {
	site := entry.New("Forum")
	site.URL = "https://www.forum.example.net/latest"

	short := entry.New("Short")
	short.URL = "https://go.example.net"

	got := Match(Context{Title: "forum go live thread"}, []*entry.Entry{site, short}, Options{
		MatchURL:        true,
		DefaultSequence: "{PASSWORD}",
	})

	require.Len(t, got, 1)
	require.Equal(t, site.ID, got[0].Entry.ID)
}

func TestMatchSkipsDisabled(t *testing.T) {
	entries := fixtureEntries()
	got := Match(Context{Title: "Bank"}, entries, Options{MatchTitle: true})
	for _, c := range got {
		require.True(t, c.Entry.AutoType.Enabled)
	}
}

func TestMatchEntrySequenceOverride(t *testing.T) {
	ent := entry.New("Console")
	ent.AutoType.Sequence = "{PASSWORD}{ENTER}"
	got := Match(Context{Title: "console window"}, []*entry.Entry{ent}, Options{
		MatchTitle:      true,
		DefaultSequence: "{USERNAME}{TAB}{PASSWORD}{ENTER}",
	})
	require.Len(t, got, 1)
	require.Equal(t, "{PASSWORD}{ENTER}", got[0].Sequence)
}

func TestMatchHeuristicsOff(t *testing.T) {
	entries := fixtureEntries()
	got := Match(Context{Title: "bank.example.org - bank of nowhere"}, entries, Options{})
	require.Empty(t, got)
}
