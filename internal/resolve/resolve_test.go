package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"autotyped/internal/entry"
	"autotyped/internal/sequence"
)

func testEntry() *entry.Entry {
	ent := entry.New("Example Login")
	ent.Username = "alice"
	ent.Password = "s3cret{ENTER}"
	ent.URL = "https://vault.example.com:8443/login?next=home"
	ent.Notes = "shared account"
	ent.SetField(entry.Field{Name: "PIN", Value: "0420", Secret: true})
	ent.SetField(entry.Field{Name: "Realm", Value: "corp"})
	return ent
}

func mustParse(t *testing.T, tmpl string) sequence.Op {
	t.Helper()
	root, err := sequence.Parse(tmpl)
	require.NoError(t, err)
	return root
}

func TestResolveDefaultLoginSequence(t *testing.T) {
	root := mustParse(t, "{USERNAME}{TAB}{PASSWORD}{ENTER}")
	r := &Resolver{}
	require.NoError(t, r.Resolve(context.Background(), &root, testEntry()))

	require.Len(t, root.Children, 4)
	require.Equal(t, sequence.Text("alice", 0), root.Children[0])
	require.Equal(t, sequence.KindCommand, root.Children[1].Kind)
	require.Equal(t, sequence.Text("s3cret{ENTER}", 0), root.Children[2])
	require.Equal(t, "ENTER", root.Children[3].Name)
}

// A field value that looks like a command must come out as plain text. The
// splice is literal, never a re-parse.
func TestResolveValueIsNotReparsed(t *testing.T) {
	root := mustParse(t, "{PASSWORD}")
	r := &Resolver{}
	require.NoError(t, r.Resolve(context.Background(), &root, testEntry()))

	got := root.Children[0]
	require.Equal(t, sequence.KindText, got.Kind)
	require.Equal(t, "s3cret{ENTER}", got.Literal)
}

func TestResolveKeepsModifiers(t *testing.T) {
	root := mustParse(t, "^{USERNAME}")
	r := &Resolver{}
	require.NoError(t, r.Resolve(context.Background(), &root, testEntry()))
	require.Equal(t, sequence.ModCtrl, root.Children[0].Mods)
	require.Equal(t, "alice", root.Children[0].Literal)
}

func TestResolveInsideGroup(t *testing.T) {
	root := mustParse(t, "+({USERNAME}{TAB})")
	r := &Resolver{}
	require.NoError(t, r.Resolve(context.Background(), &root, testEntry()))

	grp := root.Children[0]
	require.Equal(t, sequence.KindGroup, grp.Kind)
	require.Equal(t, "alice", grp.Children[0].Literal)
}

func TestResolveURLParts(t *testing.T) {
	for tmpl, want := range map[string]string{
		"{URL:HOST}":  "vault.example.com",
		"{URL:PORT}":  "8443",
		"{URL:SCM}":   "https",
		"{URL:PATH}":  "/login",
		"{URL:QUERY}": "next=home",
	} {
		root := mustParse(t, tmpl)
		r := &Resolver{}
		require.NoError(t, r.Resolve(context.Background(), &root, testEntry()), tmpl)
		require.Equal(t, want, root.Children[0].Literal, tmpl)
	}
}

func TestResolveCustomField(t *testing.T) {
	root := mustParse(t, "{S:Realm}")
	r := &Resolver{}
	require.NoError(t, r.Resolve(context.Background(), &root, testEntry()))
	require.Equal(t, "corp", root.Children[0].Literal)
}

func TestResolveSecretFieldPrompts(t *testing.T) {
	root := mustParse(t, "{S:PIN}")
	var askedField string
	r := &Resolver{Prompt: func(_ context.Context, title, field string) (bool, error) {
		askedField = field
		return true, nil
	}}
	require.NoError(t, r.Resolve(context.Background(), &root, testEntry()))
	require.Equal(t, "PIN", askedField)
	require.Equal(t, "0420", root.Children[0].Literal)
}

func TestResolveSecretFieldDeclined(t *testing.T) {
	root := mustParse(t, "{S:PIN}")
	r := &Resolver{Prompt: func(context.Context, string, string) (bool, error) {
		return false, nil
	}}
	err := r.Resolve(context.Background(), &root, testEntry())
	require.ErrorIs(t, err, ErrPromptCanceled)

	var rErr *Error
	require.ErrorAs(t, err, &rErr)
	require.Equal(t, "S:PIN", rErr.Placeholder)
}

func TestResolveMissingField(t *testing.T) {
	root := mustParse(t, "{S:TOTP}")
	r := &Resolver{}
	err := r.Resolve(context.Background(), &root, testEntry())

	var rErr *Error
	require.ErrorAs(t, err, &rErr)
	require.Equal(t, "S:TOTP", rErr.Placeholder)
}

// Key and timing commands are not placeholders and must survive untouched.
func TestResolveLeavesKeyCommandsAlone(t *testing.T) {
	root := mustParse(t, "{TAB}{DELAY 100}{CLEARFIELD}")
	r := &Resolver{}
	require.NoError(t, r.Resolve(context.Background(), &root, testEntry()))
	for _, child := range root.Children {
		require.Equal(t, sequence.KindCommand, child.Kind)
	}
}

func TestResolveCanceledContext(t *testing.T) {
	root := mustParse(t, "{USERNAME}")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Resolver{}
	err := r.Resolve(ctx, &root, testEntry())
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsPlaceholder(t *testing.T) {
	require.True(t, IsPlaceholder("USERNAME"))
	require.True(t, IsPlaceholder("password"))
	require.True(t, IsPlaceholder("S:"))
	require.False(t, IsPlaceholder("TAB"))
	require.False(t, IsPlaceholder("DELAY"))
	require.False(t, IsPlaceholder("CLEARFIELD"))
}
