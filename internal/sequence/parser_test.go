package sequence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultLoginSequence(t *testing.T) {
	root, err := Parse("{USERNAME}{TAB}{PASSWORD}{ENTER}")
	require.NoError(t, err)
	require.Len(t, root.Children, 4)

	names := make([]string, 0, 4)
	for _, op := range root.Children {
		require.Equal(t, KindCommand, op.Kind)
		names = append(names, op.Name)
	}
	assert.Equal(t, []string{"USERNAME", "TAB", "PASSWORD", "ENTER"}, names)
}

func TestParseLiteralsCoalesce(t *testing.T) {
	root, err := Parse("hello world")
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	assert.Equal(t, KindText, root.Children[0].Kind)
	assert.Equal(t, "hello world", root.Children[0].Literal)
}

func TestParseMixedLiteralAndCommands(t *testing.T) {
	root, err := Parse("user{TAB}pass~")
	require.NoError(t, err)
	require.Len(t, root.Children, 4)

	assert.Equal(t, Text("user", 0), root.Children[0])
	assert.Equal(t, Command("TAB", "", 0), root.Children[1])
	assert.Equal(t, Text("pass", 0), root.Children[2])
	assert.Equal(t, Command("ENTER", "", 0), root.Children[3])
}

func TestParseModifierPrefixes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Op
	}{
		{"shift on char", "+a", Text("a", ModShift)},
		{"ctrl on command", "^{HOME}", Command("HOME", "", ModCtrl)},
		{"stacked prefixes", "^%{DEL}", Command("DEL", "", ModCtrl|ModAlt)},
		{"meta on char", "#l", Text("l", ModMeta)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := Parse(tt.in)
			require.NoError(t, err)
			require.Len(t, root.Children, 1)
			assert.Equal(t, tt.want, root.Children[0])
		})
	}
}

func TestParseModifierBindsSingleRune(t *testing.T) {
	root, err := Parse("+abc")
	require.NoError(t, err)
	require.Len(t, root.Children, 2)
	assert.Equal(t, Text("a", ModShift), root.Children[0])
	assert.Equal(t, Text("bc", 0), root.Children[1])

	// Multi-byte runes bind whole, not byte by byte.
	root, err = Parse("+é")
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	assert.Equal(t, Text("é", ModShift), root.Children[0])
}

func TestParseModifierGroup(t *testing.T) {
	root, err := Parse("+(abc){TAB}")
	require.NoError(t, err)
	require.Len(t, root.Children, 2)

	grp := root.Children[0]
	require.Equal(t, KindGroup, grp.Kind)
	assert.Equal(t, ModShift, grp.Mods)
	require.Len(t, grp.Children, 1)
	assert.Equal(t, Text("abc", 0), grp.Children[0])

	assert.Equal(t, Command("TAB", "", 0), root.Children[1])
}

func TestParseNestedGroups(t *testing.T) {
	root, err := Parse("^(a+(b))")
	require.NoError(t, err)
	require.Len(t, root.Children, 1)

	outer := root.Children[0]
	require.Equal(t, KindGroup, outer.Kind)
	assert.Equal(t, ModCtrl, outer.Mods)
	require.Len(t, outer.Children, 2)
	assert.Equal(t, Text("a", 0), outer.Children[0])

	inner := outer.Children[1]
	require.Equal(t, KindGroup, inner.Kind)
	assert.Equal(t, ModShift, inner.Mods)
	require.Len(t, inner.Children, 1)
	assert.Equal(t, Text("b", 0), inner.Children[0])
}

func TestParseBareParensAreLiteral(t *testing.T) {
	root, err := Parse("(a)")
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	assert.Equal(t, Text("(a)", 0), root.Children[0])
}

func TestParseEscapes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"{{}", "{"},
		{"{}}", "}"},
		{"{+}", "+"},
		{"{^}", "^"},
		{"{%}", "%"},
		{"{~}", "~"},
		{"{(}", "("},
		{"a{{}b{}}c", "a{b}c"},
		{"a{+}b", "a+b"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			root, err := Parse(tt.in)
			require.NoError(t, err)
			require.Len(t, root.Children, 1)
			assert.Equal(t, Text(tt.want, 0), root.Children[0])
		})
	}
}

func TestParseRepeatAndArgs(t *testing.T) {
	root, err := Parse("{TAB 2}{DELAY 150}{DELAY=25}{VKEY 65}")
	require.NoError(t, err)
	require.Len(t, root.Children, 4)

	assert.Equal(t, Command("TAB", "2", 0), root.Children[0])
	assert.Equal(t, Command("DELAY", "150", 0), root.Children[1])
	assert.Equal(t, Command("DELAY=", "25", 0), root.Children[2])
	assert.Equal(t, Command("VKEY", "65", 0), root.Children[3])
}

func TestParseCustomField(t *testing.T) {
	root, err := Parse("{S:PIN}{S:Security Question}")
	require.NoError(t, err)
	require.Len(t, root.Children, 2)
	assert.Equal(t, Command("S:", "PIN", 0), root.Children[0])
	assert.Equal(t, Command("S:", "Security Question", 0), root.Children[1])
}

func TestParseUnknownCommandPassesThrough(t *testing.T) {
	root, err := Parse("{TOTP}")
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	assert.Equal(t, Command("TOTP", "", 0), root.Children[0])
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		pos  int
	}{
		{"unclosed brace", "abc{TAB", 3},
		{"empty command", "{}", 0},
		{"dangling modifier", "abc+", 4},
		{"unclosed group", "+(ab", 4},
		{"bad repeat", "{TAB x}", 0},
		{"zero repeat", "{TAB 0}", 0},
		{"huge repeat", "{TAB 100000}", 0},
		{"bad delay", "{DELAY soon}", 0},
		{"negative delay", "{DELAY=-1}", 0},
		{"empty field name", "{S: }", 0},
		{"bad vkey", "{VKEY x}", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			require.Error(t, err)

			var perr *ParseError
			require.True(t, errors.As(err, &perr), "want *ParseError, got %T", err)
			assert.Equal(t, tt.pos, perr.Pos)
			assert.NotEmpty(t, perr.Reason)
		})
	}
}

func TestParseEmptyTemplate(t *testing.T) {
	root, err := Parse("")
	require.NoError(t, err)
	assert.Empty(t, root.Children)
	assert.Equal(t, KindGroup, root.Kind)
}
