package sequence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMasksLiterals(t *testing.T) {
	root, err := Parse("secret{TAB}+x")
	require.NoError(t, err)

	masked := root.Render(false)
	assert.NotContains(t, masked, "secret")
	assert.Contains(t, masked, strings.Repeat(string(MaskRune), len("secret")))
	assert.Contains(t, masked, "{TAB}")
	assert.Contains(t, masked, "<shift>")

	// String() is the masked form.
	assert.Equal(t, masked, root.String())
}

func TestRenderMaskCountsRunes(t *testing.T) {
	op := Text("héllo", 0)
	masked := op.Render(false)
	assert.Equal(t, `"`+strings.Repeat(string(MaskRune), 5)+`"`, masked)
}

func TestRenderUnmasked(t *testing.T) {
	root, err := Parse("secret{TAB}")
	require.NoError(t, err)

	full := root.Render(true)
	assert.Contains(t, full, "secret")
	assert.Contains(t, full, "{TAB}")
}

func TestRenderCommandArgsLegible(t *testing.T) {
	op := Command("DELAY", "150", 0)
	assert.Equal(t, "{DELAY 150}", op.Render(false))

	op = Command("S:", "PIN", ModCtrl)
	assert.Equal(t, "<ctrl>{S: PIN}", op.Render(false))
}

func TestModifierString(t *testing.T) {
	assert.Equal(t, "", Modifier(0).String())
	assert.Equal(t, "shift", ModShift.String())
	assert.Equal(t, "ctrl+shift+alt+meta", (ModShift | ModCtrl | ModAlt | ModMeta).String())
}

func TestCloneIsDeep(t *testing.T) {
	root, err := Parse("+(ab){TAB}")
	require.NoError(t, err)

	cp := root.Clone()
	cp.Children[0].Children[0].Literal = "changed"
	cp.Children[1].Name = "ENTER"

	assert.Equal(t, "ab", root.Children[0].Children[0].Literal)
	assert.Equal(t, "TAB", root.Children[1].Name)
}

func TestWalkVisitsDepthFirst(t *testing.T) {
	root, err := Parse("a+(b{TAB})c")
	require.NoError(t, err)

	var kinds []Kind
	root.Walk(func(op *Op) bool {
		kinds = append(kinds, op.Kind)
		return true
	})
	assert.Equal(t, []Kind{KindGroup, KindText, KindGroup, KindText, KindCommand, KindText}, kinds)
}

func TestWalkStops(t *testing.T) {
	root, err := Parse("abc{TAB}def")
	require.NoError(t, err)

	visited := 0
	root.Walk(func(op *Op) bool {
		visited++
		return visited < 2
	})
	assert.Equal(t, 2, visited)
}

func TestCanonicalKey(t *testing.T) {
	for name, want := range map[string]string{
		"TAB": "tab", "ENTER": "enter", "RETURN": "enter",
		"BKSP": "backspace", "PGDN": "pagedown", "F12": "f12",
	} {
		got, ok := CanonicalKey(name)
		require.True(t, ok, "key %s", name)
		assert.Equal(t, want, got)
	}

	_, ok := CanonicalKey("USERNAME")
	assert.False(t, ok)
}
