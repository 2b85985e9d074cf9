package obfuscate

import (
	mathrand "math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"autotyped/internal/sequence"
)

// editor simulates a focused text field: typed runes and pasted clipboard
// content insert at the cursor, arrow keys move it.
type editor struct {
	buf    []rune
	cursor int
	clip   string

	typed  []rune   // keyboard channel transcript
	pasted []string // clipboard channel transcript
}

func (e *editor) insert(runes []rune) {
	e.buf = append(e.buf[:e.cursor], append(append([]rune{}, runes...), e.buf[e.cursor:]...)...)
	e.cursor += len(runes)
}

func (e *editor) apply(t *testing.T, op sequence.Op) {
	t.Helper()
	switch op.Kind {
	case sequence.KindText:
		e.typed = append(e.typed, []rune(op.Literal)...)
		e.insert([]rune(op.Literal))
	case sequence.KindGroup:
		for _, child := range op.Children {
			e.apply(t, child)
		}
	case sequence.KindCommand:
		n := 1
		if op.Arg != "" && op.Name != "CLIPSET" {
			var err error
			n, err = strconv.Atoi(op.Arg)
			require.NoError(t, err, "repeat arg for %s", op.Name)
		}
		switch op.Name {
		case "LEFT":
			e.cursor -= n
			require.GreaterOrEqual(t, e.cursor, 0, "cursor moved before field start")
		case "RIGHT":
			e.cursor += n
			require.LessOrEqual(t, e.cursor, len(e.buf), "cursor moved past field end")
		case "CLIPSET":
			e.clip = op.Arg
			e.pasted = append(e.pasted, op.Arg)
		case "PASTE":
			e.insert([]rune(e.clip))
		default:
			t.Fatalf("unexpected command %q in obfuscated tree", op.Name)
		}
	}
}

func transform(t *testing.T, seed int64, tmpl string) sequence.Op {
	t.Helper()
	root, err := sequence.Parse(tmpl)
	require.NoError(t, err)
	ob := NewWithSource(mathrand.NewSource(seed))
	require.Positive(t, ob.Transform(&root), "no text node was rewritten")
	return root
}

// The transformed sequence must reproduce the original text exactly, for
// any randomness, and leave the cursor at the end of the field.
func TestTransformPreservesText(t *testing.T) {
	texts := []string{
		"ab",
		"s3cret-Passw0rd!",
		"héllо wörld ünïcode",
		strings.Repeat("correct horse battery staple ", 4),
	}
	for _, text := range texts {
		for seed := int64(0); seed < 64; seed++ {
			root, err := sequence.Parse(text)
			require.NoError(t, err)
			ob := NewWithSource(mathrand.NewSource(seed))
			require.Equal(t, 1, ob.Transform(&root))

			ed := &editor{}
			ed.apply(t, root)
			require.Equal(t, text, string(ed.buf), "text %q seed %d", text, seed)
			require.Equal(t, len([]rune(text)), ed.cursor, "cursor parked mid-field, text %q seed %d", text, seed)
		}
	}
}

// Neither channel alone may observe the full secret once the text is long
// enough to split.
func TestTransformUsesBothChannels(t *testing.T) {
	const text = "0123456789abcdefghijklmnopqrstuvwxyz"
	for seed := int64(0); seed < 32; seed++ {
		root := transform(t, seed, text)
		ed := &editor{}
		ed.apply(t, root)

		require.NotEmpty(t, ed.typed, "seed %d: keyboard channel idle", seed)
		require.NotEmpty(t, ed.pasted, "seed %d: clipboard channel idle", seed)
		require.Less(t, len(ed.typed), len(text), "seed %d: keyboard saw everything", seed)
		require.Less(t, len(strings.Join(ed.pasted, "")), len(text), "seed %d: clipboard saw everything", seed)
	}
}

func TestTransformDeterministicUnderSeed(t *testing.T) {
	a := transform(t, 42, "hunter2hunter2")
	b := transform(t, 42, "hunter2hunter2")
	require.Equal(t, a, b)
}

func TestTransformSkipsChords(t *testing.T) {
	root, err := sequence.Parse("^(ab)secret")
	require.NoError(t, err)
	ob := NewWithSource(mathrand.NewSource(1))
	require.Equal(t, 1, ob.Transform(&root))

	chord := root.Children[0]
	require.Equal(t, sequence.KindGroup, chord.Kind)
	require.Equal(t, sequence.ModCtrl, chord.Mods)
	require.Equal(t, "ab", chord.Children[0].Literal, "chord text must not be scrambled")

	require.Equal(t, sequence.KindGroup, root.Children[1].Kind, "plain text must be scrambled")
}

// A sequence of bare commands has no content to scramble; the transform is
// a no-op, not a failure, and the tree comes out untouched.
func TestTransformCommandsOnlyIsNoOp(t *testing.T) {
	root, err := sequence.Parse("{TAB}{ENTER}")
	require.NoError(t, err)
	before := root
	require.Zero(t, New().Transform(&root))
	require.Equal(t, before, root)
}

// Single-character literals stay on the keyboard channel: there is nothing
// to split, and a one-rune paste would hand the clipboard the whole value.
func TestTransformSkipsSingleRuneLiterals(t *testing.T) {
	root, err := sequence.Parse("x{TAB}")
	require.NoError(t, err)
	require.Zero(t, NewWithSource(mathrand.NewSource(1)).Transform(&root))
	require.Equal(t, sequence.Text("x", 0), root.Children[0])
}

func TestTransformKeepsCommands(t *testing.T) {
	root := transform(t, 7, "user{TAB}pass{ENTER}")
	require.Len(t, root.Children, 4)
	require.Equal(t, "TAB", root.Children[1].Name)
	require.Equal(t, "ENTER", root.Children[3].Name)
}

// The masked rendering of an obfuscated tree must not leak chunk text
// through CLIPSET arguments.
func TestTransformMaskedRenderHidesChunks(t *testing.T) {
	const text = "topsecretvalueXYZQ"
	root := transform(t, 3, text)

	masked := root.Render(false)
	for i := 0; i < len(text)-1; i++ {
		require.NotContains(t, masked, text[i:i+2], "masked render leaks %q", text[i:i+2])
	}
	require.Contains(t, root.Render(true), "CLIPSET")
}
