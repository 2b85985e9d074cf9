// Package obfuscate implements two-channel auto-type obfuscation.
//
// A resolved sequence normally releases every character through synthetic
// keystrokes, which a keylogger captures in full. The transform here splits
// each text run into chunks, sends some chunks through the keyboard and the
// rest through the clipboard, and emits them out of order with arrow-key
// repositioning. Either channel alone observes an incomplete, scrambled
// fraction of the secret; the focused field still receives the exact
// original text.
package obfuscate

import (
	mathrand "math/rand"
	"strconv"
	"time"
	"unicode/utf8"

	"autotyped/internal/sequence"
)

// maxChunkRunes bounds how much of a secret one channel can observe in a
// single contiguous piece.
const maxChunkRunes = 4

// Obfuscator rewrites resolved sequences for two-channel release.
type Obfuscator struct {
	rng *mathrand.Rand
}

// New returns an Obfuscator with a time-seeded source.
func New() *Obfuscator {
	return NewWithSource(mathrand.NewSource(time.Now().UnixNano()))
}

// NewWithSource injects the randomness source. Tests pass a fixed seed to
// make chunking and ordering reproducible.
func NewWithSource(src mathrand.Source) *Obfuscator {
	return &Obfuscator{rng: mathrand.New(src)}
}

// Transform rewrites root in place. Every unmodified text node becomes a
// group interleaving typed chunks, clipboard-pasted chunks, and cursor
// repositioning. Text carrying modifiers is a chord, not content, and is
// left alone, as is anything under a modifier group and any literal too
// short to split across channels. Returns the number of text nodes
// rewritten; a sequence with nothing to scramble runs as-is.
func (ob *Obfuscator) Transform(root *sequence.Op) int {
	return ob.transformOp(root)
}

func (ob *Obfuscator) transformOp(op *sequence.Op) int {
	switch op.Kind {
	case sequence.KindText:
		if op.Mods != 0 || utf8.RuneCountInString(op.Literal) < 2 {
			return 0
		}
		*op = ob.scramble(op.Literal)
		return 1
	case sequence.KindGroup:
		if op.Mods != 0 {
			return 0
		}
		n := 0
		for i := range op.Children {
			n += ob.transformOp(&op.Children[i])
		}
		return n
	default:
		return 0
	}
}

type chunk struct {
	text  []rune
	paste bool
}

// scramble splits text into chunks, assigns each to a channel, and emits
// them in a random permutation. Before each chunk the cursor is moved to
// the slot where the chunk belongs among the chunks already inserted;
// afterwards it is parked at the end of the full text so following
// sequence ops observe the usual post-typing cursor.
func (ob *Obfuscator) scramble(text string) sequence.Op {
	runes := []rune(text)
	chunks := ob.split(runes)
	order := ob.rng.Perm(len(chunks))

	var ops []sequence.Op
	inserted := make([]bool, len(chunks))
	cursor := 0
	for _, idx := range order {
		target := 0
		for j := 0; j < idx; j++ {
			if inserted[j] {
				target += len(chunks[j].text)
			}
		}
		if target != cursor {
			ops = append(ops, moveOp(target-cursor))
		}
		c := chunks[idx]
		if c.paste {
			ops = append(ops,
				sequence.Command("CLIPSET", string(c.text), 0),
				sequence.Command("PASTE", "", 0),
			)
		} else {
			ops = append(ops, sequence.Text(string(c.text), 0))
		}
		inserted[idx] = true
		cursor = target + len(c.text)
	}
	if cursor < len(runes) {
		ops = append(ops, moveOp(len(runes)-cursor))
	}
	return sequence.Group(0, ops...)
}

func (ob *Obfuscator) split(runes []rune) []chunk {
	var chunks []chunk
	for i := 0; i < len(runes); {
		n := 1 + ob.rng.Intn(maxChunkRunes)
		if i+n > len(runes) {
			n = len(runes) - i
		}
		chunks = append(chunks, chunk{
			text:  runes[i : i+n],
			paste: ob.rng.Intn(2) == 1,
		})
		i += n
	}
	// Both channels must carry something, otherwise a keylogger (or a
	// clipboard sniffer) still sees the whole secret.
	if len(chunks) > 1 {
		allSame := true
		for _, c := range chunks[1:] {
			if c.paste != chunks[0].paste {
				allSame = false
				break
			}
		}
		if allSame {
			chunks[ob.rng.Intn(len(chunks))].paste = !chunks[0].paste
		}
	}
	return chunks
}

// moveOp emits a LEFT or RIGHT press with a repeat count.
func moveOp(delta int) sequence.Op {
	name, n := "RIGHT", delta
	if delta < 0 {
		name, n = "LEFT", -delta
	}
	if n == 1 {
		return sequence.Command(name, "", 0)
	}
	return sequence.Command(name, strconv.Itoa(n), 0)
}
