// Package sequence defines the auto-type op tree and the template parser
// that produces it.
//
// A sequence is a template string such as "{USERNAME}{TAB}{PASSWORD}{ENTER}"
// mixing literal text, key and timing commands, and field placeholders. The
// parser turns it into a tree of ops; later pipeline stages rewrite the tree
// in place (placeholder resolution, obfuscation) before it is executed as
// real keystrokes.
package sequence

import (
	"strings"
)

// Modifier is a bitmask of modifier keys attached to an op.
type Modifier uint8

const (
	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModMeta // Command on macOS, Windows key elsewhere
)

// Has reports whether all bits in f are set.
func (m Modifier) Has(f Modifier) bool { return m&f == f }

// String returns the modifiers in canonical order, e.g. "ctrl+shift".
func (m Modifier) String() string {
	if m == 0 {
		return ""
	}
	parts := make([]string, 0, 4)
	if m.Has(ModCtrl) {
		parts = append(parts, "ctrl")
	}
	if m.Has(ModShift) {
		parts = append(parts, "shift")
	}
	if m.Has(ModAlt) {
		parts = append(parts, "alt")
	}
	if m.Has(ModMeta) {
		parts = append(parts, "meta")
	}
	return strings.Join(parts, "+")
}

// Kind discriminates the op variants.
type Kind uint8

const (
	// KindText types a literal string.
	KindText Kind = iota
	// KindCommand presses a named key, pauses, or marks a placeholder
	// awaiting resolution.
	KindCommand
	// KindGroup applies shared modifiers to an ordered run of child ops.
	KindGroup
)

// String returns the readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindCommand:
		return "command"
	case KindGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Op is one node of a parsed sequence. Exactly the fields belonging to Kind
// are meaningful; everything else stays zero. The tree is owned by a single
// run and is rewritten in place by the resolve and obfuscate stages.
type Op struct {
	Kind Kind
	Mods Modifier

	// Literal is the text to type (KindText).
	Literal string

	// Name and Arg describe a command (KindCommand). Name is upper-case
	// as written in the template; Arg is the raw argument, "" if absent.
	Name string
	Arg  string

	// Children are the ops a group executes in order (KindGroup).
	Children []Op
}

// Text builds a literal op.
func Text(literal string, mods Modifier) Op {
	return Op{Kind: KindText, Mods: mods, Literal: literal}
}

// Command builds a command op.
func Command(name, arg string, mods Modifier) Op {
	return Op{Kind: KindCommand, Mods: mods, Name: name, Arg: arg}
}

// Group builds a group op over children.
func Group(mods Modifier, children ...Op) Op {
	return Op{Kind: KindGroup, Mods: mods, Children: children}
}

// Clone returns a deep copy of the op and its children. Stages that must not
// disturb the caller's tree (validation, previews) operate on a clone.
func (o Op) Clone() Op {
	c := o
	if len(o.Children) > 0 {
		c.Children = make([]Op, len(o.Children))
		for i, ch := range o.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return c
}

// Walk calls fn for the op and every descendant, depth-first. A false return
// from fn stops the walk.
func (o *Op) Walk(fn func(*Op) bool) bool {
	if !fn(o) {
		return false
	}
	for i := range o.Children {
		if !o.Children[i].Walk(fn) {
			return false
		}
	}
	return true
}

// MaskRune replaces every literal character when rendering with secrets
// hidden.
const MaskRune = '*'

// Render returns a loggable form of the tree. With unmask false every
// character of every literal is replaced by MaskRune. Command names,
// modifiers and arguments stay legible, except clipboard payload arguments,
// which hold secret material and are masked like literals.
func (o Op) Render(unmask bool) string {
	var b strings.Builder
	o.render(&b, unmask)
	return b.String()
}

// String renders with literals masked. Safe for logs.
func (o Op) String() string { return o.Render(false) }

// secretArg reports whether a command's argument carries entry material
// rather than a key name or count. The obfuscation stage generates CLIPSET
// ops whose argument is a chunk of a resolved field.
func secretArg(name string) bool { return name == "CLIPSET" }

func (o Op) render(b *strings.Builder, unmask bool) {
	if mods := o.Mods.String(); mods != "" {
		b.WriteString("<")
		b.WriteString(mods)
		b.WriteString(">")
	}
	switch o.Kind {
	case KindText:
		b.WriteString(`"`)
		if unmask {
			b.WriteString(o.Literal)
		} else {
			b.WriteString(strings.Repeat(string(MaskRune), len([]rune(o.Literal))))
		}
		b.WriteString(`"`)
	case KindCommand:
		b.WriteString("{")
		b.WriteString(o.Name)
		if o.Arg != "" {
			b.WriteString(" ")
			if !unmask && secretArg(o.Name) {
				b.WriteString(strings.Repeat(string(MaskRune), len([]rune(o.Arg))))
			} else {
				b.WriteString(o.Arg)
			}
		}
		b.WriteString("}")
	case KindGroup:
		b.WriteString("(")
		for i := range o.Children {
			if i > 0 {
				b.WriteString(" ")
			}
			o.Children[i].render(b, unmask)
		}
		b.WriteString(")")
	}
}
