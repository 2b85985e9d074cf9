package sequence

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ParseError describes a malformed sequence template. Pos is the byte offset
// of the offending token within the template.
type ParseError struct {
	Pos    int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sequence: %s at offset %d", e.Reason, e.Pos)
}

func parseErr(pos int, format string, args ...any) error {
	return &ParseError{Pos: pos, Reason: fmt.Sprintf(format, args...)}
}

// Modifier prefix characters, KeePass-style.
const (
	prefixShift = '+'
	prefixCtrl  = '^'
	prefixAlt   = '%'
	prefixMeta  = '#'
)

// escapes maps {X} forms that stand for a single literal character.
var escapes = map[string]string{
	"{":     "{",
	"}":     "}",
	"+":     "+",
	"^":     "^",
	"%":     "%",
	"#":     "#",
	"~":     "~",
	"(":     "(",
	")":     ")",
	"PLUS":  "+",
	"CARET": "^",
	"TILDE": "~",
	"AT":    "@",
}

// Parse turns a sequence template into an op tree rooted at a group with no
// modifiers. Literal runs coalesce into single text ops; modifier prefixes
// (+ ^ % #) bind to the next op, or to a parenthesized group. Unknown
// command names are not rejected here: placeholders are the resolver's
// business and unknown keys fail at execution, both with better context than
// the parser has.
func Parse(tmpl string) (Op, error) {
	p := &parser{input: tmpl}
	p.stack = []*Op{{Kind: KindGroup}}

	for p.i < len(tmpl) {
		start := p.i
		r, size := utf8.DecodeRuneInString(tmpl[p.i:])
		switch r {
		case '{':
			if err := p.command(start); err != nil {
				return Op{}, err
			}
		case '~':
			p.flushLiteral()
			p.emit(Command("ENTER", "", p.takeMods()))
			p.i += size
		case prefixShift, prefixCtrl, prefixAlt, prefixMeta:
			p.flushLiteral()
			p.mods |= modifierFor(r)
			p.i += size
		case '(':
			if p.mods != 0 {
				p.flushLiteral()
				p.push(Group(p.takeMods()))
			} else {
				p.literal(r)
			}
			p.i += size
		case ')':
			if len(p.stack) > 1 {
				p.flushLiteral()
				p.pop()
			} else {
				p.literal(r)
			}
			p.i += size
		default:
			if p.mods != 0 {
				// A pending modifier binds to exactly one character.
				p.flushLiteral()
				p.emit(Text(string(r), p.takeMods()))
			} else {
				p.literal(r)
			}
			p.i += size
		}
	}

	p.flushLiteral()
	if p.mods != 0 {
		return Op{}, parseErr(len(tmpl), "dangling modifier prefix")
	}
	if len(p.stack) > 1 {
		return Op{}, parseErr(len(tmpl), "unclosed group")
	}
	return *p.stack[0], nil
}

func modifierFor(r rune) Modifier {
	switch r {
	case prefixShift:
		return ModShift
	case prefixCtrl:
		return ModCtrl
	case prefixAlt:
		return ModAlt
	case prefixMeta:
		return ModMeta
	}
	return 0
}

type parser struct {
	input string
	i     int
	lit   strings.Builder
	mods  Modifier
	stack []*Op
}

func (p *parser) top() *Op { return p.stack[len(p.stack)-1] }

func (p *parser) emit(op Op) {
	t := p.top()
	t.Children = append(t.Children, op)
}

func (p *parser) push(op Op) {
	t := p.top()
	t.Children = append(t.Children, op)
	p.stack = append(p.stack, &t.Children[len(t.Children)-1])
}

func (p *parser) pop() {
	p.stack = p.stack[:len(p.stack)-1]
}

func (p *parser) literal(r rune) {
	p.lit.WriteRune(r)
}

func (p *parser) flushLiteral() {
	if p.lit.Len() == 0 {
		return
	}
	p.emit(Text(p.lit.String(), 0))
	p.lit.Reset()
}

func (p *parser) takeMods() Modifier {
	m := p.mods
	p.mods = 0
	return m
}

// command parses one {...} token starting at the opening brace.
func (p *parser) command(start int) error {
	end := strings.IndexByte(p.input[start+1:], '}')
	if end < 0 {
		return parseErr(start, "unclosed '{'")
	}
	body := p.input[start+1 : start+1+end]
	p.i = start + end + 2

	// {}} closes on the first '}', leaving an empty body with a stray
	// brace behind; treat the three-byte form as the escape it is.
	if body == "" {
		if p.i < len(p.input) && p.input[p.i-1] == '}' && strings.HasPrefix(p.input[p.i:], "}") {
			p.i++
			p.literal('}')
			return nil
		}
		return parseErr(start, "empty command")
	}

	if lit, ok := escapes[body]; ok {
		// Escapes render as plain characters. A pending modifier binds
		// to the escape as its own chord; otherwise the character joins
		// the surrounding literal run and coalesces with it.
		if p.mods != 0 {
			p.flushLiteral()
			p.emit(Text(lit, p.takeMods()))
		} else {
			p.lit.WriteString(lit)
		}
		return nil
	}

	name, arg, err := splitCommand(body, start)
	if err != nil {
		return err
	}
	if err := validateCommand(name, arg, start); err != nil {
		return err
	}

	p.flushLiteral()
	p.emit(Command(name, arg, p.takeMods()))
	return nil
}

// splitCommand separates a command body into name and argument.
// "TAB 2" and "DELAY=150" both split; the '=' form of DELAY keeps the '='
// on the name so the set-default variant stays distinguishable from the
// one-shot pause. "S:Field Name" keeps everything after the colon intact.
func splitCommand(body string, pos int) (name, arg string, err error) {
	upper := strings.ToUpper(body)
	if strings.HasPrefix(upper, "S:") {
		field := strings.TrimSpace(body[2:])
		if field == "" {
			return "", "", parseErr(pos, "custom field reference needs a name")
		}
		return "S:", field, nil
	}
	if eq := strings.IndexByte(body, '='); eq >= 0 {
		name = strings.ToUpper(strings.TrimSpace(body[:eq]))
		arg = strings.TrimSpace(body[eq+1:])
		if name == "" {
			return "", "", parseErr(pos, "empty command name")
		}
		if name == "DELAY" {
			name = "DELAY="
		}
		return name, arg, nil
	}
	if sp := strings.IndexByte(body, ' '); sp >= 0 {
		name = strings.ToUpper(strings.TrimSpace(body[:sp]))
		arg = strings.TrimSpace(body[sp+1:])
		if name == "" {
			return "", "", parseErr(pos, "empty command name")
		}
		return name, arg, nil
	}
	return strings.ToUpper(body), "", nil
}

// Argument bounds. Repeats beyond these are template bugs, not intent.
const (
	maxRepeat  = 1000
	maxDelayMs = 60_000
)

func validateCommand(name, arg string, pos int) error {
	switch name {
	case "DELAY", "DELAY=":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return parseErr(pos, "DELAY needs a non-negative millisecond count, got %q", arg)
		}
		if n > maxDelayMs {
			return parseErr(pos, "DELAY %dms exceeds the %dms limit", n, maxDelayMs)
		}
	case "VKEY":
		if _, err := strconv.Atoi(arg); err != nil {
			return parseErr(pos, "VKEY needs a numeric code, got %q", arg)
		}
	default:
		if arg != "" && IsKeyCommand(name) {
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 {
				return parseErr(pos, "%s repeat count must be a positive integer, got %q", name, arg)
			}
			if n > maxRepeat {
				return parseErr(pos, "%s repeat count %d exceeds the %d limit", name, n, maxRepeat)
			}
		}
	}
	return nil
}
