// Package resolve substitutes placeholder commands in a parsed sequence
// with concrete values from a credential entry.
//
// Substitution happens in place: a placeholder command node becomes a text
// node carrying the field value, keeping the command's modifiers. Values are
// spliced as literals and never re-parsed, so a '{' inside a stored password
// cannot smuggle commands into the run.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"autotyped/internal/entry"
	"autotyped/internal/sequence"
)

// ErrPromptCanceled reports that the user declined a resolution-time prompt.
var ErrPromptCanceled = errors.New("resolution prompt canceled")

// Error describes a failed substitution.
type Error struct {
	Placeholder string
	Reason      string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve {%s}: %s: %v", e.Placeholder, e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve {%s}: %s", e.Placeholder, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// PromptFunc asks the user to approve releasing a protected field into a
// run. Returning false cancels the resolution.
type PromptFunc func(ctx context.Context, entryTitle, fieldName string) (bool, error)

// Resolver rewrites placeholder commands using one entry's fields.
type Resolver struct {
	// Prompt, when non-nil, is consulted before a secret custom field is
	// released. Built-in fields (username, password) never prompt; the
	// user already chose the entry.
	Prompt PromptFunc
}

// Resolve rewrites root in place against ent. After a successful return no
// placeholder command remains anywhere in the tree.
func (r *Resolver) Resolve(ctx context.Context, root *sequence.Op, ent *entry.Entry) error {
	if err := r.resolveOp(ctx, root, ent); err != nil {
		return err
	}

	// The rewrite above is exhaustive; a survivor means a bug or an
	// unknown placeholder that slipped past the name table.
	var leftover string
	root.Walk(func(op *sequence.Op) bool {
		if op.Kind == sequence.KindCommand && IsPlaceholder(op.Name) {
			leftover = op.Name
			return false
		}
		return true
	})
	if leftover != "" {
		return &Error{Placeholder: leftover, Reason: "placeholder left unresolved"}
	}
	return nil
}

func (r *Resolver) resolveOp(ctx context.Context, op *sequence.Op, ent *entry.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch op.Kind {
	case sequence.KindText:
		return nil
	case sequence.KindGroup:
		for i := range op.Children {
			if err := r.resolveOp(ctx, &op.Children[i], ent); err != nil {
				return err
			}
		}
		return nil
	case sequence.KindCommand:
		if !IsPlaceholder(op.Name) {
			return nil
		}
		value, err := r.lookup(ctx, op, ent)
		if err != nil {
			return err
		}
		*op = sequence.Text(value, op.Mods)
		return nil
	default:
		return &Error{Placeholder: op.Name, Reason: fmt.Sprintf("unknown op kind %d", op.Kind)}
	}
}

func (r *Resolver) lookup(ctx context.Context, op *sequence.Op, ent *entry.Entry) (string, error) {
	name := strings.ToUpper(op.Name)
	switch name {
	case "USERNAME", "USER":
		return ent.Username, nil
	case "PASSWORD", "PASS":
		return ent.Password, nil
	case "TITLE":
		return ent.Title, nil
	case "URL":
		return ent.URL, nil
	case "NOTES":
		return ent.Notes, nil
	case "UUID":
		return ent.ID.String(), nil
	case "URL:HOST", "URL:PORT", "URL:SCM", "URL:SCHEME", "URL:PATH", "URL:QUERY":
		return urlPart(name, ent.URL)
	case "S:":
		f, ok := ent.Field(op.Arg)
		if !ok {
			return "", &Error{Placeholder: "S:" + op.Arg, Reason: "entry has no such field"}
		}
		if f.Secret && r.Prompt != nil {
			allowed, err := r.Prompt(ctx, ent.Title, f.Name)
			if err != nil {
				return "", &Error{Placeholder: "S:" + op.Arg, Reason: "prompt failed", Err: err}
			}
			if !allowed {
				return "", &Error{Placeholder: "S:" + op.Arg, Reason: "declined", Err: ErrPromptCanceled}
			}
		}
		return f.Value, nil
	}
	return "", &Error{Placeholder: op.Name, Reason: "unknown placeholder"}
}

// IsPlaceholder reports whether a command name denotes a value to be
// substituted from the entry (as opposed to a key press or timing command).
func IsPlaceholder(name string) bool {
	switch strings.ToUpper(name) {
	case "USERNAME", "USER", "PASSWORD", "PASS", "TITLE", "URL", "NOTES", "UUID",
		"URL:HOST", "URL:PORT", "URL:SCM", "URL:SCHEME", "URL:PATH", "URL:QUERY",
		"S:":
		return true
	}
	return false
}

func urlPart(part, raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &Error{Placeholder: part, Reason: "entry URL does not parse", Err: err}
	}
	switch part {
	case "URL:HOST":
		return u.Hostname(), nil
	case "URL:PORT":
		return u.Port(), nil
	case "URL:SCM", "URL:SCHEME":
		return u.Scheme, nil
	case "URL:PATH":
		return u.Path, nil
	case "URL:QUERY":
		return u.RawQuery, nil
	}
	return "", &Error{Placeholder: part, Reason: "unknown URL part"}
}
