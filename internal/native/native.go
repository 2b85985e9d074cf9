// Package native abstracts the desktop integration points the engine needs:
// reading the focused window, injecting input, the clipboard, and control
// over our own host window. Implementations back onto robotgo and the system
// clipboard; tests substitute fakes.
package native

import (
	"context"
	"fmt"
	"time"

	"autotyped/internal/sequence"
)

// Window is the ambient focus context captured when a trigger fires. URL is
// best-effort (browser integrations can supply it over IPC); native queries
// usually fill only the title.
type Window struct {
	Title string
	URL   string
}

// QueryError reports a failed active-window query. It is non-fatal to a
// trigger: filtering proceeds with an empty Window instead.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("active window query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Adapter reads desktop state.
type Adapter interface {
	// ActiveWindow returns the currently focused window's context.
	ActiveWindow(ctx context.Context) (Window, error)
}

// Typist injects synthetic input into whatever window holds focus.
type Typist interface {
	// TypeText writes literal text, pausing interKey between characters
	// when non-zero.
	TypeText(ctx context.Context, text string, interKey time.Duration) error
	// PressKey taps one canonical key with modifiers held.
	PressKey(ctx context.Context, key string, mods sequence.Modifier) error
	// Paste sends the platform paste chord.
	Paste(ctx context.Context) error
}

// Clipboard reads and writes the system clipboard. The executor snapshots
// it before an obfuscated run and restores it afterwards.
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

// Host controls the application's own window so keystrokes land in the
// target application rather than back in ours.
type Host interface {
	// Focused reports whether the host window holds OS input focus.
	Focused() bool
	// Hide removes the host window from the foreground.
	Hide()
	// Show raises and focuses the host window.
	Show()
}

// NopHost is the headless daemon's host: never focused, nothing to hide.
type NopHost struct{}

func (NopHost) Focused() bool { return false }
func (NopHost) Hide()         {}
func (NopHost) Show()         {}
