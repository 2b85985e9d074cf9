package native

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/go-vgo/robotgo"

	"autotyped/internal/sequence"
)

// Robot implements Adapter and Typist on top of robotgo's synthetic input.
type Robot struct{}

// NewRobot returns the real desktop backend.
func NewRobot() *Robot { return &Robot{} }

// ActiveWindow reads the focused window's title. robotgo cannot see browser
// URLs, so Window.URL stays empty here.
func (r *Robot) ActiveWindow(ctx context.Context) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}
	title := robotgo.GetTitle()
	if title == "" {
		return Window{}, &QueryError{Err: errors.New("no title for focused window")}
	}
	return Window{Title: title}, nil
}

// TypeText injects literal text. With a zero interKey delay the whole string
// goes out in one call; otherwise characters are typed one at a time with
// the pause between them, checking ctx at each step.
func (r *Robot) TypeText(ctx context.Context, text string, interKey time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if interKey <= 0 {
		robotgo.TypeStr(text)
		return nil
	}
	for _, ch := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		robotgo.TypeStr(string(ch))
		time.Sleep(interKey)
	}
	return nil
}

// PressKey taps a canonical key with modifiers held.
func (r *Robot) PressKey(ctx context.Context, key string, mods sequence.Modifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	args := modifierArgs(mods)
	if err := robotgo.KeyTap(key, args...); err != nil {
		return err
	}
	return nil
}

// Paste sends ctrl+V, or cmd+V on macOS.
func (r *Robot) Paste(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mod := "ctrl"
	if runtime.GOOS == "darwin" {
		mod = "cmd"
	}
	return robotgo.KeyTap("v", mod)
}

func modifierArgs(mods sequence.Modifier) []interface{} {
	var args []interface{}
	if mods.Has(sequence.ModCtrl) {
		args = append(args, "ctrl")
	}
	if mods.Has(sequence.ModShift) {
		args = append(args, "shift")
	}
	if mods.Has(sequence.ModAlt) {
		args = append(args, "alt")
	}
	if mods.Has(sequence.ModMeta) {
		args = append(args, "cmd")
	}
	return args
}
