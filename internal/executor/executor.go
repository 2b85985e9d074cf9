// Package executor turns a fully resolved op tree into synthetic input.
//
// Execution is the point of no return for a run: once keystrokes start
// there is no undo, so any failure is reported as-is and the caller must
// assume an unknown prefix of the sequence reached the target window.
package executor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"autotyped/internal/native"
	"autotyped/internal/sequence"
)

// Error reports a failed op. Op is the redacted rendering of the node so
// the error is safe to log and surface.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("injection failed at %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config carries the timing constants of a run. All are fixed values from
// configuration, never computed.
type Config struct {
	// InterKeyDelay is the pause between characters of a literal. The
	// {DELAY=n} command overrides it for the rest of the run.
	InterKeyDelay time.Duration
	// PasteSettle is the pause after a paste chord, giving the target
	// application time to consume the clipboard before the next op.
	PasteSettle time.Duration
}

// DefaultConfig matches the shipped defaults.
func DefaultConfig() Config {
	return Config{
		InterKeyDelay: 0,
		PasteSettle:   50 * time.Millisecond,
	}
}

// Executor drives a Typist and Clipboard through op trees. One Executor is
// shared across runs; per-run state (inter-key delay, clipboard snapshot)
// lives on the stack of Execute.
type Executor struct {
	typist native.Typist
	clip   native.Clipboard
	cfg    Config

	// sleep is swapped in tests for virtual time.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an Executor. clip may be nil when obfuscated sequences are
// disabled; hitting a clipboard op without one is an error.
func New(typist native.Typist, clip native.Clipboard, cfg Config) *Executor {
	return &Executor{typist: typist, clip: clip, cfg: cfg, sleep: ctxSleep}
}

// Execute walks root depth-first and injects it. The clipboard is
// snapshotted before the first clipboard op and restored before returning,
// whatever the outcome.
func (ex *Executor) Execute(ctx context.Context, root *sequence.Op) error {
	run := &runState{interKey: ex.cfg.InterKeyDelay}
	err := ex.exec(ctx, run, root, 0)
	if run.clipSaved {
		if restoreErr := ex.clip.Write(run.clipOriginal); restoreErr != nil && err == nil {
			err = &Error{Op: "{CLIPSET}", Err: fmt.Errorf("restore clipboard: %w", restoreErr)}
		}
	}
	return err
}

type runState struct {
	interKey     time.Duration
	clipSaved    bool
	clipOriginal string
}

func (ex *Executor) exec(ctx context.Context, run *runState, op *sequence.Op, inherited sequence.Modifier) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: op.String(), Err: err}
	}
	mods := inherited | op.Mods

	switch op.Kind {
	case sequence.KindGroup:
		for i := range op.Children {
			if err := ex.exec(ctx, run, &op.Children[i], mods); err != nil {
				return err
			}
		}
		return nil

	case sequence.KindText:
		if op.Literal == "" {
			return nil
		}
		if mods != 0 {
			// Modified text is a chord per character, not typed prose.
			for _, r := range op.Literal {
				if err := ex.typist.PressKey(ctx, string(r), mods); err != nil {
					return &Error{Op: op.String(), Err: err}
				}
			}
			return nil
		}
		if err := ex.typist.TypeText(ctx, op.Literal, run.interKey); err != nil {
			return &Error{Op: op.String(), Err: err}
		}
		return nil

	case sequence.KindCommand:
		return ex.command(ctx, run, op, mods)

	default:
		return &Error{Op: op.String(), Err: fmt.Errorf("unknown op kind %d", op.Kind)}
	}
}

func (ex *Executor) command(ctx context.Context, run *runState, op *sequence.Op, mods sequence.Modifier) error {
	if key, ok := sequence.CanonicalKey(op.Name); ok {
		return ex.pressRepeated(ctx, run, op, key, mods)
	}

	switch op.Name {
	case "DELAY":
		ms, err := strconv.Atoi(op.Arg)
		if err != nil {
			return &Error{Op: op.String(), Err: fmt.Errorf("delay argument: %w", err)}
		}
		if err := ex.sleep(ctx, time.Duration(ms)*time.Millisecond); err != nil {
			return &Error{Op: op.String(), Err: err}
		}
		return nil

	case "DELAY=":
		ms, err := strconv.Atoi(op.Arg)
		if err != nil {
			return &Error{Op: op.String(), Err: fmt.Errorf("delay argument: %w", err)}
		}
		run.interKey = time.Duration(ms) * time.Millisecond
		return nil

	case "CLEARFIELD":
		// Home, shift+End to select the line, then delete it.
		for _, press := range []struct {
			key  string
			mods sequence.Modifier
		}{
			{"home", 0},
			{"end", sequence.ModShift},
			{"delete", 0},
		} {
			if err := ex.typist.PressKey(ctx, press.key, press.mods); err != nil {
				return &Error{Op: op.String(), Err: err}
			}
		}
		return nil

	case "CLIPSET":
		if ex.clip == nil {
			return &Error{Op: op.String(), Err: fmt.Errorf("no clipboard backend")}
		}
		if !run.clipSaved {
			orig, err := ex.clip.Read()
			if err != nil {
				// An unreadable clipboard (empty selection on X11)
				// must not abort the run; restore becomes empty.
				orig = ""
			}
			run.clipOriginal = orig
			run.clipSaved = true
		}
		if err := ex.clip.Write(op.Arg); err != nil {
			return &Error{Op: op.String(), Err: err}
		}
		return nil

	case "PASTE":
		if err := ex.typist.Paste(ctx); err != nil {
			return &Error{Op: op.String(), Err: err}
		}
		if err := ex.sleep(ctx, ex.cfg.PasteSettle); err != nil {
			return &Error{Op: op.String(), Err: err}
		}
		return nil

	case "VKEY":
		return &Error{Op: op.String(), Err: fmt.Errorf("raw virtual-key codes are not supported on this platform")}

	default:
		return &Error{Op: op.String(), Err: fmt.Errorf("unknown command %q", op.Name)}
	}
}

func (ex *Executor) pressRepeated(ctx context.Context, run *runState, op *sequence.Op, key string, mods sequence.Modifier) error {
	times := 1
	if op.Arg != "" {
		n, err := strconv.Atoi(op.Arg)
		if err != nil || n < 1 {
			return &Error{Op: op.String(), Err: fmt.Errorf("repeat count %q", op.Arg)}
		}
		times = n
	}
	for i := 0; i < times; i++ {
		if err := ex.typist.PressKey(ctx, key, mods); err != nil {
			return &Error{Op: op.String(), Err: err}
		}
		if run.interKey > 0 && i < times-1 {
			if err := ex.sleep(ctx, run.interKey); err != nil {
				return &Error{Op: op.String(), Err: err}
			}
		}
	}
	return nil
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
