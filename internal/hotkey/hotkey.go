// Package hotkey binds the global auto-type chord to an engine trigger.
//
// The hook taps the platform event stream, so the callback must never block:
// triggers are handed off to their own goroutine and the engine's own
// single-flight gate decides whether they run.
package hotkey

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	hook "github.com/robotn/gohook"
)

// DefaultChord is the shipped global trigger.
const DefaultChord = "ctrl+alt+t"

// debounce swallows the keydown bursts some platforms deliver while the
// chord is held.
const debounce = 250 * time.Millisecond

// modifierAliases maps config spellings to the names the hook understands.
var modifierAliases = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"shift":   "shift",
	"alt":     "alt",
	"cmd":     "cmd",
	"meta":    "cmd",
	"super":   "cmd",
	"win":     "cmd",
}

// ParseChord splits a "+"-separated chord like "ctrl+alt+t" into the token
// list the hook registers. At least one non-modifier key is required and it
// must come last; modifiers may appear in any order.
func ParseChord(chord string) ([]string, error) {
	raw := strings.Split(chord, "+")
	tokens := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	key := ""
	for _, tok := range raw {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			return nil, fmt.Errorf("hotkey: empty token in chord %q", chord)
		}
		if mod, ok := modifierAliases[tok]; ok {
			if key != "" {
				return nil, fmt.Errorf("hotkey: modifier %q after key in chord %q", tok, chord)
			}
			if seen[mod] {
				return nil, fmt.Errorf("hotkey: duplicate modifier %q in chord %q", mod, chord)
			}
			seen[mod] = true
			tokens = append(tokens, mod)
			continue
		}
		if key != "" {
			return nil, fmt.Errorf("hotkey: more than one key in chord %q", chord)
		}
		key = tok
	}
	if key == "" {
		return nil, fmt.Errorf("hotkey: chord %q has no non-modifier key", chord)
	}
	// The hook wants the key first, modifiers after.
	return append([]string{key}, tokens...), nil
}

// Listener owns one registered chord. The underlying hook is process-global,
// so at most one Listener may be started at a time.
type Listener struct {
	log    *slog.Logger
	tokens []string
	fire   func()

	mu       sync.Mutex
	lastFire time.Time
	started  bool
}

// New builds a listener for chord. fire runs on its own goroutine per
// trigger.
func New(chord string, log *slog.Logger, fire func()) (*Listener, error) {
	tokens, err := ParseChord(chord)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Listener{log: log, tokens: tokens, fire: fire}, nil
}

// Start taps the event stream and registers the chord. The returned stop
// unhooks and waits for the event loop to drain.
func (l *Listener) Start() (stop func(), err error) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return nil, fmt.Errorf("hotkey: listener already started")
	}
	l.started = true
	l.mu.Unlock()

	hook.Register(hook.KeyDown, l.tokens, func(ev hook.Event) {
		if !l.gate() {
			return
		}
		l.log.Debug("hotkey chord pressed", "chord", strings.Join(l.tokens, "+"), "rawcode", ev.Rawcode)
		go l.fire()
	})

	evChan := hook.Start()
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-hook.Process(evChan)
	}()

	l.log.Info("global hotkey registered", "chord", strings.Join(l.tokens, "+"))
	return func() {
		hook.End()
		<-done
		l.mu.Lock()
		l.started = false
		l.mu.Unlock()
	}, nil
}

// gate drops chord repeats within the debounce window.
func (l *Listener) gate() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if !l.lastFire.IsZero() && now.Sub(l.lastFire) < debounce {
		return false
	}
	l.lastFire = now
	return true
}
