// Package autotype is the orchestration core: it owns process-wide run
// state, receives trigger events, and drives the parse, resolve, obfuscate
// and execute stages against the focused window.
//
// Concurrency model: triggers may arrive from any goroutine (hotkey hook,
// IPC connections, store notifications). All engine state lives behind one
// mutex and is mutated only at stage boundaries; the pipeline itself runs
// outside the lock. At most one pipeline is in flight process-wide. A
// trigger that loses the race is dropped and logged, never queued.
package autotype

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"autotyped/internal/entry"
	"autotyped/internal/executor"
	"autotyped/internal/filter"
	"autotyped/internal/native"
	"autotyped/internal/obfuscate"
	"autotyped/internal/resolve"
	"autotyped/internal/sequence"
)

var (
	// ErrBusy rejects a trigger while a run is in flight. Triggers are
	// dropped, not queued.
	ErrBusy = errors.New("autotype: a run is already in progress")

	// ErrSelectionOpen rejects a global trigger while the picker is
	// already showing; pickers never stack.
	ErrSelectionOpen = errors.New("autotype: entry selection already open")

	// ErrDeferred reports that a global trigger was captured and parked
	// until a credential store opens.
	ErrDeferred = errors.New("autotype: trigger deferred until a store is unlocked")

	// ErrNoMatch reports a global trigger that matched no entry.
	ErrNoMatch = errors.New("autotype: no entry matches the focused window")

	// ErrSelfFocus reports a global trigger fired while our own window
	// held focus; there is no target to type into.
	ErrSelfFocus = errors.New("autotype: own window is focused, nothing to type into")

	// ErrCanceled reports that the user dismissed the picker.
	ErrCanceled = errors.New("autotype: selection canceled")
)

// StoreCollection is the engine's view of the vault collection.
type StoreCollection interface {
	HasOpen() bool
	Entries() ([]*entry.Entry, error)
	// SubscribeOpened registers a callback for locked-to-open
	// transitions; the returned cancel must be idempotent.
	SubscribeOpened(fn func()) (cancel func())
}

// Picker lets the user choose between candidate entries. Pick blocks until
// the user decides; ok is false on cancel. Implementations tear the UI down
// before returning, whatever the outcome.
type Picker interface {
	Pick(ctx context.Context, window native.Window, candidates []filter.Candidate) (picked filter.Candidate, ok bool, err error)
}

// Notifier surfaces failures and usage errors to the user.
type Notifier interface {
	Notify(summary, body string)
}

// Trigger is one auto-type request.
type Trigger struct {
	// Entry, when set, names the credential directly and skips window
	// matching.
	Entry *entry.Entry

	// Sequence overrides the entry's template for this run only.
	Sequence string

	// Window is a pre-captured focus context. Nil means "query the
	// adapter now"; browser integrations pass it explicitly.
	Window *native.Window

	// Source labels the origin for logs: "hotkey", "ipc", "replay".
	Source string
}

// Config carries the engine's tunables. Delays are fixed configuration
// constants, never computed.
type Config struct {
	// DefaultSequence is used when an entry defines no override.
	DefaultSequence string

	// HideHostSettle is the pause after hiding our focused window,
	// letting the previous window reliably regain input focus before
	// injection starts.
	HideHostSettle time.Duration

	// FocusHostDelay is the pause before raising our window for a
	// deferred trigger, avoiding stealing focus from the window the
	// trigger captured.
	FocusHostDelay time.Duration

	// MatchTitle and MatchURL enable the weaker candidate heuristics.
	MatchTitle bool
	MatchURL   bool

	// Unmask logs literal text verbatim. Development only.
	Unmask bool
}

// DefaultConfig matches the shipped defaults.
func DefaultConfig() Config {
	return Config{
		DefaultSequence: "{USERNAME}{TAB}{PASSWORD}{ENTER}",
		HideHostSettle:  250 * time.Millisecond,
		FocusHostDelay:  100 * time.Millisecond,
		MatchTitle:      true,
		MatchURL:        true,
	}
}

// Deps wires the engine's collaborators.
type Deps struct {
	Log      *slog.Logger
	Adapter  native.Adapter
	Typist   native.Typist
	Clip     native.Clipboard
	Host     native.Host
	Stores   StoreCollection
	Picker   Picker   // nil: multi-candidate triggers are dropped
	Notifier Notifier // nil: failures are only logged
	Executor executor.Config
}

// Engine is the auto-type orchestrator.
type Engine struct {
	cfg      Config
	log      *slog.Logger
	adapter  native.Adapter
	host     native.Host
	stores   StoreCollection
	picker   Picker
	notifier Notifier

	resolver *resolve.Resolver
	obf      *obfuscate.Obfuscator
	exec     *executor.Executor

	sleep func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	running    bool
	pickerOpen bool
	pending    *pendingTrigger
}

// pendingTrigger is a deferred global trigger: the window context captured
// when it fired, to be replayed once a store opens.
type pendingTrigger struct {
	window native.Window
	cancel func()
}

// New builds an engine. Host, Picker and Notifier may be nil for headless
// operation.
func New(cfg Config, deps Deps) *Engine {
	host := deps.Host
	if host == nil {
		host = native.NopHost{}
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		log:      log,
		adapter:  deps.Adapter,
		host:     host,
		stores:   deps.Stores,
		picker:   deps.Picker,
		notifier: deps.Notifier,
		resolver: &resolve.Resolver{},
		obf:      obfuscate.New(),
		exec:     executor.New(deps.Typist, deps.Clip, deps.Executor),
		sleep:    sleepCtx,
	}
}

// SetPrompt installs the resolution-time prompt for secret custom fields.
func (e *Engine) SetPrompt(fn resolve.PromptFunc) { e.resolver.Prompt = fn }

// HandleTrigger routes one trigger. Direct triggers run the pipeline for
// their entry; entry-less triggers go through window matching. Dropped
// triggers return ErrBusy or ErrSelectionOpen; a deferred capture returns
// ErrDeferred.
func (e *Engine) HandleTrigger(ctx context.Context, t Trigger) error {
	if t.Entry != nil {
		err := e.Run(ctx, t.Entry, t.Sequence)
		if errors.Is(err, ErrBusy) {
			e.log.Info("trigger dropped, run in progress", "source", t.Source, "entry", t.Entry.Title)
		}
		return err
	}
	return e.handleGlobal(ctx, t)
}

func (e *Engine) handleGlobal(ctx context.Context, t Trigger) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.log.Info("global trigger dropped, run in progress", "source", t.Source)
		return ErrBusy
	}
	if e.pickerOpen {
		e.mu.Unlock()
		e.log.Info("global trigger dropped, selection already open", "source", t.Source)
		return ErrSelectionOpen
	}
	e.mu.Unlock()

	win := e.captureWindow(ctx, t)

	if e.host.Focused() {
		e.log.Warn("global trigger with own window focused", "source", t.Source)
		e.notify("Auto-type", "Focus the target window first, then trigger auto-type.")
		return ErrSelfFocus
	}

	if !e.stores.HasOpen() {
		e.deferTrigger(win)
		return ErrDeferred
	}

	return e.matchAndRun(ctx, win)
}

// captureWindow returns the trigger's window context, querying the adapter
// when none was supplied. Query failures are non-fatal: matching proceeds
// with an empty context.
func (e *Engine) captureWindow(ctx context.Context, t Trigger) native.Window {
	if t.Window != nil {
		return *t.Window
	}
	win, err := e.adapter.ActiveWindow(ctx)
	if err != nil {
		var qe *native.QueryError
		if errors.As(err, &qe) {
			e.log.Warn("active window query failed, matching with empty context", "error", err)
			return native.Window{}
		}
		e.log.Warn("active window query failed", "error", err)
		return native.Window{}
	}
	e.log.Debug("captured window context", "title", win.Title, "url", win.URL)
	return win
}

// matchAndRun filters candidates for win and runs zero, one, or the picked
// entry's pipeline.
func (e *Engine) matchAndRun(ctx context.Context, win native.Window) error {
	entries, err := e.stores.Entries()
	if err != nil {
		e.log.Error("listing entries failed", "error", err)
		e.notify("Auto-type failed", err.Error())
		return err
	}

	candidates := filter.Match(filter.Context{Title: win.Title, URL: win.URL}, entries, filter.Options{
		MatchTitle:      e.cfg.MatchTitle,
		MatchURL:        e.cfg.MatchURL,
		DefaultSequence: e.cfg.DefaultSequence,
	})
	e.log.Debug("filtered candidates", "title", win.Title, "count", len(candidates))

	switch len(candidates) {
	case 0:
		e.notify("Auto-type", "No matching entry for the focused window.")
		return ErrNoMatch
	case 1:
		return e.run(ctx, candidates[0].Entry, candidates[0].Sequence)
	default:
		return e.pickAndRun(ctx, win, candidates)
	}
}

func (e *Engine) pickAndRun(ctx context.Context, win native.Window, candidates []filter.Candidate) error {
	if e.picker == nil {
		e.log.Info("multiple candidates but no picker wired, dropping trigger", "count", len(candidates))
		return ErrNoMatch
	}

	e.mu.Lock()
	if e.pickerOpen {
		e.mu.Unlock()
		return ErrSelectionOpen
	}
	e.pickerOpen = true
	e.mu.Unlock()

	picked, ok, err := e.picker.Pick(ctx, win, candidates)

	e.mu.Lock()
	e.pickerOpen = false
	e.mu.Unlock()

	if err != nil {
		e.log.Error("picker failed", "error", err)
		return err
	}
	if !ok {
		e.log.Debug("selection canceled")
		return ErrCanceled
	}
	return e.run(ctx, picked.Entry, picked.Sequence)
}

// Run executes the pipeline for a directly chosen entry. A non-empty
// seqOverride wins over the entry's own template, like an association
// override would.
func (e *Engine) Run(ctx context.Context, ent *entry.Entry, seqOverride string) error {
	return e.run(ctx, ent, ent.EffectiveSequence(seqOverride, e.cfg.DefaultSequence))
}

// run is the pipeline driver: parse, resolve, optional obfuscate, focus
// choreography, execute. The running flag is reset on every exit path so a
// failed run can never block future triggers.
func (e *Engine) run(ctx context.Context, ent *entry.Entry, seq string) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrBusy
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if seq == "" {
		seq = e.cfg.DefaultSequence
	}
	log := e.log.With("run", uuid.NewString(), "entry", ent.Title)
	log.Debug("run started", "sequence", seq)

	root, err := sequence.Parse(seq)
	if err != nil {
		log.Error("parse failed", "error", err)
		e.notify("Auto-type failed", err.Error())
		return err
	}
	log.Debug("parsed", "ops", root.Render(e.cfg.Unmask))

	if err := e.resolver.Resolve(ctx, &root, ent); err != nil {
		log.Error("resolve failed", "error", err)
		e.notify("Auto-type failed", err.Error())
		return err
	}
	log.Debug("resolved", "ops", root.Render(e.cfg.Unmask))

	if ent.AutoType.Obfuscate {
		if n := e.obf.Transform(&root); n == 0 {
			log.Debug("nothing to obfuscate, sequence runs plain")
		} else {
			log.Debug("obfuscated", "ops", root.Render(e.cfg.Unmask))
		}
	}

	if err := e.hideHost(ctx); err != nil {
		return err
	}

	if err := e.exec.Execute(ctx, &root); err != nil {
		log.Error("injection failed", "error", err)
		e.notify("Auto-type failed", err.Error())
		return err
	}
	log.Debug("run finished")
	return nil
}

// Validate previews parse and resolution for an entry and sequence without
// touching engine state or producing side effects. Safe to call while a
// real run is in progress. Returns the rendered op tree, redacted unless
// the unmask flag is set.
func (e *Engine) Validate(ctx context.Context, ent *entry.Entry, seq string) (string, error) {
	if seq == "" {
		seq = ent.EffectiveSequence("", e.cfg.DefaultSequence)
	}
	root, err := sequence.Parse(seq)
	if err != nil {
		return "", err
	}
	// No prompt: validation must never block on or leak to the user.
	r := &resolve.Resolver{}
	if err := r.Resolve(ctx, &root, ent); err != nil {
		return "", err
	}
	return root.Render(e.cfg.Unmask), nil
}

// hideHost implements the focus choreography: when our own window holds
// focus it is hidden and injection waits for the settle delay, giving the
// target window time to regain input focus. An unfocused host adds no
// delay.
func (e *Engine) hideHost(ctx context.Context) error {
	if !e.host.Focused() {
		return nil
	}
	e.host.Hide()
	e.log.Debug("host hidden before injection", "settle", e.cfg.HideHostSettle)
	return e.sleep(ctx, e.cfg.HideHostSettle)
}

// deferTrigger parks a global trigger until a store opens. Only the most
// recent deferred trigger is honored; deferring again replaces the previous
// capture. The host window is raised after a fixed delay so the user can
// unlock a store.
func (e *Engine) deferTrigger(win native.Window) {
	e.mu.Lock()
	if e.pending != nil {
		e.pending.cancel()
	}
	p := &pendingTrigger{window: win}
	p.cancel = e.stores.SubscribeOpened(e.onStoreOpened)
	e.pending = p
	e.mu.Unlock()

	e.log.Info("trigger deferred until a store is unlocked", "title", win.Title)
	time.AfterFunc(e.cfg.FocusHostDelay, e.host.Show)
}

// onStoreOpened consumes the pending trigger, if any, and replays it with
// the originally captured window context. The subscription is always
// released on consumption.
func (e *Engine) onStoreOpened() {
	e.mu.Lock()
	p := e.pending
	e.pending = nil
	e.mu.Unlock()
	if p == nil {
		return
	}
	p.cancel()

	e.log.Info("store opened, replaying deferred trigger", "title", p.window.Title)
	if err := e.matchAndRun(context.Background(), p.window); err != nil {
		e.log.Debug("deferred replay ended", "error", err)
	}
}

// CancelPending drops a deferred trigger. Wired to host window blur and
// close: navigating away from the unlock prompt is a cancellation.
func (e *Engine) CancelPending() {
	e.mu.Lock()
	p := e.pending
	e.pending = nil
	e.mu.Unlock()
	if p == nil {
		return
	}
	p.cancel()
	e.log.Info("deferred trigger canceled", "title", p.window.Title)
}

// State is a point-in-time engine snapshot for status reporting.
type State struct {
	Phase        string `json:"phase"`
	PendingTitle string `json:"pending_title,omitempty"`
}

// Snapshot reports the engine phase: idle, running, awaiting-selection or
// deferred.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := State{Phase: "idle"}
	switch {
	case e.running:
		st.Phase = "running"
	case e.pickerOpen:
		st.Phase = "awaiting-selection"
	case e.pending != nil:
		st.Phase = "deferred"
		st.PendingTitle = e.pending.window.Title
	}
	return st
}

func (e *Engine) notify(summary, body string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(summary, body)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
