// Package picker is the daemon's selection and unlock UI.
//
// Both windows are created on demand and torn down as soon as the user
// decides; the daemon itself stays headless. Window creation requires a
// running gio event loop, so the daemon's main goroutine must hand over to
// app.Main after startup.
package picker

import (
	"context"
	"log/slog"
	"sync"

	"gioui.org/app"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"

	"autotyped/internal/filter"
	"autotyped/internal/native"
)

// UnlockFunc asks the vault layer to unlock one store by name.
type UnlockFunc func(store string, passphrase []byte) error

// LockedStores lists the store names the unlock window offers.
type LockedStores func() []string

// UI owns the picker and unlock windows and doubles as the engine's host
// window handle: Focused/Hide/Show drive the focus choreography around
// injection.
type UI struct {
	log      *slog.Logger
	th       *theme
	unlockFn UnlockFunc
	locked   LockedStores

	// OnUnlockDismissed fires when the unlock window closes without a
	// successful unlock. The engine drops its deferred trigger then.
	OnUnlockDismissed func()

	mu         sync.Mutex
	windows    map[*app.Window]struct{}
	unlockOpen bool
}

// New builds the UI. unlockFn and locked may be nil when no vault layer is
// wired; Show becomes a no-op then.
func New(log *slog.Logger, unlockFn UnlockFunc, locked LockedStores) *UI {
	if log == nil {
		log = slog.Default()
	}
	return &UI{
		log:      log,
		th:       newTheme(),
		unlockFn: unlockFn,
		locked:   locked,
		windows:  make(map[*app.Window]struct{}),
	}
}

func (u *UI) add(w *app.Window) {
	u.mu.Lock()
	u.windows[w] = struct{}{}
	u.mu.Unlock()
}

func (u *UI) remove(w *app.Window) {
	u.mu.Lock()
	delete(u.windows, w)
	u.mu.Unlock()
}

// Focused reports whether one of our windows is on screen. A visible window
// was just raised or interacted with, which is exactly the case injection
// must not race with.
func (u *UI) Focused() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.windows) > 0
}

// Hide closes every open window so the previously focused application
// regains input focus before injection starts.
func (u *UI) Hide() {
	u.mu.Lock()
	open := make([]*app.Window, 0, len(u.windows))
	for w := range u.windows {
		open = append(open, w)
	}
	u.mu.Unlock()
	for _, w := range open {
		w.Perform(app.ActionClose)
	}
}

// Show raises the unlock prompt. Wired to deferred triggers: the user needs
// a way to open a store before the trigger can replay.
func (u *UI) Show() { u.ShowUnlock() }

var _ native.Host = (*UI)(nil)

// Pick opens the selection window and blocks until the user chooses an
// entry, cancels, or ctx ends. The window is gone before Pick returns.
func (u *UI) Pick(ctx context.Context, win native.Window, candidates []filter.Candidate) (filter.Candidate, bool, error) {
	w := new(app.Window)
	w.Option(app.Title("Auto-type"))
	w.Option(app.Size(unit.Dp(440), unit.Dp(360)))
	u.add(w)
	defer u.remove(w)

	stop := context.AfterFunc(ctx, func() { w.Perform(app.ActionClose) })
	defer stop()

	sel := &selection{
		th:     u.th,
		target: win.Title,
		cands:  candidates,
		rows:   make([]widget.Clickable, len(candidates)),
		chosen: -1,
	}
	sel.list.Axis = layout.Vertical

	u.log.Debug("selection window opened", "candidates", len(candidates), "title", win.Title)
	picked, ok, err := sel.loop(w)
	if ctxErr := ctx.Err(); ctxErr != nil && err == nil && !ok {
		err = ctxErr
	}
	u.log.Debug("selection window closed", "picked", ok)
	return picked, ok, err
}

// selection is the state of one picker window.
type selection struct {
	th     *theme
	target string
	cands  []filter.Candidate

	list   widget.List
	rows   []widget.Clickable
	cancel widget.Clickable
	chosen int
}

func (s *selection) loop(w *app.Window) (filter.Candidate, bool, error) {
	var ops op.Ops
	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			if e.Err != nil {
				return filter.Candidate{}, false, e.Err
			}
			if s.chosen >= 0 {
				return s.cands[s.chosen], true, nil
			}
			return filter.Candidate{}, false, nil
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			if s.chosen < 0 {
				for i := range s.rows {
					if s.rows[i].Clicked(gtx) {
						s.chosen = i
						w.Perform(app.ActionClose)
					}
				}
				if s.cancel.Clicked(gtx) {
					w.Perform(app.ActionClose)
				}
			}
			s.layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}

func (s *selection) layout(gtx layout.Context) layout.Dimensions {
	paint.Fill(gtx.Ops, s.th.Palette.Background)

	return layout.UniformInset(s.th.Metrics.Padding).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				caption := material.Caption(s.th.Theme, "Select an entry for")
				caption.Color = s.th.Palette.TextMuted
				return caption.Layout(gtx)
			}),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				title := material.Body1(s.th.Theme, s.target)
				title.Color = s.th.Palette.Text
				title.MaxLines = 1
				return title.Layout(gtx)
			}),
			layout.Rigid(layout.Spacer{Height: s.th.Metrics.Spacing}.Layout),
			layout.Flexed(1, s.layoutRows),
			layout.Rigid(layout.Spacer{Height: s.th.Metrics.Spacing}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return layout.E.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
					btn := material.Button(s.th.Theme, &s.cancel, "Cancel")
					btn.Background = s.th.Palette.Surface
					btn.Color = s.th.Palette.Text
					btn.CornerRadius = s.th.Metrics.Corner
					return btn.Layout(gtx)
				})
			}),
		)
	})
}

func (s *selection) layoutRows(gtx layout.Context) layout.Dimensions {
	return material.List(s.th.Theme, &s.list).Layout(gtx, len(s.cands), func(gtx layout.Context, i int) layout.Dimensions {
		return material.Clickable(gtx, &s.rows[i], func(gtx layout.Context) layout.Dimensions {
			gtx.Constraints.Min.X = gtx.Constraints.Max.X
			inset := layout.Inset{
				Top: s.th.Metrics.Spacing, Bottom: s.th.Metrics.Spacing,
				Left: s.th.Metrics.Spacing, Right: s.th.Metrics.Spacing,
			}
			return inset.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
				ent := s.cands[i].Entry
				return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
					layout.Rigid(func(gtx layout.Context) layout.Dimensions {
						title := material.Body1(s.th.Theme, ent.Title)
						title.Color = s.th.Palette.Text
						title.MaxLines = 1
						return title.Layout(gtx)
					}),
					layout.Rigid(func(gtx layout.Context) layout.Dimensions {
						user := material.Caption(s.th.Theme, ent.Username)
						user.Color = s.th.Palette.TextMuted
						user.MaxLines = 1
						return user.Layout(gtx)
					}),
				)
			})
		})
	})
}
