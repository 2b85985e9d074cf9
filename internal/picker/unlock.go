package picker

import (
	"sync"

	"gioui.org/app"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
)

// ShowUnlock raises the unlock prompt for the locked stores. At most one
// unlock window exists at a time; a second call while it shows is a no-op.
func (u *UI) ShowUnlock() {
	if u.unlockFn == nil || u.locked == nil {
		return
	}
	stores := u.locked()
	if len(stores) == 0 {
		return
	}
	u.mu.Lock()
	if u.unlockOpen {
		u.mu.Unlock()
		return
	}
	u.unlockOpen = true
	u.mu.Unlock()
	go u.runUnlock(stores)
}

func (u *UI) runUnlock(stores []string) {
	defer func() {
		u.mu.Lock()
		u.unlockOpen = false
		u.mu.Unlock()
	}()

	w := new(app.Window)
	w.Option(app.Title("Unlock store"))
	w.Option(app.Size(unit.Dp(380), unit.Dp(260)))
	u.add(w)
	defer u.remove(w)

	st := &unlockState{
		ui:     u,
		win:    w,
		stores: stores,
		rows:   make([]widget.Clickable, len(stores)),
	}
	st.pass.SingleLine = true
	st.pass.Submit = true
	st.pass.Mask = '•'

	u.log.Debug("unlock window opened", "stores", len(stores))
	unlocked := st.loop()
	u.log.Debug("unlock window closed", "unlocked", unlocked)

	if !unlocked && u.OnUnlockDismissed != nil {
		u.OnUnlockDismissed()
	}
}

// unlockState is the state of one unlock window. The unlock call runs off
// the frame loop; busy and errText cross goroutines and sit behind mu.
type unlockState struct {
	ui     *UI
	win    *app.Window
	stores []string

	rows     []widget.Clickable
	selected int
	pass     widget.Editor
	submit   widget.Clickable

	mu      sync.Mutex
	busy    bool
	errText string
	done    bool
}

func (st *unlockState) loop() bool {
	var ops op.Ops
	for {
		switch e := st.win.Event().(type) {
		case app.DestroyEvent:
			st.mu.Lock()
			done := st.done
			st.mu.Unlock()
			return done && e.Err == nil
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			st.update(gtx)
			st.layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}

func (st *unlockState) update(gtx layout.Context) {
	for i := range st.rows {
		if st.rows[i].Clicked(gtx) {
			st.selected = i
		}
	}
	for {
		ev, ok := st.pass.Update(gtx)
		if !ok {
			break
		}
		if _, ok := ev.(widget.SubmitEvent); ok {
			st.trySubmit()
		}
	}
	if st.submit.Clicked(gtx) {
		st.trySubmit()
	}
}

// trySubmit runs the unlock off the frame loop: the key derivation takes on
// the order of a second and must not freeze the window.
func (st *unlockState) trySubmit() {
	phrase := st.pass.Text()
	if phrase == "" {
		return
	}
	st.mu.Lock()
	if st.busy {
		st.mu.Unlock()
		return
	}
	st.busy = true
	st.errText = ""
	st.mu.Unlock()

	store := st.stores[st.selected]
	go func() {
		err := st.ui.unlockFn(store, []byte(phrase))
		st.mu.Lock()
		st.busy = false
		if err != nil {
			st.errText = "Wrong passphrase."
			st.mu.Unlock()
			st.ui.log.Info("unlock failed", "store", store, "error", err)
			st.win.Invalidate()
			return
		}
		st.done = true
		st.mu.Unlock()
		st.ui.log.Info("store unlocked", "store", store)
		st.win.Perform(app.ActionClose)
	}()
}

func (st *unlockState) layout(gtx layout.Context) layout.Dimensions {
	th := st.ui.th
	paint.Fill(gtx.Ops, th.Palette.Background)

	st.mu.Lock()
	busy := st.busy
	errText := st.errText
	st.mu.Unlock()

	return layout.UniformInset(th.Metrics.Padding).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				caption := material.Caption(th.Theme, "Unlock a store to continue auto-type")
				caption.Color = th.Palette.TextMuted
				return caption.Layout(gtx)
			}),
			layout.Rigid(layout.Spacer{Height: th.Metrics.Spacing}.Layout),
			layout.Rigid(st.layoutStores),
			layout.Rigid(layout.Spacer{Height: th.Metrics.Spacing}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				border := widget.Border{Color: th.Palette.Border, CornerRadius: th.Metrics.Corner, Width: unit.Dp(1)}
				return border.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
					return layout.UniformInset(th.Metrics.Spacing).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
						ed := material.Editor(th.Theme, &st.pass, "Passphrase")
						ed.Color = th.Palette.Text
						ed.HintColor = th.Palette.TextMuted
						return ed.Layout(gtx)
					})
				})
			}),
			layout.Rigid(layout.Spacer{Height: th.Metrics.Spacing}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				if errText == "" {
					return layout.Dimensions{}
				}
				msg := material.Caption(th.Theme, errText)
				msg.Color = th.Palette.Error
				return msg.Layout(gtx)
			}),
			layout.Rigid(layout.Spacer{Height: th.Metrics.Spacing}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return layout.E.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
					label := "Unlock"
					if busy {
						label = "Unlocking..."
					}
					btn := material.Button(th.Theme, &st.submit, label)
					btn.CornerRadius = th.Metrics.Corner
					return btn.Layout(gtx)
				})
			}),
		)
	})
}

func (st *unlockState) layoutStores(gtx layout.Context) layout.Dimensions {
	th := st.ui.th
	children := make([]layout.FlexChild, 0, len(st.stores))
	for i := range st.stores {
		i := i
		children = append(children, layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return material.Clickable(gtx, &st.rows[i], func(gtx layout.Context) layout.Dimensions {
				gtx.Constraints.Min.X = gtx.Constraints.Max.X
				return layout.UniformInset(th.Metrics.Spacing).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
					name := material.Body1(th.Theme, st.stores[i])
					name.Color = th.Palette.TextMuted
					if i == st.selected {
						name.Color = th.Palette.Accent
					}
					name.MaxLines = 1
					return name.Layout(gtx)
				})
			})
		}))
	}
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx, children...)
}
