package picker

import (
	"image/color"

	"gioui.org/unit"
	"gioui.org/widget/material"
)

// palette holds the window colors. One dark scheme on every platform; the
// picker is on screen for a couple of seconds, so native chrome matters more
// than native colors.
type palette struct {
	Background color.NRGBA
	Surface    color.NRGBA
	Accent     color.NRGBA
	Text       color.NRGBA
	TextMuted  color.NRGBA
	Border     color.NRGBA
	Error      color.NRGBA
}

// metrics holds the shared spacing and type sizes.
type metrics struct {
	Corner  unit.Dp
	Spacing unit.Dp
	Padding unit.Dp
	Body    unit.Sp
	Caption unit.Sp
}

// theme wraps the material theme with the picker's styling.
type theme struct {
	*material.Theme
	Palette palette
	Metrics metrics
}

func newTheme() *theme {
	t := &theme{Theme: material.NewTheme()}
	t.Palette = palette{
		Background: color.NRGBA{R: 0x1E, G: 0x1E, B: 0x22, A: 0xFF},
		Surface:    color.NRGBA{R: 0x2A, G: 0x2A, B: 0x30, A: 0xFF},
		Accent:     color.NRGBA{R: 0x4C, G: 0x8E, B: 0xD9, A: 0xFF},
		Text:       color.NRGBA{R: 0xEC, G: 0xEC, B: 0xEE, A: 0xFF},
		TextMuted:  color.NRGBA{R: 0x9A, G: 0x9A, B: 0xA2, A: 0xFF},
		Border:     color.NRGBA{R: 0x3C, G: 0x3C, B: 0x44, A: 0xFF},
		Error:      color.NRGBA{R: 0xE5, G: 0x53, B: 0x4B, A: 0xFF},
	}
	t.Metrics = metrics{
		Corner:  unit.Dp(6),
		Spacing: unit.Dp(8),
		Padding: unit.Dp(16),
		Body:    unit.Sp(14),
		Caption: unit.Sp(12),
	}

	t.Theme.Palette.Bg = t.Palette.Background
	t.Theme.Palette.Fg = t.Palette.Text
	t.Theme.Palette.ContrastBg = t.Palette.Accent
	t.Theme.Palette.ContrastFg = t.Palette.Text
	return t
}
