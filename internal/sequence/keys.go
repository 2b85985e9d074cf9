package sequence

import "strings"

// keyNames maps template command names (upper case) to the canonical key
// identifiers the injection layer understands. Aliases map to the same key.
var keyNames = map[string]string{
	"TAB":       "tab",
	"ENTER":     "enter",
	"RETURN":    "enter",
	"SPACE":     "space",
	"UP":        "up",
	"DOWN":      "down",
	"LEFT":      "left",
	"RIGHT":     "right",
	"HOME":      "home",
	"END":       "end",
	"PGUP":      "pageup",
	"PGDN":      "pagedown",
	"INS":       "insert",
	"INSERT":    "insert",
	"DEL":       "delete",
	"DELETE":    "delete",
	"BS":        "backspace",
	"BKSP":      "backspace",
	"BACKSPACE": "backspace",
	"ESC":       "esc",
	"ESCAPE":    "esc",
	"CAPSLOCK":  "capslock",
	"APPS":      "menu",
	"WIN":       "cmd",
	"LWIN":      "cmd",
	"RWIN":      "cmd",
}

func init() {
	for i := 1; i <= 16; i++ {
		n := itoa(i)
		keyNames["F"+n] = "f" + n
	}
}

// itoa formats small positive ints (key repeat counts, function key names).
func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

// CanonicalKey resolves a command name to its canonical key identifier.
// ok is false when the name is not a key command (it may still be a
// placeholder or a control command such as DELAY).
func CanonicalKey(name string) (string, bool) {
	k, ok := keyNames[strings.ToUpper(name)]
	return k, ok
}

// IsKeyCommand reports whether name denotes a plain key press.
func IsKeyCommand(name string) bool {
	_, ok := CanonicalKey(name)
	return ok
}
