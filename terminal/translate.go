package terminal

import (
	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/cadence/event"
)

// Terminals report no key releases, so a key yields Press, plus Typed for printable runes
// Mouse button state is diffed between reports to produce click, hold and release

var mouseButtons = []struct {
	mask   tcell.ButtonMask
	button event.MouseButton
}{
	{tcell.Button1, event.MouseLeft},
	{tcell.Button2, event.MouseRight},
	{tcell.Button3, event.MouseMiddle},
}

// Translator converts tcell events into engine events
// Not safe for concurrent use; the poll goroutine owns it
type Translator struct {
	buttons tcell.ButtonMask
	outside bool
	width   int
	height  int
}

// Translate returns the engine events for ev, possibly none
func (t *Translator) Translate(ev tcell.Event) []event.Event {
	switch e := ev.(type) {
	case *tcell.EventKey:
		return t.translateKey(e)
	case *tcell.EventMouse:
		return t.translateMouse(e)
	case *tcell.EventResize:
		t.width, t.height = e.Size()
		return []event.Event{event.Resize{Width: t.width, Height: t.height}}
	default:
		return nil
	}
}

func (t *Translator) translateKey(e *tcell.EventKey) []event.Event {
	k := event.Key{Key: e.Key(), Rune: e.Rune(), Mod: e.Modifiers(), Phase: event.KeyPress}
	if e.Key() != tcell.KeyRune {
		return []event.Event{k}
	}
	typed := k
	typed.Phase = event.KeyTyped
	return []event.Event{k, typed}
}

func (t *Translator) translateMouse(e *tcell.EventMouse) []event.Event {
	x, y := e.Position()
	now := e.Buttons()
	var out []event.Event

	if outside := !t.contains(x, y); outside != t.outside {
		action := event.MouseEnter
		if outside {
			action = event.MouseLeave
		}
		t.outside = outside
		out = append(out, event.Mouse{Action: action, X: x, Y: y})
	}

	switch {
	case now&tcell.WheelUp != 0:
		out = append(out, event.Mouse{Button: event.MouseScroll, Action: event.MouseScrollUp, X: x, Y: y})
	case now&tcell.WheelDown != 0:
		out = append(out, event.Mouse{Button: event.MouseScroll, Action: event.MouseScrollDown, X: x, Y: y})
	}

	for _, b := range mouseButtons {
		was := t.buttons&b.mask != 0
		is := now&b.mask != 0
		switch {
		case is && !was:
			out = append(out, event.Mouse{Button: b.button, Action: event.MouseClick, X: x, Y: y})
		case is && was:
			out = append(out, event.Mouse{Button: b.button, Action: event.MouseHold, X: x, Y: y})
		case !is && was:
			out = append(out, event.Mouse{Button: b.button, Action: event.MouseRelease, X: x, Y: y})
		}
	}
	t.buttons = now & (tcell.Button1 | tcell.Button2 | tcell.Button3)
	return out
}

// contains treats an unknown size as unbounded
func (t *Translator) contains(x, y int) bool {
	if t.width == 0 && t.height == 0 {
		return true
	}
	return x >= 0 && y >= 0 && x < t.width && y < t.height
}

// SetSize seeds the bounds used for enter/leave before the first resize event
func (t *Translator) SetSize(width, height int) {
	t.width, t.height = width, height
}

// ShutdownRequest reports whether e asks the engine to stop
// Ctrl+C is soft; Shift+Esc is hard
func ShutdownRequest(e *tcell.EventKey) (hard, ok bool) {
	switch {
	case e.Key() == tcell.KeyCtrlC:
		return false, true
	case e.Key() == tcell.KeyEscape && e.Modifiers()&tcell.ModShift != 0:
		return true, true
	default:
		return false, false
	}
}
