package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/lixenwraith/cadence/event"
)

// eventTable flattens ev into the table passed to mod callbacks
// Every table carries kind; render omits the surface
func eventTable(L *lua.LState, ev event.Event) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("kind", lua.LString(ev.Kind().String()))

	switch e := ev.(type) {
	case event.Tick:
		t.RawSetString("frame", lua.LNumber(e.Frame))
		t.RawSetString("catch_up", lua.LBool(e.CatchUp))
	case event.Render:
		t.RawSetString("frame", lua.LNumber(e.Frame))
	case event.Key:
		t.RawSetString("name", lua.LString(e.Name()))
		t.RawSetString("phase", lua.LString(e.Phase.String()))
		if e.Rune != 0 {
			t.RawSetString("rune", lua.LString(string(e.Rune)))
		}
	case event.Mouse:
		t.RawSetString("button", lua.LString(e.Button.String()))
		t.RawSetString("action", lua.LString(e.Action.String()))
		t.RawSetString("x", lua.LNumber(e.X))
		t.RawSetString("y", lua.LNumber(e.Y))
	case event.Resize:
		t.RawSetString("width", lua.LNumber(e.Width))
		t.RawSetString("height", lua.LNumber(e.Height))
	case event.Shutdown:
		t.RawSetString("hard", lua.LBool(e.Hard))
	case event.Network:
		t.RawSetString("mode", lua.LString(e.Mode.String()))
		t.RawSetString("peer", lua.LString(e.Peer))
		if e.Message != nil {
			t.RawSetString("message", lua.LString(e.Message))
		}
	case event.Script:
		t.RawSetString("code", lua.LNumber(e.Code))
		meta := L.NewTable()
		for _, m := range e.Meta {
			meta.Append(lua.LString(m))
		}
		t.RawSetString("meta", meta)
	case event.Prompt:
		t.RawSetString("message", lua.LString(e.Message))
		t.RawSetString("id", lua.LNumber(e.ID))
	case event.Sound:
		t.RawSetString("frequency", lua.LNumber(e.Frequency))
		t.RawSetString("duration_ms", lua.LNumber(e.Duration.Milliseconds()))
		t.RawSetString("volume", lua.LNumber(e.Volume))
	case event.StateChanged:
		t.RawSetString("from", lua.LString(e.From))
		t.RawSetString("to", lua.LString(e.To))
	case event.Custom:
		t.RawSetString("name", lua.LString(e.Name))
	}
	return t
}
