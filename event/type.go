package event

// Kind is the closed discriminant used to match events to handlers
type Kind uint8

const (
	// KindTick is one simulation update
	// Producer: Scheduler (normal and catch-up ticks) | Payload: Tick
	KindTick Kind = iota

	// KindRender asks handlers to draw into the frame surface
	// Producer: Scheduler, once per loop iteration | Payload: Render
	KindRender

	// KindKey reports keyboard input
	// Producer: terminal input bridge | Payload: Key
	KindKey

	// KindMouse reports pointer input
	// Producer: terminal input bridge | Payload: Mouse
	KindMouse

	// KindResize reports a surface size change
	// Producer: terminal input bridge | Payload: Resize
	KindResize

	// KindShutdown announces engine shutdown before the loop stops
	// Producer: host shutdown sequence | Payload: Shutdown
	KindShutdown

	// KindNetwork carries connection lifecycle and messages from a network bridge
	// Payload: Network
	KindNetwork

	// KindScript carries codes emitted by Lua mods
	// Producer: script.Host | Payload: Script
	KindScript

	// KindPrompt reports a finished text prompt
	// Payload: Prompt
	KindPrompt

	// KindSound requests a short audio cue
	// Consumer: audio.Player | Payload: Sound
	KindSound

	// KindStateChanged follows a successful active state switch
	// Producer: state.Router | Payload: StateChanged
	KindStateChanged

	// KindCustom is the escape hatch for game-defined events
	// Payload: Custom
	KindCustom

	kindCount
)

var kindNames = [kindCount]string{
	KindTick:         "tick",
	KindRender:       "render",
	KindKey:          "key",
	KindMouse:        "mouse",
	KindResize:       "resize",
	KindShutdown:     "shutdown",
	KindNetwork:      "network",
	KindScript:       "script",
	KindPrompt:       "prompt",
	KindSound:        "sound",
	KindStateChanged: "state_changed",
	KindCustom:       "custom",
}

// String returns the lowercase kind name used in logs, dumps and Lua mods
func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "unknown"
}

// Valid reports whether k is one of the declared kinds
func (k Kind) Valid() bool {
	return k < kindCount
}

// ParseKind resolves a kind by its String name
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// Kinds returns every declared kind in declaration order
func Kinds() []Kind {
	kinds := make([]Kind, kindCount)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}
