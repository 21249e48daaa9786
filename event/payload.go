package event

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
)

// Event is an immutable value describing something that happened
// Kind is the dispatch discriminant; the concrete type carries the payload
type Event interface {
	Kind() Kind
}

// Surface is the drawing target passed through render events
// Owned by the windowing collaborator; tcell.Screen satisfies it
type Surface interface {
	SetContent(x, y int, primary rune, combining []rune, style tcell.Style)
	Size() (width, height int)
}

// Tick is one simulation step
type Tick struct {
	Frame   uint64
	CatchUp bool // Issued by the per-second catch-up burst, no render follows
}

func (Tick) Kind() Kind { return KindTick }

// Render carries the frame surface to drawing handlers
type Render struct {
	Surface Surface
	Frame   uint64
}

func (Render) Kind() Kind { return KindRender }

// KeyPhase distinguishes press, release and typed notifications
type KeyPhase uint8

const (
	KeyPress KeyPhase = iota
	KeyRelease
	KeyTyped
)

func (p KeyPhase) String() string {
	switch p {
	case KeyPress:
		return "press"
	case KeyRelease:
		return "release"
	case KeyTyped:
		return "typed"
	default:
		return "unknown"
	}
}

// Key is a keyboard notification
// Rune is set when Key is tcell.KeyRune
type Key struct {
	Key   tcell.Key
	Rune  rune
	Mod   tcell.ModMask
	Phase KeyPhase
}

func (Key) Kind() Kind { return KindKey }

// Name returns a stable human-readable key name
func (k Key) Name() string {
	if k.Key == tcell.KeyRune {
		return string(k.Rune)
	}
	return tcell.NewEventKey(k.Key, k.Rune, k.Mod).Name()
}

// MouseButton identifies the pointer button
type MouseButton uint8

const (
	MouseLeft MouseButton = iota
	MouseRight
	MouseMiddle
	MouseScroll
)

func (b MouseButton) String() string {
	switch b {
	case MouseLeft:
		return "left"
	case MouseRight:
		return "right"
	case MouseMiddle:
		return "middle"
	case MouseScroll:
		return "scroll"
	default:
		return "unknown"
	}
}

// MouseAction identifies what the pointer did
type MouseAction uint8

const (
	MouseClick MouseAction = iota
	MouseRelease
	MouseHold
	MouseEnter
	MouseLeave
	MouseScrollUp
	MouseScrollDown
)

func (a MouseAction) String() string {
	switch a {
	case MouseClick:
		return "click"
	case MouseRelease:
		return "release"
	case MouseHold:
		return "hold"
	case MouseEnter:
		return "enter"
	case MouseLeave:
		return "leave"
	case MouseScrollUp:
		return "scroll_up"
	case MouseScrollDown:
		return "scroll_down"
	default:
		return "unknown"
	}
}

// Mouse is a pointer notification in surface cell coordinates
type Mouse struct {
	Button MouseButton
	Action MouseAction
	X, Y   int
}

func (Mouse) Kind() Kind { return KindMouse }

// Resize reports the new surface size
type Resize struct {
	Width, Height int
}

func (Resize) Kind() Kind { return KindResize }

// Shutdown is broadcast once before the loop stops
type Shutdown struct {
	Hard bool
}

func (Shutdown) Kind() Kind { return KindShutdown }

// NetworkMode is the lifecycle step reported by a network bridge
type NetworkMode uint8

const (
	NetworkConnect NetworkMode = iota
	NetworkDisconnect
	NetworkMessage
	NetworkDebug
)

func (m NetworkMode) String() string {
	switch m {
	case NetworkConnect:
		return "connect"
	case NetworkDisconnect:
		return "disconnect"
	case NetworkMessage:
		return "message"
	case NetworkDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// Network carries a peer notification from a transport bridge
type Network struct {
	Mode    NetworkMode
	Peer    string
	Message []byte
}

func (Network) Kind() Kind { return KindNetwork }

// NewNetwork validates the mode/peer/message combination
func NewNetwork(mode NetworkMode, peer string, msg []byte) (Network, error) {
	if peer == "" {
		return Network{}, fmt.Errorf("%w: network event without peer", ErrInvalidArgument)
	}
	if mode == NetworkMessage && msg == nil {
		return Network{}, fmt.Errorf("%w: message mode requires a message", ErrInvalidArgument)
	}
	if mode > NetworkDebug {
		return Network{}, fmt.Errorf("%w: network mode %d", ErrInvalidArgument, mode)
	}
	return Network{Mode: mode, Peer: peer, Message: msg}, nil
}

// Script is a code plus string metadata emitted by a Lua mod
type Script struct {
	Code int
	Meta []string
}

func (Script) Kind() Kind { return KindScript }

// Prompt reports the text entered into a finished prompt
type Prompt struct {
	Message string
	ID      int64
}

func (Prompt) Kind() Kind { return KindPrompt }

// Sound requests a synthesized tone
type Sound struct {
	Frequency float64
	Duration  time.Duration
	Volume    float64 // 0..1, scaled by the player's master volume
}

func (Sound) Kind() Kind { return KindSound }

// StateChanged follows an active state switch; empty names mean no state
type StateChanged struct {
	From, To string
}

func (StateChanged) Kind() Kind { return KindStateChanged }

// Custom is a game-defined event matched by Name inside handlers
type Custom struct {
	Name string
	Data any
}

func (Custom) Kind() Kind { return KindCustom }
