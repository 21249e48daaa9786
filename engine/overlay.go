package engine

import (
	"errors"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/cadence/event"
)

// ErrOverlaySkipped reports an overlay that had nothing to draw on, such as a zero-size surface
// The scheduler ignores it
var ErrOverlaySkipped = errors.New("overlay skipped")

// FrameInfo is what overlays know about the frame being drawn
type FrameInfo struct {
	Frame  uint64
	FPS    int
	Paused bool
}

// Overlay draws on top of the render pass, after every Render handler
// Each overlay is isolated: an error is logged at debug level, a panic is recovered
type Overlay interface {
	Name() string
	Draw(s event.Surface, info FrameInfo) error
}

// SplashOverlay centers Text for Duration worth of frames at the current rate
type SplashOverlay struct {
	Text     string
	Duration time.Duration
	Style    tcell.Style
}

// NewSplashOverlay creates a splash shown for d
func NewSplashOverlay(text string, d time.Duration) *SplashOverlay {
	return &SplashOverlay{
		Text:     text,
		Duration: d,
		Style:    tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true),
	}
}

func (o *SplashOverlay) Name() string { return "splash" }

// Draw writes the text while Frame is within FPS * Duration
func (o *SplashOverlay) Draw(s event.Surface, info FrameInfo) error {
	frames := uint64(float64(info.FPS) * o.Duration.Seconds())
	if info.Frame > frames {
		return nil
	}
	w, h := s.Size()
	runes := []rune(o.Text)
	if w <= 0 || h <= 0 || len(runes) == 0 {
		return ErrOverlaySkipped
	}

	x := (w - len(runes)) / 2
	if x < 0 {
		x = 0
	}
	y := h / 2
	for i, r := range runes {
		if x+i >= w {
			break
		}
		s.SetContent(x+i, y, r, nil, o.Style)
	}
	return nil
}

// StatusIconOverlay draws a single glyph in the top-right corner while Probe reports true
// Used for connection indicators fed by a network bridge
type StatusIconOverlay struct {
	Icon  rune
	Style tcell.Style
	Probe func() bool
}

// NewStatusIconOverlay creates an icon overlay driven by probe
func NewStatusIconOverlay(icon rune, probe func() bool) *StatusIconOverlay {
	return &StatusIconOverlay{
		Icon:  icon,
		Style: tcell.StyleDefault.Foreground(tcell.ColorGreen),
		Probe: probe,
	}
}

func (o *StatusIconOverlay) Name() string { return "status_icon" }

func (o *StatusIconOverlay) Draw(s event.Surface, _ FrameInfo) error {
	if o.Probe == nil || !o.Probe() {
		return nil
	}
	w, h := s.Size()
	if w <= 0 || h <= 0 {
		return ErrOverlaySkipped
	}
	s.SetContent(w-1, 0, o.Icon, nil, o.Style)
	return nil
}

// PauseOverlay marks the bottom-left cell while ticks are suspended
type PauseOverlay struct {
	Style tcell.Style
}

func (o *PauseOverlay) Name() string { return "pause" }

func (o *PauseOverlay) Draw(s event.Surface, info FrameInfo) error {
	if !info.Paused {
		return nil
	}
	_, h := s.Size()
	if h <= 0 {
		return ErrOverlaySkipped
	}
	for i, r := range "PAUSED" {
		s.SetContent(i, h-1, r, nil, o.Style.Reverse(true))
	}
	return nil
}
