package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/cadence/event"
	"github.com/lixenwraith/cadence/state"
)

const (
	pauseLength = 2 * time.Second
	bounceTone  = 440.0
)

// pauser is the slice of the scheduler the play state drives
type pauser interface {
	Pause()
	Resume()
}

// ball moves one cell per tick and reflects off the surface edges
type ball struct {
	x, y   int
	vx, vy int
}

// step advances the ball inside a w x h area and reports whether it bounced
func (b *ball) step(w, h int) bool {
	if w < 2 || h < 2 {
		return false
	}
	bounced := false
	b.x += b.vx
	b.y += b.vy
	if b.x <= 0 || b.x >= w-1 {
		b.vx = -b.vx
		b.x = max(0, min(b.x, w-1))
		bounced = true
	}
	if b.y <= 0 || b.y >= h-1 {
		b.vy = -b.vy
		b.y = max(0, min(b.y, h-1))
		bounced = true
	}
	return bounced
}

// demo owns the menu and play states and their shared game data
type demo struct {
	bus    *event.Bus
	router *state.Router
	engine pauser
	quit   func()
	logger *slog.Logger

	menu *state.State
	play *state.State

	width, height int
	ball          ball
	bounces       int
	scripts       int
}

func newDemo(bus *event.Bus, router *state.Router, engine pauser, quit func(), logger *slog.Logger) *demo {
	d := &demo{
		bus:    bus,
		router: router,
		engine: engine,
		quit:   quit,
		logger: logger,
		width:  80,
		height: 24,
	}
	d.menu = state.New("menu", d.initMenu, state.WithConfig(state.Config{FPS: 30, Background: tcell.ColorBlack}), state.WithLogger(logger))
	d.play = state.New("play", d.initPlay, state.WithConfig(state.Config{FPS: 60, Background: tcell.ColorNavy}), state.WithLogger(logger))
	return d
}

// subscribe registers the handlers that outlive state switches
func (d *demo) subscribe() error {
	if err := d.bus.Subscribe(event.NewHandler(0, d.onResize, event.WithName("demo.resize"))); err != nil {
		return err
	}
	return d.bus.Subscribe(event.NewHandler(0, d.onScript, event.WithName("demo.script")))
}

func (d *demo) onResize(ev event.Resize) {
	d.width, d.height = ev.Width, ev.Height
}

func (d *demo) onScript(ev event.Script) {
	d.scripts++
	d.logger.Debug("script event", "code", ev.Code, "meta", ev.Meta)
}

func (d *demo) initMenu(s *state.State) {
	s.ClearHandlers()
	_ = s.AddHandler(event.NewHandler(0, d.drawMenu))
	_ = s.AddHandler(event.NewHandler(0, d.menuKey))
	s.SetReady(true)
}

func (d *demo) menuKey(ev event.Key) {
	if ev.Phase != event.KeyPress {
		return
	}
	switch {
	case ev.Key == tcell.KeyEnter:
		d.ball = ball{x: d.width / 2, y: d.height / 2, vx: 1, vy: 1}
		d.bounces = 0
		if err := d.router.SetActiveState(d.play); err != nil {
			d.logger.Error("enter play", "error", err)
		}
	case ev.Key == tcell.KeyRune && ev.Rune == 'q':
		if d.quit != nil {
			d.quit()
		}
	}
}

func (d *demo) drawMenu(ev event.Render) {
	if ev.Surface == nil {
		return
	}
	w, h := ev.Surface.Size()
	title := tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	plain := tcell.StyleDefault.Foreground(tcell.ColorSilver)
	drawCentered(ev.Surface, w, h/2-1, "CADENCE", title)
	drawCentered(ev.Surface, w, h/2+1, "enter: play   q: quit", plain)
}

func (d *demo) initPlay(s *state.State) {
	s.ClearHandlers()
	_ = s.AddHandler(event.NewHandler(0, d.playTick))
	_ = s.AddHandler(event.NewHandler(0, d.drawPlay))
	_ = s.AddHandler(event.NewHandler(0, d.playKey))
	s.SetReady(true)
}

func (d *demo) playTick(ev event.Tick) {
	if !d.ball.step(d.width, d.height) {
		return
	}
	d.bounces++
	// Catch-up ticks stay silent, a burst of tones would only be noise
	if ev.CatchUp {
		return
	}
	_ = d.bus.Broadcast(event.Sound{
		Frequency: bounceTone * float64(1+d.bounces%4),
		Duration:  60 * time.Millisecond,
		Volume:    0.6,
	})
}

func (d *demo) playKey(ev event.Key) {
	if ev.Phase != event.KeyPress {
		return
	}
	switch {
	case ev.Key == tcell.KeyEscape:
		if err := d.router.SetActiveState(d.menu); err != nil {
			d.logger.Error("leave play", "error", err)
		}
	case ev.Key == tcell.KeyRune && ev.Rune == 'p':
		// Paused frames do not drain input, so the freeze ends on a timer
		d.engine.Pause()
		time.AfterFunc(pauseLength, d.engine.Resume)
	}
}

func (d *demo) drawPlay(ev event.Render) {
	if ev.Surface == nil {
		return
	}
	ballStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorNavy)
	ev.Surface.SetContent(d.ball.x, d.ball.y, 'o', nil, ballStyle)
	hud := tcell.StyleDefault.Foreground(tcell.ColorAqua).Background(tcell.ColorNavy)
	drawText(ev.Surface, 1, 0, fmt.Sprintf("bounces %d  scripts %d  esc: menu  p: freeze", d.bounces, d.scripts), hud)
}

func drawCentered(s event.Surface, w, y int, text string, style tcell.Style) {
	x := max((w-len([]rune(text)))/2, 0)
	drawText(s, x, y, text, style)
}

func drawText(s event.Surface, x, y int, text string, style tcell.Style) {
	w, h := s.Size()
	if y < 0 || y >= h {
		return
	}
	for i, r := range []rune(text) {
		if x+i >= w {
			return
		}
		s.SetContent(x+i, y, r, nil, style)
	}
}
