package main

import (
	"log/slog"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/cadence/event"
	"github.com/lixenwraith/cadence/state"
)

type fakeEngine struct {
	paused int
}

func (f *fakeEngine) Pause()  { f.paused++ }
func (f *fakeEngine) Resume() {}

func newTestDemo(t *testing.T) (*demo, *event.Bus, *state.Router, *bool) {
	t.Helper()
	bus := event.NewBus()
	router := state.NewRouter(bus)
	quit := false
	d := newDemo(bus, router, &fakeEngine{}, func() { quit = true }, slog.New(slog.DiscardHandler))
	if err := d.subscribe(); err != nil {
		t.Fatalf("subscribe error: %v", err)
	}
	if err := router.SetActiveState(d.menu); err != nil {
		t.Fatalf("SetActiveState error: %v", err)
	}
	return d, bus, router, &quit
}

func press(k tcell.Key, r rune) event.Key {
	return event.Key{Key: k, Rune: r, Phase: event.KeyPress}
}

func TestBallStep(t *testing.T) {
	tests := []struct {
		name    string
		start   ball
		w, h    int
		want    ball
		bounced bool
	}{
		{"free", ball{x: 5, y: 5, vx: 1, vy: 1}, 20, 10, ball{x: 6, y: 6, vx: 1, vy: 1}, false},
		{"right wall", ball{x: 18, y: 5, vx: 1, vy: 1}, 20, 10, ball{x: 19, y: 6, vx: -1, vy: 1}, true},
		{"top wall", ball{x: 5, y: 1, vx: 1, vy: -1}, 20, 10, ball{x: 6, y: 0, vx: 1, vy: 1}, true},
		{"corner", ball{x: 1, y: 1, vx: -1, vy: -1}, 20, 10, ball{x: 0, y: 0, vx: 1, vy: 1}, true},
		{"degenerate", ball{x: 0, y: 0, vx: 1, vy: 1}, 1, 1, ball{x: 0, y: 0, vx: 1, vy: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.start
			if got := b.step(tt.w, tt.h); got != tt.bounced {
				t.Errorf("bounced = %v, want %v", got, tt.bounced)
			}
			if b != tt.want {
				t.Errorf("ball = %+v, want %+v", b, tt.want)
			}
		})
	}
}

func TestDemoMenuToPlayAndBack(t *testing.T) {
	d, bus, router, _ := newTestDemo(t)

	_ = bus.Broadcast(press(tcell.KeyEnter, 0))
	if !router.IsActive(d.play) {
		t.Fatalf("active = %v, want play", router.ActiveState())
	}

	_ = bus.Broadcast(press(tcell.KeyEscape, 0))
	if !router.IsActive(d.menu) {
		t.Fatalf("active = %v, want menu", router.ActiveState())
	}
}

func TestDemoMenuQuit(t *testing.T) {
	_, bus, _, quit := newTestDemo(t)
	_ = bus.Broadcast(event.Key{Key: tcell.KeyRune, Rune: 'q', Phase: event.KeyTyped})
	if *quit {
		t.Error("typed phase triggered quit")
	}
	_ = bus.Broadcast(press(tcell.KeyRune, 'q'))
	if !*quit {
		t.Error("q did not quit")
	}
}

func TestDemoBounceEmitsSound(t *testing.T) {
	d, bus, _, _ := newTestDemo(t)

	var sounds []event.Sound
	_ = bus.Subscribe(event.NewHandler(0, func(ev event.Sound) { sounds = append(sounds, ev) }))

	_ = bus.Broadcast(event.Resize{Width: 6, Height: 6})
	_ = bus.Broadcast(press(tcell.KeyEnter, 0))

	// From (3,3) moving +1,+1 the ball meets the corner (5,5) on the second tick
	_ = bus.Broadcast(event.Tick{Frame: 1})
	_ = bus.Broadcast(event.Tick{Frame: 2})
	if d.bounces != 1 || len(sounds) != 1 {
		t.Fatalf("bounces = %d sounds = %d, want 1/1", d.bounces, len(sounds))
	}
	if sounds[0].Frequency <= 0 || sounds[0].Duration <= 0 {
		t.Errorf("sound = %+v", sounds[0])
	}

	// Five catch-up ticks carry it back to the (0,0) corner without a tone
	for f := uint64(3); f <= 7; f++ {
		_ = bus.Broadcast(event.Tick{Frame: f, CatchUp: true})
	}
	if d.bounces != 2 || len(sounds) != 1 {
		t.Errorf("bounces = %d sounds = %d, want 2/1", d.bounces, len(sounds))
	}
}

func TestDemoPauseKey(t *testing.T) {
	bus := event.NewBus()
	router := state.NewRouter(bus)
	eng := &fakeEngine{}
	d := newDemo(bus, router, eng, nil, slog.New(slog.DiscardHandler))
	_ = router.SetActiveState(d.play)

	// Resume fires on a timer; the fake ignores it
	_ = bus.Broadcast(press(tcell.KeyRune, 'p'))
	if eng.paused != 1 {
		t.Errorf("paused = %d, want 1", eng.paused)
	}
}

func TestDemoRender(t *testing.T) {
	d, bus, _, _ := newTestDemo(t)
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("screen Init: %v", err)
	}
	defer screen.Fini()
	screen.SetSize(40, 10)

	_ = bus.Broadcast(event.Render{Surface: screen, Frame: 1})
	if r, _, _, _ := screen.GetContent(16, 4); r != 'C' {
		t.Errorf("menu title cell = %q, want 'C'", r)
	}

	_ = bus.Broadcast(event.Resize{Width: 40, Height: 10})
	_ = bus.Broadcast(press(tcell.KeyEnter, 0))
	_ = bus.Broadcast(event.Render{Surface: screen, Frame: 2})
	if r, _, _, _ := screen.GetContent(d.ball.x, d.ball.y); r != 'o' {
		t.Errorf("ball cell = %q, want 'o'", r)
	}
}
