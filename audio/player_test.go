package audio

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep"

	"github.com/lixenwraith/cadence/event"
	"github.com/lixenwraith/cadence/status"
)

// fakeSink records playback without touching an audio device
type fakeSink struct {
	mu       sync.Mutex
	initErr  error
	played   []beep.Streamer
	closed   int
	initRate beep.SampleRate
}

func (f *fakeSink) Init(rate beep.SampleRate, bufferSize int) error {
	f.initRate = rate
	return f.initErr
}

func (f *fakeSink) Play(s ...beep.Streamer) { f.played = append(f.played, s...) }

func (f *fakeSink) Lock() { f.mu.Lock() }

func (f *fakeSink) Unlock() { f.mu.Unlock() }

func (f *fakeSink) Close() { f.closed++ }

// pull streams n samples out of the sink's first streamer
func (f *fakeSink) pull(n int) [][2]float64 {
	buf := make([][2]float64, n)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played[0].Stream(buf)
	return buf
}

func startedPlayer(t *testing.T, sink *fakeSink, opts ...Option) *Player {
	t.Helper()
	p := NewPlayer(1.0, append([]Option{WithSink(sink)}, opts...)...)
	if err := p.Init(); err != nil {
		t.Fatalf("Init error: %v", err)
	}
	if err := p.Start(t.Context()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	return p
}

func TestPlayerMixesAndDrainsVoice(t *testing.T) {
	sink := &fakeSink{}
	p := startedPlayer(t, sink)

	if sink.initRate != SampleRate {
		t.Errorf("init rate = %d, want %d", sink.initRate, SampleRate)
	}
	if len(sink.played) != 1 {
		t.Fatalf("sink received %d streamers, want the mixer", len(sink.played))
	}

	bus := event.NewBus()
	_ = bus.Subscribe(p.Handler())
	_ = bus.Broadcast(event.Sound{Frequency: 440, Duration: 10 * time.Millisecond, Volume: 1})

	if p.Voices() != 1 {
		t.Fatalf("Voices = %d, want 1", p.Voices())
	}

	buf := sink.pull(SampleRate.N(20 * time.Millisecond))
	nonZero := false
	for _, s := range buf {
		if s[0] != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("mixer produced silence for an active voice")
	}
	if p.Voices() != 0 {
		t.Errorf("Voices after drain = %d, want 0", p.Voices())
	}
	if p.Played() != 1 {
		t.Errorf("Played = %d, want 1", p.Played())
	}
}

func TestPlayerVoiceLimit(t *testing.T) {
	sink := &fakeSink{}
	reg := status.NewRegistry()
	p := startedPlayer(t, sink, WithMaxVoices(2), WithStatus(reg))

	bus := event.NewBus()
	_ = bus.Subscribe(p.Handler())
	for range 3 {
		_ = bus.Broadcast(event.Sound{Frequency: 220, Duration: time.Second, Volume: 0.5})
	}

	if p.Voices() != 2 {
		t.Errorf("Voices = %d, want 2", p.Voices())
	}
	if got := reg.Ints.Get("audio.dropped").Load(); got != 1 {
		t.Errorf("audio.dropped = %d, want 1", got)
	}
}

func TestPlayerRejectsInvalidSound(t *testing.T) {
	p := startedPlayer(t, &fakeSink{})

	tests := []struct {
		name string
		ev   event.Sound
	}{
		{"zero frequency", event.Sound{Duration: time.Second}},
		{"negative frequency", event.Sound{Frequency: -1, Duration: time.Second}},
		{"zero duration", event.Sound{Frequency: 440}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.Play(tt.ev); !errors.Is(err, event.ErrInvalidArgument) {
				t.Errorf("Play err = %v, want ErrInvalidArgument", err)
			}
		})
	}
	if p.Voices() != 0 {
		t.Errorf("Voices = %d, want 0", p.Voices())
	}
}

func TestPlayerDegradesWhenSinkFails(t *testing.T) {
	sink := &fakeSink{initErr: errors.New("no device")}
	p := NewPlayer(0.5, WithSink(sink))

	if err := p.Init(); err != nil {
		t.Fatalf("Init error = %v, want nil on sink failure", err)
	}
	if p.Available() {
		t.Error("Available = true after sink failure")
	}
	_ = p.Start(t.Context())
	if len(sink.played) != 0 {
		t.Error("mixer handed to a failed sink")
	}
	if err := p.Play(event.Sound{Frequency: 440, Duration: time.Second}); err != nil {
		t.Errorf("Play on silent player err = %v", err)
	}
	if err := p.Stop(); err != nil || sink.closed != 0 {
		t.Errorf("Stop err = %v closed = %d", err, sink.closed)
	}
}

func TestPlayerDisabledSkipsSink(t *testing.T) {
	sink := &fakeSink{initRate: -1}
	p := NewPlayer(1, WithSink(sink))
	p.SetEnabled(false)

	_ = p.Init()
	if sink.initRate != -1 {
		t.Error("disabled player opened the sink")
	}
	if p.Enabled() {
		t.Error("Enabled = true")
	}
}

func TestPlayerVolumeClamp(t *testing.T) {
	p := NewPlayer(3)
	if p.Volume() != 1 {
		t.Errorf("Volume = %v, want 1", p.Volume())
	}
	p.SetVolume(-0.5)
	if p.Volume() != 0 {
		t.Errorf("Volume = %v, want 0", p.Volume())
	}
}

func TestPlayerStopClosesOnce(t *testing.T) {
	sink := &fakeSink{}
	p := startedPlayer(t, sink)
	_ = p.Play(event.Sound{Frequency: 440, Duration: time.Second, Volume: 1})

	_ = p.Stop()
	_ = p.Stop()
	if sink.closed != 1 {
		t.Errorf("closed = %d, want 1", sink.closed)
	}
	if p.Voices() != 0 {
		t.Errorf("Voices after Stop = %d", p.Voices())
	}
}
