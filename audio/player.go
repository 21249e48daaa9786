// Package audio plays synthesized tones requested through event.Sound
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"

	"github.com/lixenwraith/cadence/event"
	"github.com/lixenwraith/cadence/status"
)

const (
	// SampleRate is the fixed output rate
	SampleRate = beep.SampleRate(44100)
	// DefaultMaxVoices caps concurrently mixed tones
	DefaultMaxVoices = 16
	// DefaultPriority places the sound handler after gameplay handlers
	DefaultPriority = 100

	bufferDuration = 100 * time.Millisecond
	attackTime     = 5 * time.Millisecond
	maxRelease     = 50 * time.Millisecond
)

// Player mixes event.Sound requests into a single sink stream
// A player whose sink fails to initialize degrades to silent and keeps the engine running
type Player struct {
	sink      Sink
	logger    *slog.Logger
	wave      WaveType
	maxVoices int
	priority  int

	mixer *beep.Mixer

	mu        sync.Mutex
	enabled   bool
	available bool
	started   bool
	volume    float64

	statPlayed  *atomic.Int64
	statDropped *atomic.Int64
}

// Option configures a Player
type Option func(*Player)

// WithSink replaces the speaker sink
func WithSink(sink Sink) Option {
	return func(p *Player) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithLogger routes audio logs to logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Player) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithWave selects the oscillator shape
func WithWave(w WaveType) Option {
	return func(p *Player) {
		p.wave = w
	}
}

// WithMaxVoices caps concurrent tones; further requests are dropped
func WithMaxVoices(n int) Option {
	return func(p *Player) {
		if n > 0 {
			p.maxVoices = n
		}
	}
}

// WithPriority sets the priority of the handler returned by Handler
func WithPriority(priority int) Option {
	return func(p *Player) {
		p.priority = priority
	}
}

// WithStatus publishes played and dropped counters into reg
func WithStatus(reg *status.Registry) Option {
	return func(p *Player) {
		if reg != nil {
			p.statPlayed = reg.Ints.Get("audio.played")
			p.statDropped = reg.Ints.Get("audio.dropped")
		}
	}
}

// NewPlayer creates an enabled player at the given master volume
func NewPlayer(volume float64, opts ...Option) *Player {
	reg := status.NewRegistry()
	p := &Player{
		sink:        SpeakerSink{},
		logger:      slog.New(slog.DiscardHandler),
		wave:        WaveSine,
		maxVoices:   DefaultMaxVoices,
		priority:    DefaultPriority,
		mixer:       &beep.Mixer{},
		enabled:     true,
		volume:      clampVolume(volume),
		statPlayed:  reg.Ints.Get("audio.played"),
		statDropped: reg.Ints.Get("audio.dropped"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Player) Name() string { return "audio" }

func (p *Player) Dependencies() []string { return nil }

// Init opens the sink; failure leaves the player silent rather than failing startup
func (p *Player) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.enabled {
		p.logger.Info("audio disabled")
		return nil
	}
	if err := p.sink.Init(SampleRate, SampleRate.N(bufferDuration)); err != nil {
		p.logger.Warn("audio unavailable, continuing silent", "error", err)
		p.available = false
		return nil
	}
	p.available = true
	return nil
}

// Start hands the mixer to the sink
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available || p.started {
		return nil
	}
	p.sink.Play(p.mixer)
	p.started = true
	return nil
}

// Stop clears pending voices and closes the sink
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return nil
	}
	p.sink.Lock()
	p.mixer.Clear()
	p.sink.Unlock()
	p.sink.Close()
	p.available = false
	p.started = false
	return nil
}

// Handler returns the bus handler that plays event.Sound
func (p *Player) Handler() *event.Handler {
	return event.NewHandler(p.priority, p.onSound, event.WithName("audio.player"))
}

func (p *Player) onSound(ev event.Sound) {
	if err := p.Play(ev); err != nil {
		p.statDropped.Add(1)
		p.logger.Debug("sound dropped", "frequency", ev.Frequency, "error", err)
	}
}

// Play queues one tone into the mixer
// Returns nil without playing when disabled or unavailable
func (p *Player) Play(ev event.Sound) error {
	if ev.Frequency <= 0 || ev.Duration <= 0 {
		return fmt.Errorf("%w: sound %.1fHz for %s", event.ErrInvalidArgument, ev.Frequency, ev.Duration)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled || !p.available {
		return nil
	}

	vol := clampVolume(ev.Volume) * p.volume
	voice := p.voice(ev.Frequency, ev.Duration, vol)

	p.sink.Lock()
	defer p.sink.Unlock()
	if p.mixer.Len() >= p.maxVoices {
		return fmt.Errorf("voice limit %d reached", p.maxVoices)
	}
	p.mixer.Add(voice)
	p.statPlayed.Add(1)
	return nil
}

func (p *Player) voice(freq float64, d time.Duration, vol float64) beep.Streamer {
	release := min(d/5, maxRelease)
	tone := NewTone(freq, d, p.wave, SampleRate)
	return newVolume(NewEnvelope(tone, d, attackTime, release, SampleRate), vol)
}

// SetVolume sets the master volume, clamped to [0,1]
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = clampVolume(v)
	p.mu.Unlock()
}

// Volume returns the master volume
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetEnabled toggles playback; disabling before Init skips the sink entirely
func (p *Player) SetEnabled(enabled bool) {
	p.mu.Lock()
	p.enabled = enabled
	p.mu.Unlock()
}

// Enabled reports whether playback is on
func (p *Player) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Available reports whether the sink initialized
func (p *Player) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// Voices returns the number of tones still mixing
func (p *Player) Voices() int {
	p.sink.Lock()
	defer p.sink.Unlock()
	return p.mixer.Len()
}

// Played returns the number of tones accepted
func (p *Player) Played() int64 { return p.statPlayed.Load() }

// Dropped returns the number of rejected requests
func (p *Player) Dropped() int64 { return p.statDropped.Load() }

func clampVolume(v float64) float64 {
	return max(0, min(v, 1))
}
