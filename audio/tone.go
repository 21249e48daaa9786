package audio

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
)

// WaveType defines oscillator wave shapes
type WaveType int

const (
	WaveSine WaveType = iota
	WaveSquare
	WaveSaw
	WaveNoise
)

func (w WaveType) String() string {
	switch w {
	case WaveSine:
		return "sine"
	case WaveSquare:
		return "square"
	case WaveSaw:
		return "saw"
	case WaveNoise:
		return "noise"
	default:
		return "unknown"
	}
}

// NewTone returns a finite streamer of freq Hz lasting d
// Sine uses the beep generator; other shapes and frequencies the generator
// rejects (at or above Nyquist) use the local oscillator
func NewTone(freq float64, d time.Duration, wave WaveType, rate beep.SampleRate) beep.Streamer {
	if wave == WaveSine {
		if src, err := generators.SineTone(rate, freq); err == nil {
			return beep.Take(rate.N(d), src)
		}
	}
	return NewOscillator(freq, d, wave, rate)
}

// sample returns the wave value at phase in [0,1)
func (w WaveType) sample(phase float64) float64 {
	switch w {
	case WaveSquare:
		if phase < 0.5 {
			return 1
		}
		return -1
	case WaveSaw:
		return 2 * (phase - 0.5)
	case WaveNoise:
		return rand.Float64()*2 - 1
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// NewOscillator streams wave at freq for duration, then reports exhaustion
func NewOscillator(freq float64, duration time.Duration, wave WaveType, rate beep.SampleRate) beep.Streamer {
	step := freq / float64(rate)
	phase := 0.0
	gen := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := wave.sample(phase)
			samples[i] = [2]float64{v, v}
			phase += step
			phase -= math.Floor(phase)
		}
		return len(samples), true
	})
	return beep.Take(rate.N(duration), gen)
}

// shaper multiplies a stream by gain(position) and ends after total samples
type shaper struct {
	src   beep.Streamer
	gain  func(pos int) float64
	pos   int
	total int
}

func (s *shaper) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= s.total {
		return 0, false
	}
	samples = samples[:min(len(samples), s.total-s.pos)]
	n, ok := s.src.Stream(samples)
	for i := range samples[:n] {
		g := s.gain(s.pos)
		samples[i][0] *= g
		samples[i][1] *= g
		s.pos++
	}
	return n, ok
}

func (s *shaper) Err() error { return s.src.Err() }

// NewEnvelope ramps s up over attack and down over release within duration
func NewEnvelope(s beep.Streamer, duration, attack, release time.Duration, rate beep.SampleRate) beep.Streamer {
	total := rate.N(duration)
	att := rate.N(attack)
	rel := rate.N(release)
	releaseAt := att + max(total-att-rel, 0)

	return &shaper{
		src:   s,
		total: total,
		gain: func(pos int) float64 {
			switch {
			case rel > 0 && pos >= releaseAt:
				return max(float64(total-pos)/float64(rel), 0)
			case att > 0 && pos < att:
				return float64(pos) / float64(att)
			default:
				return 1
			}
		},
	}
}

// newVolume wraps s with a linear gain
// math.Log2(0) is -Inf, so zero volume is made silent
func newVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol)}
}
