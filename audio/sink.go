package audio

import (
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

// Sink is the output device the player mixes into
// Lock/Unlock guard streamers already handed to Play
type Sink interface {
	Init(rate beep.SampleRate, bufferSize int) error
	Play(s ...beep.Streamer)
	Lock()
	Unlock()
	Close()
}

// SpeakerSink plays through the process-wide beep speaker
type SpeakerSink struct{}

func (SpeakerSink) Init(rate beep.SampleRate, bufferSize int) error {
	return speaker.Init(rate, bufferSize)
}

func (SpeakerSink) Play(s ...beep.Streamer) { speaker.Play(s...) }

func (SpeakerSink) Lock() { speaker.Lock() }

func (SpeakerSink) Unlock() { speaker.Unlock() }

func (SpeakerSink) Close() { speaker.Close() }
