package audio

import (
	"errors"
	"time"
)

var (
	// ErrEmptyBuffer is returned when a buffer has no channels to encode
	ErrEmptyBuffer = errors.New("audio buffer has no channels")

	// ErrNoAudio is returned when a speech payload carries no samples
	ErrNoAudio = errors.New("no audio data in payload")

	// ErrBackgroundTrack wraps any failure to fetch or decode a music track
	ErrBackgroundTrack = errors.New("background track unavailable")
)

// AudioBuffer is a planar float buffer. Every channel holds FrameCount samples
// in the nominal range [-1, 1].
type AudioBuffer struct {
	SampleRate int
	Channels   [][]float32
}

// NewAudioBuffer allocates a silent buffer.
func NewAudioBuffer(channels, frames, sampleRate int) *AudioBuffer {
	buf := &AudioBuffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channels),
	}
	for i := range buf.Channels {
		buf.Channels[i] = make([]float32, frames)
	}
	return buf
}

func (b *AudioBuffer) NumChannels() int {
	if b == nil {
		return 0
	}
	return len(b.Channels)
}

func (b *AudioBuffer) FrameCount() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Seconds returns the buffer length in seconds.
func (b *AudioBuffer) Seconds() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.FrameCount()) / float64(b.SampleRate)
}

func (b *AudioBuffer) Duration() time.Duration {
	return time.Duration(b.Seconds() * float64(time.Second))
}

// Clone returns a deep copy.
func (b *AudioBuffer) Clone() *AudioBuffer {
	if b == nil {
		return nil
	}
	out := &AudioBuffer{SampleRate: b.SampleRate, Channels: make([][]float32, len(b.Channels))}
	for i, ch := range b.Channels {
		out.Channels[i] = append([]float32(nil), ch...)
	}
	return out
}

// channel returns channel c, reusing the last channel for mono up-mix.
func (b *AudioBuffer) channel(c int) []float32 {
	if c < len(b.Channels) {
		return b.Channels[c]
	}
	return b.Channels[len(b.Channels)-1]
}
