package audio

import (
	"context"
	"fmt"
	"math"

	"clipfarm/config"

	"go.uber.org/zap"
)

// TrackNone disables background music.
const TrackNone = "none"

// TrackAuto picks the catalogue track whose mood best matches the script.
const TrackAuto = "auto"

// MixConfiguration describes how narration and music are combined.
// NarrationGain is fixed; BackgroundGain is user tunable within [0, 0.5].
type MixConfiguration struct {
	NarrationGain     float64 `json:"narrationGain"`
	BackgroundGain    float64 `json:"backgroundGain"`
	BackgroundTrackID string  `json:"backgroundTrackId"`

	// MoodHint is matched against track moods when BackgroundTrackID is "auto"
	MoodHint string `json:"moodHint,omitempty"`
}

// DefaultMixConfiguration returns narration only at the default music level.
func DefaultMixConfiguration() MixConfiguration {
	return MixConfiguration{
		NarrationGain:     config.NarrationGain,
		BackgroundGain:    config.DefaultBackgroundGain,
		BackgroundTrackID: TrackNone,
	}
}

// Normalize pins the narration gain and clamps the background gain.
func (c MixConfiguration) Normalize() MixConfiguration {
	c.NarrationGain = config.NarrationGain
	if math.IsNaN(c.BackgroundGain) || c.BackgroundGain < 0 {
		c.BackgroundGain = 0
	}
	if c.BackgroundGain > config.MaxBackgroundGain {
		c.BackgroundGain = config.MaxBackgroundGain
	}
	if c.BackgroundTrackID == "" {
		c.BackgroundTrackID = TrackNone
	}
	return c
}

// MixFrames is the output length for a narration: ceil(duration * 44100).
func MixFrames(narration *AudioBuffer) int {
	if narration == nil || narration.SampleRate <= 0 {
		return 0
	}
	n := int64(narration.FrameCount())
	in := int64(narration.SampleRate)
	out := int64(config.MixSampleRate)
	return int((n*out + in - 1) / in)
}

// Mix renders narration once from t=0 at the fixed narration gain and
// background looped from t=0 at backgroundGain into a stereo 44.1 kHz
// buffer exactly as long as the narration. background may be nil.
func Mix(narration, background *AudioBuffer, backgroundGain float64) (*AudioBuffer, error) {
	if narration.NumChannels() == 0 {
		return nil, ErrEmptyBuffer
	}
	frames := MixFrames(narration)
	out := NewAudioBuffer(config.MixChannels, frames, config.MixSampleRate)

	voice := Resample(narration, config.MixSampleRate)
	for c := 0; c < config.MixChannels; c++ {
		src := voice.channel(c)
		dst := out.Channels[c]
		n := min(len(src), frames)
		for i := 0; i < n; i++ {
			dst[i] = float32(float64(src[i]) * config.NarrationGain)
		}
	}

	if background.FrameCount() == 0 || backgroundGain == 0 {
		return out, nil
	}
	music := Resample(background, config.MixSampleRate)
	loopLen := music.FrameCount()
	if loopLen == 0 {
		return out, nil
	}
	for c := 0; c < config.MixChannels; c++ {
		src := music.channel(c)
		dst := out.Channels[c]
		for i := range dst {
			dst[i] += float32(float64(src[i%loopLen]) * backgroundGain)
		}
	}
	return out, nil
}

// Resample converts buf to rate using linear interpolation. A buffer
// already at rate is returned as is.
func Resample(buf *AudioBuffer, rate int) *AudioBuffer {
	if buf.SampleRate == rate || buf.SampleRate <= 0 {
		return buf
	}
	inFrames := buf.FrameCount()
	outFrames := int((int64(inFrames)*int64(rate) + int64(buf.SampleRate) - 1) / int64(buf.SampleRate))
	out := NewAudioBuffer(buf.NumChannels(), outFrames, rate)
	step := float64(buf.SampleRate) / float64(rate)
	for c, src := range buf.Channels {
		dst := out.Channels[c]
		for i := range dst {
			pos := float64(i) * step
			j := int(pos)
			if j >= inFrames {
				break
			}
			frac := pos - float64(j)
			a := float64(src[j])
			var b float64
			if j+1 < inFrames {
				b = float64(src[j+1])
			}
			dst[i] = float32(a + (b-a)*frac)
		}
	}
	return out
}

// Mixer resolves background tracks and produces the final narration mix.
type Mixer struct {
	library *MusicLibrary
	fetcher TrackFetcher
	decoder TrackDecoder
	logger  *zap.Logger
}

// NewMixer wires a mixer. A nil decoder decodes WAV only.
func NewMixer(library *MusicLibrary, fetcher TrackFetcher, decoder TrackDecoder, logger *zap.Logger) *Mixer {
	if decoder == nil {
		decoder = WAVDecoder{}
	}
	if fetcher == nil {
		fetcher = NewTrackFetcher(library.Dir())
	}
	return &Mixer{library: library, fetcher: fetcher, decoder: decoder, logger: logger}
}

// Produce returns the audio that goes into the video. With no background
// track the narration is returned unchanged. Any failure to obtain the
// track yields ErrBackgroundTrack rather than a narration-only result.
func (m *Mixer) Produce(ctx context.Context, narration *AudioBuffer, cfg MixConfiguration) (*AudioBuffer, error) {
	if narration.NumChannels() == 0 {
		return nil, ErrEmptyBuffer
	}
	cfg = cfg.Normalize()
	if cfg.BackgroundTrackID == TrackNone {
		return narration, nil
	}

	track, err := m.library.Resolve(ctx, cfg.BackgroundTrackID, cfg.MoodHint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackgroundTrack, err)
	}
	if track.ID == TrackNone {
		return narration, nil
	}

	data, err := m.fetcher.Fetch(ctx, track.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrBackgroundTrack, track.ID, err)
	}
	music, err := m.decoder.Decode(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrBackgroundTrack, track.ID, err)
	}
	if music.FrameCount() == 0 {
		return nil, fmt.Errorf("%w: %s decoded to no samples", ErrBackgroundTrack, track.ID)
	}

	m.logger.Info("Mixing narration with background track",
		zap.String("track", track.ID),
		zap.Float64("gain", cfg.BackgroundGain),
		zap.Float64("narration_seconds", narration.Seconds()),
		zap.Float64("track_seconds", music.Seconds()))

	return Mix(narration, music, cfg.BackgroundGain)
}
