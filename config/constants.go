package config

import "time"

// Video Output Constants
const (
	// VideoWidth is the output video width (9:16 aspect ratio)
	VideoWidth = 720

	// VideoHeight is the output video height (9:16 aspect ratio)
	VideoHeight = 1280

	// FrameRate is the fixed capture frame rate
	FrameRate = 30

	// OutroHold is appended after the narration so the last frame lingers (seconds)
	OutroHold = 1.0

	// VideoBitrate matches the 8 Mbps the encoder is asked for
	VideoBitrate = "8M"

	// AudioBitrate is the audio quality bitrate
	AudioBitrate = "192k"

	// VideoPreset is the ffmpeg encoding speed preset
	VideoPreset = "fast"

	// DefaultOutputFormat selects the container/codec pair used by the encoder
	DefaultOutputFormat = "mp4"
)

// Audio Constants
const (
	// NarrationSampleRate is the rate of the PCM returned by the speech model
	NarrationSampleRate = 24000

	// NarrationChannels is the channel layout of the speech model output
	NarrationChannels = 1

	// MixSampleRate is the target rate of the offline mix
	MixSampleRate = 44100

	// MixChannels is the channel count of the offline mix
	MixChannels = 2

	// NarrationGain compensates for the perceived loudness loss under music
	NarrationGain = 1.4

	// MaxBackgroundGain is the upper bound of the user-tunable music level
	MaxBackgroundGain = 0.5

	// DefaultBackgroundGain is the music level when none is requested
	DefaultBackgroundGain = 0.2
)

// Model Constants
const (
	ScriptModel = "gemini-3-flash-preview"
	ImageModel  = "gemini-2.5-flash-image"
	SpeechModel = "gemini-2.5-flash-preview-tts"

	// EmbeddingModel is the Cohere model used to match music moods
	EmbeddingModel = "embed-multilingual-v3.0"

	// CollaboratorTimeout bounds a single generation call
	CollaboratorTimeout = 2 * time.Minute
)

// History Constants
const (
	// HistoryKey is the store key holding the serialized history list
	HistoryKey = "lookchin_oden_history_v2"

	// MaxHistoryEntries caps the persisted history
	MaxHistoryEntries = 10

	// HistoryIDLength is the length of the random history entry id
	HistoryIDLength = 7
)

// Processing Constants
const (
	// MaxConcurrentProductions limits batch mode parallelism
	MaxConcurrentProductions = 2

	// ProductionBatchDelay is the wait time between batch productions
	ProductionBatchDelay = 2 * time.Second

	// MaxLogEntries is the size of the per-production log ring buffer
	MaxLogEntries = 50

	// MaxTitleLength is the maximum character length for upload titles
	MaxTitleLength = 100
)

// Directory Constants
const (
	// InputDir is the directory containing batch production requests
	InputDir = "input"

	// OutputDir is the directory for generated artifacts
	OutputDir = "output"

	// MusicDir is the directory containing the background tracks
	MusicDir = "music"
)

// YouTube Constants
const (
	// YouTubeCategoryID for People & Blogs
	YouTubeCategoryID = "22"

	// YouTubePrivacyStatus sets video visibility
	YouTubePrivacyStatus = "public"
)
