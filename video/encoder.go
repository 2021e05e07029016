package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"clipfarm/config"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"golang.org/x/sync/errgroup"
)

// EncoderConfig describes the stream an encoder receives.
type EncoderConfig struct {
	Width     int
	Height    int
	FrameRate int
	// AudioWAV is muxed as the soundtrack
	AudioWAV []byte
}

// Encoder consumes RGBA frames and produces a finished file.
type Encoder interface {
	// WriteFrame submits one width*height*4 RGBA frame.
	WriteFrame(pix []byte) error
	// Close flushes the encoder and returns the concatenated output chunks.
	Close() ([]byte, error)
	// Abort stops the encoder and discards its output.
	Abort()
}

// EncoderFactory creates one encoder per render cycle.
type EncoderFactory interface {
	NewEncoder(ctx context.Context, cfg EncoderConfig) (Encoder, error)
	ContentType() string
	Extension() string
}

// Format is an output container/codec profile
type Format struct {
	Name        string
	ContentType string
	Extension   string
	Args        ffmpeg.KwArgs
}

var formats = map[string]Format{
	"mp4": {
		Name:        "mp4",
		ContentType: "video/mp4",
		Extension:   "mp4",
		Args: ffmpeg.KwArgs{
			"c:v":      "libx264",
			"pix_fmt":  "yuv420p",
			"preset":   config.VideoPreset,
			"b:v":      config.VideoBitrate,
			"c:a":      "aac",
			"b:a":      config.AudioBitrate,
			"movflags": "frag_keyframe+empty_moov+default_base_moof",
			"f":        "mp4",
		},
	},
	"webm": {
		Name:        "webm",
		ContentType: "video/webm",
		Extension:   "webm",
		Args: ffmpeg.KwArgs{
			"c:v":      "libvpx-vp9",
			"b:v":      config.VideoBitrate,
			"deadline": "realtime",
			"c:a":      "libopus",
			"b:a":      config.AudioBitrate,
			"f":        "webm",
		},
	},
}

// LookupFormat returns the profile for "mp4" or "webm".
func LookupFormat(name string) (Format, error) {
	f, ok := formats[strings.ToLower(name)]
	if !ok {
		return Format{}, fmt.Errorf("unsupported output format %q", name)
	}
	return f, nil
}

// FFmpegFactory pipes raw frames into an ffmpeg process.
type FFmpegFactory struct {
	format     Format
	ffmpegPath string
	tempDir    string
}

func NewFFmpegFactory(format Format, ffmpegPath, tempDir string) *FFmpegFactory {
	return &FFmpegFactory{format: format, ffmpegPath: ffmpegPath, tempDir: tempDir}
}

func (f *FFmpegFactory) ContentType() string { return f.format.ContentType }
func (f *FFmpegFactory) Extension() string   { return f.format.Extension }

// NewEncoder starts ffmpeg with rawvideo on stdin and the WAV soundtrack as
// a second input. Fragmented output is collected from stdout as it arrives.
func (f *FFmpegFactory) NewEncoder(ctx context.Context, cfg EncoderConfig) (Encoder, error) {
	audioFile, err := os.CreateTemp(f.tempDir, "mix-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create audio temp file: %w", err)
	}
	if _, err := audioFile.Write(cfg.AudioWAV); err != nil {
		audioFile.Close()
		os.Remove(audioFile.Name())
		return nil, fmt.Errorf("failed to write audio temp file: %w", err)
	}
	audioFile.Close()

	frames := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"f":         "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"framerate": cfg.FrameRate,
	})
	soundtrack := ffmpeg.Input(audioFile.Name())

	args := ffmpeg.KwArgs{"r": cfg.FrameRate}
	for k, v := range f.format.Args {
		args[k] = v
	}
	stream := ffmpeg.Output([]*ffmpeg.Stream{frames, soundtrack}, "pipe:", args)
	if f.ffmpegPath != "" {
		stream = stream.SetFfmpegPath(f.ffmpegPath)
	}

	cmd := stream.Compile()
	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.Remove(audioFile.Name())
		return nil, fmt.Errorf("failed to open ffmpeg stdin: %w", err)
	}
	enc := &ffmpegEncoder{
		stdin:     stdin,
		audioPath: audioFile.Name(),
		frameSize: cfg.Width * cfg.Height * 4,
	}
	cmd.Stdout = &enc.chunks
	cmd.Stderr = &enc.stderr

	if err := cmd.Start(); err != nil {
		os.Remove(audioFile.Name())
		return nil, fmt.Errorf("ffmpeg failed to start: %w", err)
	}
	enc.kill = func() { _ = cmd.Process.Kill() }

	enc.group.Go(func() error {
		err := cmd.Wait()
		os.Remove(enc.audioPath)
		if err != nil {
			return fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(enc.stderr.String()))
		}
		return nil
	})
	// kill the process if the caller gives up
	stop := context.AfterFunc(ctx, enc.Abort)
	enc.stopWatch = stop

	return enc, nil
}

type ffmpegEncoder struct {
	stdin     io.WriteCloser
	audioPath string
	frameSize int
	chunks    chunkWriter
	stderr    syncBuffer
	group     errgroup.Group
	kill      func()
	stopWatch func() bool

	once    sync.Once
	aborted atomic.Bool
}

func (e *ffmpegEncoder) WriteFrame(pix []byte) error {
	if len(pix) != e.frameSize {
		return fmt.Errorf("frame is %d bytes, want %d", len(pix), e.frameSize)
	}
	if _, err := e.stdin.Write(pix); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (e *ffmpegEncoder) Close() ([]byte, error) {
	e.stopWatch()
	if err := e.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		e.Abort()
		return nil, fmt.Errorf("close ffmpeg stdin: %w", err)
	}
	if err := e.group.Wait(); err != nil {
		return nil, err
	}
	if e.aborted.Load() {
		return nil, errors.New("encoder aborted")
	}
	return e.chunks.Bytes(), nil
}

func (e *ffmpegEncoder) Abort() {
	e.once.Do(func() {
		e.aborted.Store(true)
		e.stdin.Close()
		e.kill()
	})
	_ = e.group.Wait()
}

// chunkWriter keeps every write as a separate chunk, like a recorder's
// dataavailable events, and concatenates them on demand.
type chunkWriter struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.chunks = append(w.chunks, append([]byte(nil), p...))
	w.size += len(p)
	w.mu.Unlock()
	return len(p), nil
}

func (w *chunkWriter) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]byte, 0, w.size)
	for _, c := range w.chunks {
		out = append(out, c...)
	}
	return out
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
