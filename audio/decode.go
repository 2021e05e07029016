package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// TrackFetcher loads the raw bytes of a music asset.
type TrackFetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// TrackDecoder turns an encoded music asset into samples at its native rate.
type TrackDecoder interface {
	Decode(ctx context.Context, data []byte) (*AudioBuffer, error)
}

type trackFetcher struct {
	dir    string
	client *http.Client
}

// NewTrackFetcher reads local paths (relative to dir) and http(s) URLs.
func NewTrackFetcher(dir string) TrackFetcher {
	return &trackFetcher{dir: dir, client: http.DefaultClient}
}

func isRemote(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

func (f *trackFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, fmt.Errorf("empty track location")
	}
	if !isRemote(location) {
		if !filepath.IsAbs(location) && f.dir != "" && !strings.HasPrefix(location, f.dir) {
			location = filepath.Join(f.dir, location)
		}
		return os.ReadFile(location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// WAVDecoder decodes 16-bit PCM WAV assets only.
type WAVDecoder struct{}

func (WAVDecoder) Decode(_ context.Context, data []byte) (*AudioBuffer, error) {
	return DecodeWAV(data)
}

// FFmpegDecoder decodes any format ffmpeg understands. WAV input is decoded
// natively.
type FFmpegDecoder struct {
	FFmpegPath string
	TempDir    string
}

type probeResult struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

func (d FFmpegDecoder) Decode(ctx context.Context, data []byte) (*AudioBuffer, error) {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		if buf, err := DecodeWAV(data); err == nil {
			return buf, nil
		}
	}

	tmp, err := os.CreateTemp(d.TempDir, "track-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	tmp.Close()

	rate, channels, err := probeAudio(tmp.Name())
	if err != nil {
		return nil, err
	}

	var pcm, stderr bytes.Buffer
	stream := ffmpeg.Input(tmp.Name()).
		Output("pipe:", ffmpeg.KwArgs{
			"f":      "s16le",
			"acodec": "pcm_s16le",
			"ar":     rate,
			"ac":     channels,
		})
	if d.FFmpegPath != "" {
		stream = stream.SetFfmpegPath(d.FFmpegPath)
	}

	cmd := stream.Compile()
	cmd.Stdout = &pcm
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed to start: %w", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg decode failed: %w: %s", err, lastLine(stderr.String()))
		}
	}

	return DecodePCM16(pcm.Bytes(), rate, channels)
}

func probeAudio(path string) (int, int, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	var pr probeResult
	if err := json.Unmarshal([]byte(out), &pr); err != nil {
		return 0, 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	for _, s := range pr.Streams {
		if s.CodecType != "audio" {
			continue
		}
		rate, err := strconv.Atoi(s.SampleRate)
		if err != nil || rate <= 0 {
			return 0, 0, fmt.Errorf("invalid sample rate %q", s.SampleRate)
		}
		channels := s.Channels
		if channels <= 0 {
			channels = 2
		}
		return rate, channels, nil
	}
	return 0, 0, fmt.Errorf("no audio stream in %s", filepath.Base(path))
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
