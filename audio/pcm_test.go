package audio

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestDecodePCM16(t *testing.T) {
	// 0x4000 = 16384, 0x8000 = -32768, 0xFFFF = -1, trailing odd byte dropped
	raw := []byte{0x00, 0x40, 0x00, 0x80, 0xFF, 0xFF, 0x12}
	buf, err := DecodePCM16(raw, 24000, 1)
	if err != nil {
		t.Fatalf("DecodePCM16 error: %v", err)
	}
	want := []float32{0.5, -1, -1.0 / 32768}
	if buf.FrameCount() != len(want) {
		t.Fatalf("frames = %d; want %d", buf.FrameCount(), len(want))
	}
	for i, w := range want {
		if buf.Channels[0][i] != w {
			t.Fatalf("sample %d = %v; want %v", i, buf.Channels[0][i], w)
		}
	}
	if buf.SampleRate != 24000 {
		t.Fatalf("rate = %d; want 24000", buf.SampleRate)
	}
}

func TestDecodePCM16Stereo(t *testing.T) {
	raw := []byte{0x00, 0x40, 0x00, 0xC0, 0x00, 0x20, 0x00, 0xE0}
	buf, err := DecodePCM16(raw, 44100, 2)
	if err != nil {
		t.Fatalf("DecodePCM16 error: %v", err)
	}
	if buf.FrameCount() != 2 {
		t.Fatalf("frames = %d; want 2", buf.FrameCount())
	}
	if buf.Channels[0][0] != 0.5 || buf.Channels[1][0] != -0.5 || buf.Channels[0][1] != 0.25 || buf.Channels[1][1] != -0.25 {
		t.Fatalf("bad de-interleave: %v", buf.Channels)
	}
}

func TestDecodeBase64PCM(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
		frames  int
	}{
		{"valid", base64.StdEncoding.EncodeToString([]byte{0, 0, 0, 0x40}), nil, 2},
		{"empty", "", ErrNoAudio, 0},
		{"single byte", base64.StdEncoding.EncodeToString([]byte{7}), ErrNoAudio, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := DecodeBase64PCM(tt.payload, 24000, 1)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v; want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if buf.FrameCount() != tt.frames {
				t.Fatalf("frames = %d; want %d", buf.FrameCount(), tt.frames)
			}
		})
	}

	if _, err := DecodeBase64PCM("%%%not-base64", 24000, 1); err == nil || errors.Is(err, ErrNoAudio) {
		t.Fatalf("malformed base64 err = %v; want decode error", err)
	}
}
