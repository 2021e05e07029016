package audio

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodePCM16 converts raw little-endian signed 16-bit PCM into a buffer.
// A trailing odd byte or incomplete frame is dropped.
func DecodePCM16(raw []byte, sampleRate, channels int) (*AudioBuffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	if len(raw) < 2*channels {
		return nil, ErrNoAudio
	}
	return decodeInterleaved(raw, sampleRate, channels, pcmToSample), nil
}

// DecodeBase64PCM decodes a base64 payload of raw PCM as returned by the
// speech model.
func DecodeBase64PCM(b64 string, sampleRate, channels int) (*AudioBuffer, error) {
	b64 = strings.TrimSpace(b64)
	if b64 == "" {
		return nil, ErrNoAudio
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode speech payload: %w", err)
	}
	return DecodePCM16(raw, sampleRate, channels)
}
