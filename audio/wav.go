package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	wavHeaderSize = 44
	bitsPerSample = 16
	pcmFormat     = 1
)

// binaryWriter keeps the first write error so the header can be laid out
// without checking every field.
type binaryWriter struct {
	w   io.Writer
	err error
}

func (bw *binaryWriter) fourCC(s string) {
	if bw.err != nil {
		return
	}
	_, bw.err = io.WriteString(bw.w, s)
}

func (bw *binaryWriter) u32(v uint32) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *binaryWriter) u16(v uint16) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *binaryWriter) bytes(p []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(p)
}

// EncodeWAV serializes buf as a 16-bit PCM WAV file.
func EncodeWAV(buf *AudioBuffer) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(wavHeaderSize + buf.FrameCount()*buf.NumChannels()*2)
	if err := WriteWAV(&out, buf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// WriteWAV writes the 44-byte RIFF header followed by interleaved samples.
// A buffer with zero frames produces a valid header-only file.
func WriteWAV(w io.Writer, buf *AudioBuffer) error {
	if buf.NumChannels() == 0 {
		return ErrEmptyBuffer
	}
	if buf.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", buf.SampleRate)
	}
	channels := buf.NumChannels()
	frames := buf.FrameCount()
	for i, ch := range buf.Channels {
		if len(ch) != frames {
			return fmt.Errorf("channel %d has %d frames, want %d", i, len(ch), frames)
		}
	}

	blockAlign := channels * bitsPerSample / 8
	dataLen := frames * blockAlign

	bw := &binaryWriter{w: w}
	bw.fourCC("RIFF")
	bw.u32(uint32(36 + dataLen))
	bw.fourCC("WAVE")
	bw.fourCC("fmt ")
	bw.u32(16)
	bw.u16(pcmFormat)
	bw.u16(uint16(channels))
	bw.u32(uint32(buf.SampleRate))
	bw.u32(uint32(buf.SampleRate * blockAlign))
	bw.u16(uint16(blockAlign))
	bw.u16(bitsPerSample)
	bw.fourCC("data")
	bw.u32(uint32(dataLen))

	// interleave in chunks to keep allocations bounded for long tracks
	const chunkFrames = 4096
	scratch := make([]byte, chunkFrames*blockAlign)
	for start := 0; start < frames && bw.err == nil; start += chunkFrames {
		end := min(start+chunkFrames, frames)
		n := 0
		for i := start; i < end; i++ {
			for c := 0; c < channels; c++ {
				binary.LittleEndian.PutUint16(scratch[n:], uint16(SampleToInt16(buf.Channels[c][i])))
				n += 2
			}
		}
		bw.bytes(scratch[:n])
	}
	return bw.err
}

// SampleToInt16 clamps s to [-1, 1] and scales asymmetrically so that -1 maps
// to -32768 and 1 maps to 32767.
func SampleToInt16(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-1, math.Min(1, v))
	if v < 0 {
		return int16(math.Round(v * 32768))
	}
	return int16(math.Round(v * 32767))
}

// WAVInfo describes the format of a PCM WAV file.
type WAVInfo struct {
	SampleRate int
	Channels   int
	Frames     int
}

// Seconds is the playback length of the file.
func (i WAVInfo) Seconds() float64 {
	if i.SampleRate <= 0 {
		return 0
	}
	return float64(i.Frames) / float64(i.SampleRate)
}

// ReadWAVInfo parses only the header chunks of a 16-bit PCM WAV file.
func ReadWAVInfo(data []byte) (WAVInfo, error) {
	info, _, err := parseWAV(data)
	return info, err
}

// DecodeWAV parses a 16-bit PCM WAV file. Unknown chunks are skipped.
func DecodeWAV(data []byte) (*AudioBuffer, error) {
	info, pcm, err := parseWAV(data)
	if err != nil {
		return nil, err
	}
	return decodeInterleaved(pcm, info.SampleRate, info.Channels, Int16ToSample), nil
}

func parseWAV(data []byte) (WAVInfo, []byte, error) {
	var info WAVInfo
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return info, nil, errors.New("not a RIFF/WAVE file")
	}

	var (
		bits    int
		haveFmt bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			// tolerate a truncated data chunk
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return info, nil, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			format := binary.LittleEndian.Uint16(data[body:])
			if format != pcmFormat {
				return info, nil, fmt.Errorf("unsupported wav format %d", format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bits = int(binary.LittleEndian.Uint16(data[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return info, nil, errors.New("data chunk before fmt chunk")
			}
			if bits != bitsPerSample {
				return info, nil, fmt.Errorf("unsupported bit depth %d", bits)
			}
			if info.Channels == 0 {
				return info, nil, ErrEmptyBuffer
			}
			pcm := data[body : body+size]
			info.Frames = len(pcm) / (2 * info.Channels)
			return info, pcm, nil
		}

		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}
	return info, nil, errors.New("wav file has no data chunk")
}

// Int16ToSample is the inverse of SampleToInt16.
func Int16ToSample(v int16) float32 {
	if v < 0 {
		return float32(v) / 32768
	}
	return float32(v) / 32767
}

// pcmToSample scales by 1/32768, the convention of raw speech output.
func pcmToSample(v int16) float32 {
	return float32(v) / 32768
}

// decodeInterleaved splits little-endian int16 frames into planar channels.
func decodeInterleaved(raw []byte, rate, channels int, scale func(int16) float32) *AudioBuffer {
	frames := len(raw) / (2 * channels)
	buf := NewAudioBuffer(channels, frames, rate)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			buf.Channels[c][i] = scale(int16(binary.LittleEndian.Uint16(raw[off:])))
		}
	}
	return buf
}
