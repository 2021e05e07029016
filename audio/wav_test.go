package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestSampleToInt16(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{2.5, 32767},
		{-3, -32768},
		{0.5, 16384},
		{-0.5, -16384},
		{float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		if got := SampleToInt16(tt.in); got != tt.want {
			t.Fatalf("SampleToInt16(%v) = %d; want %d", tt.in, got, tt.want)
		}
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		rate     int
		frames   int
	}{
		{"mono narration", 1, 24000, 480},
		{"stereo mix", 2, 44100, 441},
		{"header only", 2, 44100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewAudioBuffer(tt.channels, tt.frames, tt.rate)
			data, err := EncodeWAV(buf)
			if err != nil {
				t.Fatalf("EncodeWAV error: %v", err)
			}
			dataLen := tt.frames * tt.channels * 2
			if len(data) != 44+dataLen {
				t.Fatalf("len = %d; want %d", len(data), 44+dataLen)
			}
			if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
				t.Fatalf("bad chunk ids: %q", data[:40])
			}
			le := binary.LittleEndian
			if got := le.Uint32(data[4:]); got != uint32(36+dataLen) {
				t.Fatalf("RIFF size = %d; want %d", got, 36+dataLen)
			}
			if got := le.Uint32(data[16:]); got != 16 {
				t.Fatalf("fmt size = %d; want 16", got)
			}
			if got := le.Uint16(data[20:]); got != 1 {
				t.Fatalf("format = %d; want 1", got)
			}
			if got := le.Uint16(data[22:]); got != uint16(tt.channels) {
				t.Fatalf("channels = %d; want %d", got, tt.channels)
			}
			if got := le.Uint32(data[24:]); got != uint32(tt.rate) {
				t.Fatalf("sample rate = %d; want %d", got, tt.rate)
			}
			if got := le.Uint32(data[28:]); got != uint32(tt.rate*tt.channels*2) {
				t.Fatalf("byte rate = %d; want %d", got, tt.rate*tt.channels*2)
			}
			if got := le.Uint16(data[32:]); got != uint16(tt.channels*2) {
				t.Fatalf("block align = %d; want %d", got, tt.channels*2)
			}
			if got := le.Uint16(data[34:]); got != 16 {
				t.Fatalf("bits = %d; want 16", got)
			}
			if got := le.Uint32(data[40:]); got != uint32(dataLen) {
				t.Fatalf("data size = %d; want %d", got, dataLen)
			}
		})
	}
}

func TestEncodeWAVInterleaves(t *testing.T) {
	buf := &AudioBuffer{SampleRate: 44100, Channels: [][]float32{{1, 0}, {-1, 0.5}}}
	data, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV error: %v", err)
	}
	want := []int16{32767, -32768, 0, 16384}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(data[44+i*2:]))
		if got != w {
			t.Fatalf("sample %d = %d; want %d", i, got, w)
		}
	}
}

func TestEncodeWAVRejectsEmpty(t *testing.T) {
	if _, err := EncodeWAV(nil); !errors.Is(err, ErrEmptyBuffer) {
		t.Fatalf("nil buffer err = %v; want ErrEmptyBuffer", err)
	}
	if _, err := EncodeWAV(&AudioBuffer{SampleRate: 44100}); !errors.Is(err, ErrEmptyBuffer) {
		t.Fatalf("zero channels err = %v; want ErrEmptyBuffer", err)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	const frames = 65536
	buf := NewAudioBuffer(2, frames, 44100)
	for i := 0; i < frames; i++ {
		ramp := -1 + 2*float64(i)/float64(frames-1)
		buf.Channels[0][i] = float32(ramp)
		buf.Channels[1][i] = float32(math.Sin(float64(i) / 10))
	}
	buf.Channels[1][0] = 0.99999
	buf.Channels[1][1] = 1
	buf.Channels[1][2] = -1
	data, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV error: %v", err)
	}
	got, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV error: %v", err)
	}
	if got.SampleRate != 44100 || got.NumChannels() != 2 || got.FrameCount() != frames {
		t.Fatalf("decoded shape = %d Hz %d ch %d frames", got.SampleRate, got.NumChannels(), got.FrameCount())
	}
	for c := 0; c < 2; c++ {
		for i := 0; i < frames; i++ {
			if d := math.Abs(float64(got.Channels[c][i]) - float64(buf.Channels[c][i])); d > 1.0/32768 {
				t.Fatalf("ch %d frame %d: %g decoded as %g (error %g)", c, i, buf.Channels[c][i], got.Channels[c][i], d)
			}
		}
	}
	if got.Channels[1][1] != 1 || got.Channels[1][2] != -1 {
		t.Fatalf("full scale decoded as %g, %g", got.Channels[1][1], got.Channels[1][2])
	}
}

func TestInt16ToSampleInvertsSampleToInt16(t *testing.T) {
	for _, v := range []int16{-32768, -16384, -1, 0, 1, 16384, 32767} {
		if got := SampleToInt16(Int16ToSample(v)); got != v {
			t.Fatalf("SampleToInt16(Int16ToSample(%d)) = %d", v, got)
		}
	}
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	data, err := EncodeWAV(&AudioBuffer{SampleRate: 24000, Channels: [][]float32{{0.25, -0.25}}})
	if err != nil {
		t.Fatalf("EncodeWAV error: %v", err)
	}
	var b bytes.Buffer
	b.Write(data[:36])
	b.WriteString("LIST")
	binary.Write(&b, binary.LittleEndian, uint32(3))
	b.Write([]byte{1, 2, 3, 0})
	b.Write(data[36:])

	got, err := DecodeWAV(b.Bytes())
	if err != nil {
		t.Fatalf("DecodeWAV error: %v", err)
	}
	if got.FrameCount() != 2 || got.Channels[0][0] <= 0 {
		t.Fatalf("unexpected decode: %+v", got.Channels)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, err := DecodeWAV([]byte("definitely not audio")); err == nil {
		t.Fatalf("expected error for non-wav data")
	}
}

func TestReadWAVInfo(t *testing.T) {
	data, err := EncodeWAV(NewAudioBuffer(2, 44100*3, 44100))
	if err != nil {
		t.Fatalf("EncodeWAV error: %v", err)
	}
	info, err := ReadWAVInfo(data)
	if err != nil {
		t.Fatalf("ReadWAVInfo error: %v", err)
	}
	if info.Channels != 2 || info.SampleRate != 44100 || info.Frames != 44100*3 {
		t.Fatalf("info = %+v", info)
	}
	if info.Seconds() != 3 {
		t.Fatalf("Seconds = %v; want 3", info.Seconds())
	}
}
