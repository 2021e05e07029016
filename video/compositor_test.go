package video

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"testing"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func newTestCompositor(t *testing.T) *Compositor {
	t.Helper()
	c, err := NewCompositor(72, 128)
	if err != nil {
		t.Fatalf("NewCompositor error: %v", err)
	}
	return c
}

func TestSegmentAt(t *testing.T) {
	tests := []struct {
		name         string
		t, d         float64
		n            int
		wantIdx      int
		wantProgress float64
	}{
		{"start", 0, 9, 3, 0, 0},
		{"second boundary", 3.0, 9, 3, 1, 0},
		{"mid second", 4.5, 9, 3, 1, 0.5},
		{"third boundary", 6.0, 9, 3, 2, 0},
		{"outro holds last scene at full progress", 9.5, 9, 3, 2, 1},
		{"outro holds rather than wrapping", 9.99, 9, 3, 2, 1},
		{"single scene", 5, 10, 1, 0, 0.5},
		{"no scenes", 1, 9, 0, -1, 0},
		{"zero narration", 1, 0, 3, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, p := SegmentAt(tt.t, tt.d, tt.n)
			if idx != tt.wantIdx || math.Abs(p-tt.wantProgress) > 1e-9 {
				t.Fatalf("SegmentAt(%v, %v, %d) = (%d, %v); want (%d, %v)",
					tt.t, tt.d, tt.n, idx, p, tt.wantIdx, tt.wantProgress)
			}
		})
	}
}

func TestZoomScale(t *testing.T) {
	tests := []struct {
		index    int
		progress float64
		want     float64
	}{
		{0, 0, 1.0},
		{0, 1, 1.2},
		{1, 0, 1.2},
		{1, 1, 1.0},
		{2, 0.5, 1.1},
		{3, 0.5, 1.1},
	}
	for _, tt := range tests {
		if got := ZoomScale(tt.index, tt.progress); math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("ZoomScale(%d, %v) = %v; want %v", tt.index, tt.progress, got, tt.want)
		}
	}
}

func TestZoomScaleMonotonic(t *testing.T) {
	prevEven, prevOdd := ZoomScale(0, 0), ZoomScale(1, 0)
	for i := 1; i <= 100; i++ {
		p := float64(i) / 100
		even, odd := ZoomScale(0, p), ZoomScale(1, p)
		if even < prevEven {
			t.Fatalf("even zoom decreased at %v", p)
		}
		if odd > prevOdd {
			t.Fatalf("odd zoom increased at %v", p)
		}
		prevEven, prevOdd = even, odd
	}
}

func TestRenderFrameDeterministic(t *testing.T) {
	c := newTestCompositor(t)
	scene := &Scene{
		Images:           []image.Image{solidImage(40, 30, color.RGBA{200, 10, 10, 255}), solidImage(30, 40, color.RGBA{10, 200, 10, 255})},
		Title:            "Glow Serum",
		NarrationSeconds: 4,
	}
	a, b := c.NewFrame(), c.NewFrame()
	c.RenderFrame(a, scene, 2.7)
	c.RenderFrame(b, scene, 2.7)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Fatal("identical inputs rendered different frames")
	}
}

func TestRenderFrameMissingImageIsBlack(t *testing.T) {
	c := newTestCompositor(t)
	scene := &Scene{Images: []image.Image{nil}, NarrationSeconds: 2}
	frame := c.NewFrame()
	c.RenderFrame(frame, scene, 0.5)
	for i := 0; i < len(frame.Pix); i += 4 {
		if frame.Pix[i] != 0 || frame.Pix[i+1] != 0 || frame.Pix[i+2] != 0 {
			t.Fatalf("pixel %d = %v; want black", i/4, frame.Pix[i:i+4])
		}
	}
}

func TestRenderFrameBottomGradient(t *testing.T) {
	c := newTestCompositor(t)
	scene := &Scene{
		Images:           []image.Image{solidImage(72, 128, color.RGBA{255, 255, 255, 255})},
		NarrationSeconds: 3,
	}
	frame := c.NewFrame()
	c.RenderFrame(frame, scene, 0)

	top := frame.RGBAAt(36, 10)
	if top.R != 255 || top.G != 255 || top.B != 255 {
		t.Fatalf("top pixel = %v; want untouched white", top)
	}
	mid := frame.RGBAAt(36, 100)
	bottom := frame.RGBAAt(36, 127)
	if !(mid.R < 255 && bottom.R < mid.R) {
		t.Fatalf("gradient not darkening downwards: mid %d bottom %d", mid.R, bottom.R)
	}
	if bottom.R < 20 || bottom.R > 35 {
		t.Fatalf("bottom pixel = %d; want about 10%% of white", bottom.R)
	}
}

func TestRenderFrameDrawsTitle(t *testing.T) {
	c := newTestCompositor(t)
	scene := &Scene{Images: []image.Image{nil}, Title: "ab", NarrationSeconds: 1}
	frame := c.NewFrame()
	c.RenderFrame(frame, scene, 0)

	lit := false
	for y := 0; y < 128 && !lit; y++ {
		for x := 0; x < 72; x++ {
			if frame.RGBAAt(x, y).R > 0 {
				lit = true
				break
			}
		}
	}
	if !lit {
		t.Fatal("title did not draw any pixels")
	}
	// the baseline sits 80px above the bottom edge, so glyphs never reach the last rows
	for x := 0; x < 72; x++ {
		if frame.RGBAAt(x, 127).R != 0 {
			t.Fatalf("unexpected ink on the bottom row at x=%d", x)
		}
	}
}

func TestArtifactFileName(t *testing.T) {
	tests := []struct {
		title, ext, want string
	}{
		{"Glow Serum", "mp4", "Glow_Serum_PREMIUM_AD.mp4"},
		{"Tab\tName  Two", "webm", "Tab_Name__Two_PREMIUM_AD.webm"},
		{"a/b c", "mp4", "ab_c_PREMIUM_AD.mp4"},
		{"", "webm", "UNTITLED_PREMIUM_AD.webm"},
	}
	for _, tt := range tests {
		if got := ArtifactFileName(tt.title, tt.ext); got != tt.want {
			t.Fatalf("ArtifactFileName(%q) = %q; want %q", tt.title, got, tt.want)
		}
	}
}
