package video

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"clipfarm/config"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

const (
	zoomMin = 1.0
	zoomMax = 1.2

	gradientStart = 0.6
	gradientAlpha = 0.9

	titleSize          = 32
	titleLetterSpacing = 8
	titleBaselineInset = 80
)

// Scene is everything the compositor needs besides the time.
type Scene struct {
	Images           []image.Image
	Title            string
	NarrationSeconds float64
}

// TotalSeconds is the video length: narration plus the outro hold.
func (s *Scene) TotalSeconds() float64 {
	return s.NarrationSeconds + config.OutroHold
}

// SegmentAt maps a time to the scene index and the progress through it.
// Segments share the narration duration equally; during the outro the last
// segment stays at full progress.
func SegmentAt(t, narrationSeconds float64, n int) (int, float64) {
	if n <= 0 {
		return -1, 0
	}
	if narrationSeconds <= 0 {
		return 0, 0
	}
	segDur := narrationSeconds / float64(n)
	idx := int(math.Floor(t / segDur))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	progress := (t - float64(idx)*segDur) / segDur
	return idx, math.Max(0, math.Min(1, progress))
}

// ZoomScale is the Ken Burns factor: even scenes push in 1.0 to 1.2, odd
// scenes pull out 1.2 to 1.0.
func ZoomScale(index int, progress float64) float64 {
	if index%2 == 0 {
		return zoomMin + (zoomMax-zoomMin)*progress
	}
	return zoomMax - (zoomMax-zoomMin)*progress
}

// Compositor draws frames onto a fixed size canvas. It holds no per-frame
// state, so identical inputs always produce identical pixels.
type Compositor struct {
	width, height int
	face          font.Face
	// rowShade[y] is the multiplier the bottom gradient applies to row y
	rowShade []float64
}

// NewCompositor uses the bundled Go Bold face for the title.
func NewCompositor(width, height int) (*Compositor, error) {
	return NewCompositorWithFont(width, height, gobold.TTF)
}

// NewCompositorWithFont uses a custom TrueType/OpenType face for the title.
func NewCompositorWithFont(width, height int, ttf []byte) (*Compositor, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid canvas %dx%d", width, height)
	}
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("parse title font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    titleSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create title face: %w", err)
	}

	c := &Compositor{width: width, height: height, face: face, rowShade: make([]float64, height)}
	top := float64(height) * gradientStart
	span := float64(height) - top
	for y := range c.rowShade {
		center := float64(y) + 0.5
		if center < top {
			c.rowShade[y] = 1
			continue
		}
		alpha := gradientAlpha * math.Min(1, (center-top)/span)
		c.rowShade[y] = 1 - alpha
	}
	return c, nil
}

func (c *Compositor) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.width, c.height)
}

// NewFrame allocates a canvas sized for this compositor.
func (c *Compositor) NewFrame() *image.RGBA {
	return image.NewRGBA(c.Bounds())
}

// RenderFrame draws the frame at time t (seconds) into dst.
func (c *Compositor) RenderFrame(dst *image.RGBA, scene *Scene, t float64) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	idx, progress := SegmentAt(t, scene.NarrationSeconds, len(scene.Images))
	if idx >= 0 {
		if img := scene.Images[idx]; img != nil {
			c.drawCover(dst, img, ZoomScale(idx, progress))
		}
	}

	c.shadeBottom(dst)
	c.drawTitle(dst, scene.Title)
}

// drawCover scales img to cover the canvas, multiplied by zoom, centered.
func (c *Compositor) drawCover(dst *image.RGBA, img image.Image, zoom float64) {
	b := img.Bounds()
	iw, ih := float64(b.Dx()), float64(b.Dy())
	if iw == 0 || ih == 0 {
		return
	}
	cw, ch := float64(c.width), float64(c.height)
	scale := math.Max(cw/iw, ch/ih) * zoom
	nx := (cw - iw*scale) / 2
	ny := (ch - ih*scale) / 2

	m := f64.Aff3{
		scale, 0, nx - scale*float64(b.Min.X),
		0, scale, ny - scale*float64(b.Min.Y),
	}
	draw.BiLinear.Transform(dst, m, img, b, draw.Over, nil)
}

func (c *Compositor) shadeBottom(dst *image.RGBA) {
	top := int(float64(c.height) * gradientStart)
	for y := top; y < c.height; y++ {
		k := c.rowShade[y]
		if k >= 1 {
			continue
		}
		row := dst.Pix[y*dst.Stride : y*dst.Stride+c.width*4]
		for x := 0; x < len(row); x += 4 {
			row[x] = uint8(float64(row[x])*k + 0.5)
			row[x+1] = uint8(float64(row[x+1])*k + 0.5)
			row[x+2] = uint8(float64(row[x+2])*k + 0.5)
		}
	}
}

// drawTitle renders the uppercase title, letter-spaced and centered with its
// baseline 80px above the bottom edge. Spacing follows every glyph including
// the last, as canvas letter-spacing does.
func (c *Compositor) drawTitle(dst *image.RGBA, title string) {
	title = strings.ToUpper(strings.TrimSpace(title))
	if title == "" {
		return
	}
	spacing := fixed.I(titleLetterSpacing)

	var width fixed.Int26_6
	prev := rune(-1)
	for _, r := range title {
		if prev >= 0 {
			width += c.face.Kern(prev, r)
		}
		adv, _ := c.face.GlyphAdvance(r)
		width += adv + spacing
		prev = r
	}

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: c.face,
		Dot: fixed.Point26_6{
			X: fixed.I(c.width/2) - width/2,
			Y: fixed.I(c.height - titleBaselineInset),
		},
	}
	prev = -1
	for _, r := range title {
		if prev >= 0 {
			d.Dot.X += c.face.Kern(prev, r)
		}
		d.DrawString(string(r))
		d.Dot.X += spacing
		prev = r
	}
}
