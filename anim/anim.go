// Package anim paints the demonstration animation: a two-tone wipe
// sweeping across the frame once per period, with four antialiased quads
// spinning over it, one per quadrant.
package anim

import (
	"image"
	"image/color"
	"math"

	"github.com/golang/freetype/raster"
	"golang.org/x/image/math/fixed"
)

// Painter renders animation frames into an RGBA image. A Painter is
// reusable across frames and outputs of the same size; the rasterizer is
// resized lazily on first use per size.
type Painter struct {
	frames int
	rast   *raster.Rasterizer
	rw, rh int
}

// New returns a painter with the given animation period in frames.
func New(frames int) *Painter {
	if frames < 1 {
		frames = 1
	}
	return &Painter{frames: frames}
}

var quadColors = [4]color.RGBA{
	{R: 0xe6, G: 0xe6, B: 0xe6, A: 0xff},
	{R: 0xe6, G: 0xb4, B: 0x28, A: 0xff},
	{R: 0x28, G: 0xe6, B: 0xb4, A: 0xff},
	{R: 0xb4, G: 0x28, B: 0xe6, A: 0xff},
}

// Draw paints frame number frame into dst. The frame number wraps at the
// painter's period.
func (p *Painter) Draw(dst *image.RGBA, frame int) {
	progress := float64(frame%p.frames) / float64(p.frames)
	p.wipe(dst, progress)
	p.quads(dst, progress)
}

// wipe fills the background: red past the horizontal sweep line, blue past
// the vertical one, so each frame of the period is distinguishable at a
// glance.
func (p *Painter) wipe(dst *image.RGBA, progress float64) {
	w := dst.Rect.Dx()
	h := dst.Rect.Dy()
	xSplit := int(float64(w) * progress)
	ySplit := int(float64(h) * progress)
	for y := 0; y < h; y++ {
		var blue uint8
		if y >= ySplit {
			blue = 0xff
		}
		row := dst.Pix[dst.PixOffset(dst.Rect.Min.X, dst.Rect.Min.Y+y):]
		for x := 0; x < w; x++ {
			var red uint8
			if x >= xSplit {
				red = 0xff
			}
			row[x*4+0] = red
			row[x*4+1] = 0
			row[x*4+2] = blue
			row[x*4+3] = 0xff
		}
	}
}

// quads renders one rotating antialiased square per quadrant, each a
// quarter turn out of phase with its neighbors.
func (p *Painter) quads(dst *image.RGBA, progress float64) {
	w := dst.Rect.Dx()
	h := dst.Rect.Dy()
	if p.rast == nil || p.rw < w || p.rh < h {
		p.rast = raster.NewRasterizer(w, h)
		p.rw, p.rh = w, h
	}
	painter := raster.NewRGBAPainter(dst)

	half := float64(min(w, h)) / 8
	centers := [4][2]float64{
		{float64(w) / 4, float64(h) / 4},
		{3 * float64(w) / 4, float64(h) / 4},
		{float64(w) / 4, 3 * float64(h) / 4},
		{3 * float64(w) / 4, 3 * float64(h) / 4},
	}
	for i, c := range centers {
		angle := 2*math.Pi*progress + float64(i)*math.Pi/2
		painter.SetColor(quadColors[i])
		p.quad(painter, c[0], c[1], half, angle)
	}
}

// quad rasterizes one square of the given half-diagonal, rotated by angle
// around its center.
func (p *Painter) quad(painter raster.Painter, cx, cy, half, angle float64) {
	pt := func(phase float64) fixed.Point26_6 {
		return fixed.Point26_6{
			X: fixed.Int26_6((cx + half*math.Cos(angle+phase)) * 64),
			Y: fixed.Int26_6((cy + half*math.Sin(angle+phase)) * 64),
		}
	}
	p.rast.Clear()
	p.rast.UseNonZeroWinding = true
	p.rast.Start(pt(0))
	for i := 1; i < 4; i++ {
		p.rast.Add1(pt(float64(i) * math.Pi / 2))
	}
	p.rast.Add1(pt(0))
	p.rast.Rasterize(painter)
}
