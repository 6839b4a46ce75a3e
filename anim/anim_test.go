package anim

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWipeStartsFullyColored(t *testing.T) {
	p := New(240)
	dst := image.NewRGBA(image.Rect(0, 0, 64, 64))
	p.wipe(dst, 0)

	// At progress zero every pixel sits past both sweep lines.
	c := dst.RGBAAt(0, 0)
	assert.Equal(t, uint8(0xff), c.R)
	assert.Equal(t, uint8(0xff), c.B)
	assert.Equal(t, uint8(0xff), c.A)

	c = dst.RGBAAt(63, 63)
	assert.Equal(t, uint8(0xff), c.R)
	assert.Equal(t, uint8(0xff), c.B)
}

func TestWipeSweepsWithProgress(t *testing.T) {
	p := New(240)
	dst := image.NewRGBA(image.Rect(0, 0, 64, 64))
	p.wipe(dst, 0.5)

	// Top-left quadrant is behind both sweep lines.
	c := dst.RGBAAt(0, 0)
	assert.Equal(t, uint8(0), c.R)
	assert.Equal(t, uint8(0), c.B)

	// Bottom-right is past both.
	c = dst.RGBAAt(63, 63)
	assert.Equal(t, uint8(0xff), c.R)
	assert.Equal(t, uint8(0xff), c.B)

	// The off quadrants see exactly one component.
	assert.Equal(t, uint8(0xff), dst.RGBAAt(63, 0).R)
	assert.Equal(t, uint8(0), dst.RGBAAt(63, 0).B)
	assert.Equal(t, uint8(0), dst.RGBAAt(0, 63).R)
	assert.Equal(t, uint8(0xff), dst.RGBAAt(0, 63).B)
}

func TestDrawPaintsQuads(t *testing.T) {
	p := New(240)
	dst := image.NewRGBA(image.Rect(0, 0, 128, 128))
	p.Draw(dst, 0)

	// A quad sits on each quadrant center, so those pixels cannot be
	// a pure background color.
	for _, pt := range []image.Point{{32, 32}, {96, 32}, {32, 96}, {96, 96}} {
		c := dst.RGBAAt(pt.X, pt.Y)
		bg := (c.R == 0 || c.R == 0xff) && c.G == 0 && (c.B == 0 || c.B == 0xff)
		assert.False(t, bg, "expected quad coverage at %v, got %v", pt, c)
	}
}

func TestDrawWrapsFrameNumber(t *testing.T) {
	p := New(240)
	a := image.NewRGBA(image.Rect(0, 0, 32, 32))
	b := image.NewRGBA(image.Rect(0, 0, 32, 32))
	p.Draw(a, 3)
	p.Draw(b, 243)
	assert.Equal(t, a.Pix, b.Pix)
}

func TestDrawAnimates(t *testing.T) {
	p := New(240)
	a := image.NewRGBA(image.Rect(0, 0, 32, 32))
	b := image.NewRGBA(image.Rect(0, 0, 32, 32))
	p.Draw(a, 10)
	p.Draw(b, 130)
	assert.NotEqual(t, a.Pix, b.Pix)
}

func TestPainterReusableAcrossSizes(t *testing.T) {
	p := New(240)
	big := image.NewRGBA(image.Rect(0, 0, 128, 128))
	small := image.NewRGBA(image.Rect(0, 0, 32, 32))

	require.NotPanics(t, func() {
		p.Draw(big, 0)
		p.Draw(small, 1)
		p.Draw(big, 2)
	})
}
