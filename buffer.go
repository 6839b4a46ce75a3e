package kmsplay

import (
	"fmt"
	"image"

	"golang.org/x/sys/unix"

	"github.com/BeatGlow/kmsplay/internal/drm"
)

// Buffer is one CPU-accessible scanout buffer owned by a single output. A
// buffer is either free, or in flight between being handed to a commit and
// the retirement of the frame that replaced it on screen.
type Buffer struct {
	output *Output

	handle uint32
	fbID   uint32
	width  int
	height int
	pitch  int
	mem    []byte

	format   uint32
	modifier uint64

	inUse bool

	// renderFence signals render completion to the display engine,
	// kmsFence signals the display engine's release back to us. Both are
	// -1 while unused; CPU rendering leaves renderFence at -1 always.
	renderFence int
	kmsFence    int
}

// newBuffer allocates a kernel-backed buffer sized to the output's mode,
// maps it, and registers it as a framebuffer. The linear modifier is
// advertised explicitly when the device supports modifiers, since dumb
// buffers are always linear.
func newBuffer(d *Device, o *Output) (*Buffer, error) {
	w := int(o.Mode.HDisplay)
	h := int(o.Mode.VDisplay)

	db, err := drm.CreateDumb(d.fd, uint32(w), uint32(h), 32)
	if err != nil {
		return nil, fmt.Errorf("create buffer for %s: %w", o.Name, err)
	}
	b := &Buffer{
		output:      o,
		handle:      db.Handle,
		width:       w,
		height:      h,
		pitch:       int(db.Pitch),
		format:      drm.FormatXRGB8888,
		modifier:    drm.ModifierInvalid,
		renderFence: -1,
		kmsFence:    -1,
	}

	mem, err := drm.MapDumbBuffer(d.fd, db.Handle, db.Size)
	if err != nil {
		b.destroy(d.fd)
		return nil, fmt.Errorf("map buffer for %s: %w", o.Name, err)
	}
	b.mem = mem

	handles := [4]uint32{db.Handle}
	pitches := [4]uint32{db.Pitch}
	var offsets [4]uint32
	var modifiers [4]uint64
	var flags uint32
	if d.fbModifiers && o.supportsLinear() {
		b.modifier = drm.ModifierLinear
		modifiers[0] = drm.ModifierLinear
		flags = drm.FBModifiers
	}
	fb, err := drm.AddFB2(d.fd, uint32(w), uint32(h), b.format, handles, pitches, offsets, modifiers, flags)
	if err != nil {
		b.destroy(d.fd)
		return nil, fmt.Errorf("register framebuffer for %s: %w", o.Name, err)
	}
	b.fbID = fb
	return b, nil
}

// Bounds returns the paintable area.
func (b *Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.width, b.height)
}

// InUse reports whether the buffer is queued or on screen.
func (b *Buffer) InUse() bool { return b.inUse }

func (b *Buffer) retire() { b.inUse = false }

// Draw copies src into the buffer, converting to the buffer's native pixel
// layout and honoring the driver-chosen row stride.
func (b *Buffer) Draw(src *image.RGBA) {
	w := b.width
	if sw := src.Rect.Dx(); sw < w {
		w = sw
	}
	h := b.height
	if sh := src.Rect.Dy(); sh < h {
		h = sh
	}
	for y := 0; y < h; y++ {
		dst := b.mem[y*b.pitch:]
		row := src.Pix[src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y):]
		for x := 0; x < w; x++ {
			// XRGB8888 is BGRX in memory on little-endian.
			dst[x*4+0] = row[x*4+2]
			dst[x*4+1] = row[x*4+1]
			dst[x*4+2] = row[x*4+0]
			dst[x*4+3] = 0xff
		}
	}
}

func (b *Buffer) destroy(fd uintptr) {
	if b.kmsFence >= 0 {
		unix.Close(b.kmsFence)
		b.kmsFence = -1
	}
	if b.renderFence >= 0 {
		unix.Close(b.renderFence)
		b.renderFence = -1
	}
	if b.fbID != 0 {
		_ = drm.RemoveFB(fd, b.fbID)
		b.fbID = 0
	}
	if b.mem != nil {
		_ = unix.Munmap(b.mem)
		b.mem = nil
	}
	if b.handle != 0 {
		_ = drm.DestroyDumb(fd, b.handle)
		b.handle = 0
	}
}
