package kmsplay

import (
	"image"

	"github.com/BeatGlow/kmsplay/anim"
)

// SoftwareRenderer adapts a CPU painter to the pipeline: frames are painted
// into a per-output scratch image and blitted into the scanout buffer. The
// scratch image is kept across frames so only the blit touches
// uncacheable memory.
func SoftwareRenderer(p *anim.Painter) RenderFunc {
	return func(b *Buffer, frame int) error {
		o := b.output
		if o.scratch == nil || o.scratch.Rect != b.Bounds() {
			o.scratch = image.NewRGBA(b.Bounds())
		}
		p.Draw(o.scratch, frame)
		b.Draw(o.scratch)
		return nil
	}
}
