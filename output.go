package kmsplay

import (
	"image"
	"time"
	"unsafe"

	"github.com/BeatGlow/kmsplay/internal/drm"
)

// Output is one active display chain: a connector, the controller driving
// it and the primary plane scanning out to it. Each output paces itself
// against its own refresh interval and cycles its own buffer pool.
type Output struct {
	Name string

	ConnectorID uint32
	CRTCID      uint32
	PlaneID     uint32

	Mode       drm.ModeInfo
	ModeBlobID uint32

	// Refresh is the mode's frame interval.
	Refresh time.Duration

	plane     planeProps
	crtc      crtcProps
	connector connectorProps

	// modifiers are the layouts the plane accepts for our format.
	modifiers []uint64

	explicitFencing bool

	// commitFence receives a release-fence descriptor from each commit
	// this output participates in. Its address is staged in the request,
	// so the field must stay at a stable location for the output's life.
	commitFence int32

	buffers []*Buffer
	pending *Buffer
	last    *Buffer

	// lastFrame is the hardware timestamp of the most recent completion;
	// zero until the first frame lands, which is also what gates the
	// initial modeset. nextFrame is the predicted completion of the
	// frame currently being prepared.
	lastFrame time.Duration
	nextFrame time.Duration

	frame        int
	needsRepaint bool

	scratch *image.RGBA
}

// supportsLinear reports whether the plane accepts the linear layout, or
// advertises no layout list at all.
func (o *Output) supportsLinear() bool {
	if len(o.modifiers) == 0 {
		return true
	}
	for _, m := range o.modifiers {
		if m == drm.ModifierLinear {
			return true
		}
	}
	return false
}

// freeBuffer returns a buffer not currently queued or on screen, or nil
// when the pool is exhausted.
func (o *Output) freeBuffer() *Buffer {
	for _, b := range o.buffers {
		if !b.inUse {
			return b
		}
	}
	return nil
}

// advanceFrame predicts when the frame being prepared will reach the
// screen and advances the animation to match. Predictions step in whole
// refresh intervals from the last hardware timestamp, skipping any slots
// too close to fit painting and committing, so a stalled pipeline drops
// frames instead of accumulating drift. Before the first completion there
// is no timing information and the prediction stays at zero.
func (o *Output) advanceFrame(now time.Duration) {
	if o.lastFrame == 0 {
		return
	}
	tooSoon := now + repaintMargin
	o.nextFrame = o.lastFrame
	for o.nextFrame <= tooSoon {
		o.nextFrame += o.Refresh
		o.frame = (o.frame + 1) % AnimationFrames
	}
}

// addToRequest stages everything a commit needs to show buf on this
// output: full-surface scanout on the plane, the mode and active state on
// the controller, and the controller binding on the connector. Source
// coordinates are 16.16 fixed point.
func (o *Output) addToRequest(req *Request, buf *Buffer) error {
	w := uint64(buf.width)
	h := uint64(buf.height)

	ok := req.Set(o.PlaneID, o.plane.crtcID, uint64(o.CRTCID))
	ok = req.Set(o.PlaneID, o.plane.fbID, uint64(buf.fbID)) && ok
	if o.explicitFencing && buf.renderFence >= 0 {
		ok = req.Set(o.PlaneID, o.plane.inFenceFD, uint64(buf.renderFence)) && ok
	}
	ok = req.Set(o.PlaneID, o.plane.srcX, 0) && ok
	ok = req.Set(o.PlaneID, o.plane.srcY, 0) && ok
	ok = req.Set(o.PlaneID, o.plane.srcW, w<<16) && ok
	ok = req.Set(o.PlaneID, o.plane.srcH, h<<16) && ok
	ok = req.Set(o.PlaneID, o.plane.crtcX, 0) && ok
	ok = req.Set(o.PlaneID, o.plane.crtcY, 0) && ok
	ok = req.Set(o.PlaneID, o.plane.crtcW, w) && ok
	ok = req.Set(o.PlaneID, o.plane.crtcH, h) && ok

	ok = req.Set(o.CRTCID, o.crtc.modeID, uint64(o.ModeBlobID)) && ok
	ok = req.Set(o.CRTCID, o.crtc.active, 1) && ok
	if o.explicitFencing {
		ok = req.Set(o.CRTCID, o.crtc.outFencePtr, o.commitFencePtr()) && ok
	}

	ok = req.Set(o.ConnectorID, o.connector.crtcID, uint64(o.CRTCID)) && ok

	if !ok {
		return ErrMissingProp
	}
	return nil
}

// commitFencePtr is the user address the kernel writes this output's
// release-fence descriptor to during the commit.
func (o *Output) commitFencePtr() uint64 {
	return uint64(uintptr(unsafe.Pointer(&o.commitFence)))
}
