package kmsplay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/BeatGlow/kmsplay/internal/drm"
	"github.com/BeatGlow/kmsplay/internal/session"
	"github.com/BeatGlow/kmsplay/internal/vt"
)

// pollInterval bounds how long an event wait can outlive a cancellation.
const pollInterval = 500 * time.Millisecond

// node is the transaction and event surface of a display device. The real
// implementation talks to the kernel; tests substitute a scripted one.
type node interface {
	Commit(flags uint32, objs, counts, props []uint32, values []uint64) error
	AwaitEvents(ctx context.Context) ([]drm.FlipEvent, error)
}

type kmsNode struct {
	fd uintptr
}

func (n *kmsNode) Commit(flags uint32, objs, counts, props []uint32, values []uint64) error {
	return drm.Atomic(n.fd, flags, objs, counts, props, values, 0)
}

// AwaitEvents blocks until the device delivers at least one completion
// event. The wait wakes periodically to notice cancellation, since the Go
// runtime restarts interrupted polls behind our back.
func (n *kmsNode) AwaitEvents(ctx context.Context) ([]drm.FlipEvent, error) {
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pfd := []unix.PollFd{{Fd: int32(n.fd), Events: unix.POLLIN}}
		ready, err := unix.Poll(pfd, int(pollInterval/time.Millisecond))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("wait for display events: %w", err)
		}
		if ready == 0 {
			continue
		}
		nr, err := unix.Read(int(n.fd), buf)
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read display events: %w", err)
		}
		evs, err := drm.DecodeEvents(buf[:nr])
		if err != nil {
			return nil, err
		}
		if len(evs) > 0 {
			return evs, nil
		}
	}
}

// Device is one opened display device with every active output on it.
type Device struct {
	Path    string
	Outputs []*Output

	fd   uintptr
	node node

	// byCRTC routes completion events to their output.
	byCRTC map[uint32]*Output

	fbModifiers bool
	fencing     bool

	sess *session.Session
	term *vt.Terminal

	log *log.Logger
}

// AllocateBuffers gives every output a pool of depth scanout buffers plus a
// scratch image for software painting.
func (d *Device) AllocateBuffers(depth int) error {
	if depth < 2 {
		depth = 2
	}
	for _, o := range d.Outputs {
		for i := 0; i < depth; i++ {
			b, err := newBuffer(d, o)
			if err != nil {
				return err
			}
			o.buffers = append(o.buffers, b)
		}
		d.log.Debug("allocated buffers",
			"output", o.Name, "count", depth,
			"size", fmt.Sprintf("%dx%d", o.Mode.HDisplay, o.Mode.VDisplay))
	}
	return nil
}

// Commit issues one nonblocking transaction covering every staged output.
// Completion events are requested for each controller in the request;
// allowModeset must be set on a transaction that lights up an output for
// the first time.
func (d *Device) Commit(req *Request, allowModeset bool) error {
	flags := uint32(drm.PageFlipEvent | drm.AtomicNonblock)
	if allowModeset {
		flags |= drm.AtomicAllowModeset
	}
	objs, counts, props, values := req.flatten()
	if err := d.node.Commit(flags, objs, counts, props, values); err != nil {
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}
	return nil
}

// threadFences hands each release fence produced by the latest commit to
// the buffer it will release, replacing any stale fence. A fence arriving
// before any frame is on screen has nothing to guard and is dropped.
func (d *Device) threadFences() {
	for _, o := range d.Outputs {
		if o.commitFence < 0 {
			continue
		}
		fd := int(o.commitFence)
		o.commitFence = -1
		if !o.explicitFencing || o.last == nil {
			unix.Close(fd)
			continue
		}
		if o.last.kmsFence >= 0 {
			unix.Close(o.last.kmsFence)
		}
		o.last.kmsFence = fd
	}
}

// dispatch applies one completion event: verify pacing against the
// prediction, retire the buffer the new frame replaced, and mark the output
// ready for its next repaint. Events for unknown controllers are tolerated;
// an event without a queued frame is not.
func (d *Device) dispatch(ev drm.FlipEvent) error {
	o := d.byCRTC[ev.CRTC]
	if o == nil {
		d.log.Warn("completion event for unknown controller", "crtc", ev.CRTC)
		return nil
	}
	if o.pending == nil || !o.pending.inUse {
		return fmt.Errorf("%w: %s", ErrBadEvent, o.Name)
	}

	if o.lastFrame != 0 {
		delta := ev.Time - o.nextFrame
		if delta < -timingTolerance || delta > timingTolerance {
			d.log.Warn("frame drifted from prediction",
				"output", o.Name, "predicted", o.nextFrame, "presented", ev.Time, "delta", delta)
		} else {
			d.log.Debug("frame presented",
				"output", o.Name, "presented", ev.Time, "delta", delta)
		}
	}

	if o.explicitFencing && o.last != nil && o.last.kmsFence >= 0 {
		if drm.SyncFileValid(o.last.kmsFence) {
			if t, err := drm.SyncFileTime(o.last.kmsFence); err == nil {
				d.log.Debug("release fence signaled", "output", o.Name, "at", t)
			}
		} else {
			d.log.Warn("release fence not signaled at completion", "output", o.Name)
		}
	}

	if o.last != nil {
		if o.last.kmsFence >= 0 {
			unix.Close(o.last.kmsFence)
			o.last.kmsFence = -1
		}
		o.last.retire()
	}
	o.last = o.pending
	o.pending = nil
	o.lastFrame = ev.Time
	o.needsRepaint = true
	return nil
}

// AcquireDevice opens an auxiliary device node through the same access
// path the display device was acquired with, so input devices work both
// under a managed session and as the raw console owner.
func (d *Device) AcquireDevice(path string) (int, error) {
	if d.sess != nil {
		return d.sess.TakeDevice(path)
	}
	return unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
}

// Close tears down every output and returns the device to however it was
// acquired.
func (d *Device) Close() {
	for _, o := range d.Outputs {
		for _, b := range o.buffers {
			b.destroy(d.fd)
		}
		o.buffers = nil
		if o.ModeBlobID != 0 {
			_ = drm.DestroyPropertyBlob(d.fd, o.ModeBlobID)
			o.ModeBlobID = 0
		}
		if o.commitFence >= 0 {
			unix.Close(int(o.commitFence))
			o.commitFence = -1
		}
	}
	if d.term != nil {
		d.term.Restore()
		d.term = nil
	}
	if d.sess != nil {
		_ = d.sess.ReleaseDevice(int(d.fd))
		d.sess.Close()
		d.sess = nil
	} else if d.fd != 0 {
		unix.Close(int(d.fd))
	}
	d.fd = 0
}
