package kmsplay

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RenderFunc paints one animation frame into a buffer.
type RenderFunc func(b *Buffer, frame int) error

// Scheduler runs the repaint loop: paint every output that needs a frame,
// commit the batch in one transaction, sleep until the hardware answers,
// and fold the completions back into per-output state. Everything happens
// on the calling goroutine.
type Scheduler struct {
	Device *Device

	// Render paints a frame; required.
	Render RenderFunc

	// CancelRequested is polled once per wake-up when set, so a key
	// press can stop the loop between frames.
	CancelRequested func() bool

	// now is the pacing clock, replaceable in tests.
	now func() time.Duration
}

// NewScheduler wires a scheduler to a discovered device.
func NewScheduler(d *Device) *Scheduler {
	return &Scheduler{Device: d, now: monotonicNow}
}

// Run drives the pipeline until ctx is canceled or cancellation is
// requested. Any commit failure or pacing-protocol violation terminates the
// loop; a pipeline that cannot present has nothing sensible to fall back
// to.
func (s *Scheduler) Run(ctx context.Context) error {
	d := s.Device
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if s.CancelRequested != nil && s.CancelRequested() {
			d.log.Info("cancellation requested")
			return nil
		}

		req := NewRequest()
		allowModeset := false
		for _, o := range d.Outputs {
			if !o.needsRepaint {
				continue
			}
			if err := s.repaint(o, req, &allowModeset); err != nil {
				return err
			}
		}
		if !req.Empty() {
			if err := d.Commit(req, allowModeset); err != nil {
				return err
			}
			d.threadFences()
		}

		evs, err := d.node.AwaitEvents(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		for _, ev := range evs {
			if err := d.dispatch(ev); err != nil {
				return err
			}
		}
	}
}

// repaint prepares one output's next frame: pick a free buffer, advance the
// animation to the predicted presentation time, paint, and stage the flip.
// An exhausted buffer pool means completions stopped arriving, which is not
// a state the loop can recover from.
func (s *Scheduler) repaint(o *Output, req *Request, allowModeset *bool) error {
	buf := o.freeBuffer()
	if buf == nil {
		return fmt.Errorf("%w: %s", ErrNoFreeBuffer, o.Name)
	}

	o.advanceFrame(s.now())

	if err := s.Render(buf, o.frame); err != nil {
		return fmt.Errorf("render %s frame %d: %w", o.Name, o.frame, err)
	}
	if err := o.addToRequest(req, buf); err != nil {
		return fmt.Errorf("stage %s: %w", o.Name, err)
	}

	buf.inUse = true
	o.pending = buf
	o.needsRepaint = false

	// An output that has never presented has no timing baseline and
	// needs the commit to be allowed to perform a full modeset.
	if o.lastFrame == 0 {
		*allowModeset = true
		s.Device.log.Debug("first frame, modeset allowed", "output", o.Name)
	} else {
		s.Device.log.Debug("frame queued",
			"output", o.Name, "frame", o.frame, "predicted", o.nextFrame)
	}
	return nil
}
