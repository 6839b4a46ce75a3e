// Package kmsplay drives physical displays through the kernel's atomic
// display-control interface, presenting a continuously animated image on
// every active output with hardware-synchronized pacing.
//
// The pipeline is single-threaded and event-driven: one goroutine owns the
// device, its outputs and their buffers, commits one batched transaction per
// wake-up, and sleeps until the hardware reports completion. Outputs run on
// independent cadences after the first commit, so mixed refresh rates are
// never forced to a common denominator.
package kmsplay

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// Pipeline errors.
var (
	ErrNoDevice     = errors.New("kmsplay: no usable display device")
	ErrNoOutputs    = errors.New("kmsplay: device has no active outputs")
	ErrNoFreeBuffer = errors.New("kmsplay: no free buffer for output")
	ErrCommit       = errors.New("kmsplay: atomic commit rejected")
	ErrBadEvent     = errors.New("kmsplay: completion event violates buffer state")
	ErrMissingProp  = errors.New("kmsplay: required property not exposed by driver")
)

const (
	// DefaultQueueDepth is how many buffers each output cycles through.
	DefaultQueueDepth = 3

	// AnimationFrames is the animation period before wrap-around.
	AnimationFrames = 240

	// repaintMargin is how far ahead of "now" a predicted presentation
	// must be to leave time for painting and committing the frame.
	repaintMargin = 4 * time.Millisecond

	// timingTolerance is how far a completion may drift from its
	// prediction before we complain.
	timingTolerance = 500 * time.Microsecond
)

// monotonicNow reads CLOCK_MONOTONIC, the clock completion timestamps are
// expressed in. Durations since the monotonic epoch avoid the sec/nsec pair
// arithmetic the raw API expects.
func monotonicNow() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return time.Duration(ts.Nano())
}
