package kmsplay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeatGlow/kmsplay/internal/drm"
)

type commitRecord struct {
	flags  uint32
	objs   []uint32
	counts []uint32
	props  []uint32
	values []uint64
}

// scriptedNode plays the kernel's role: it accepts commits and answers
// each one with a completion event one refresh interval later.
type scriptedNode struct {
	crtc    uint32
	clock   time.Duration
	refresh time.Duration

	commits   []commitRecord
	delivered int
	maxFrames int
	stop      context.CancelFunc

	pending bool
}

func (n *scriptedNode) Commit(flags uint32, objs, counts, props []uint32, values []uint64) error {
	n.commits = append(n.commits, commitRecord{flags, objs, counts, props, values})
	n.pending = true
	return nil
}

func (n *scriptedNode) AwaitEvents(ctx context.Context) ([]drm.FlipEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !n.pending {
		return nil, errors.New("waiting with no commit in flight")
	}
	n.pending = false
	n.clock += n.refresh
	n.delivered++
	if n.delivered >= n.maxFrames && n.stop != nil {
		n.stop()
	}
	return []drm.FlipEvent{{
		CRTC:     n.crtc,
		Time:     n.clock,
		Sequence: uint32(n.delivered),
	}}, nil
}

func testPipeline(t *testing.T, depth, frames int) (*Scheduler, *scriptedNode, *Output, context.Context) {
	t.Helper()

	o := testOutput()
	o.needsRepaint = true
	for i := 0; i < depth; i++ {
		o.buffers = append(o.buffers, testBuffer(o, uint32(100+i)))
	}

	d := testDevice(o)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	n := &scriptedNode{
		crtc:      o.CRTCID,
		clock:     time.Second,
		refresh:   testRefresh,
		maxFrames: frames,
		stop:      cancel,
	}
	d.node = n

	s := NewScheduler(d)
	s.now = func() time.Duration { return n.clock }
	s.Render = func(b *Buffer, frame int) error { return nil }
	return s, n, o, ctx
}

func TestSchedulerPacesAgainstHardware(t *testing.T) {
	s, n, o, ctx := testPipeline(t, 2, 4)

	var rendered []int
	s.Render = func(b *Buffer, frame int) error {
		rendered = append(rendered, frame)
		return nil
	}

	require.NoError(t, s.Run(ctx))
	require.Len(t, n.commits, 4)

	// Only the frame that lights the output up may change the mode.
	assert.NotZero(t, n.commits[0].flags&drm.AtomicAllowModeset)
	for _, c := range n.commits[1:] {
		assert.Zero(t, c.flags&drm.AtomicAllowModeset)
	}
	for _, c := range n.commits {
		assert.NotZero(t, c.flags&drm.PageFlipEvent)
		assert.NotZero(t, c.flags&drm.AtomicNonblock)
		assert.Equal(t, []uint32{o.PlaneID, o.CRTCID, o.ConnectorID}, c.objs)
	}

	// The animation advances one frame per on-time completion.
	assert.Equal(t, []int{0, 1, 2, 3}, rendered)

	// Two buffers ping-pong; the one on screen stays claimed.
	assert.Equal(t, []uint32{100, 101, 100, 101}, fbIDsOf(n.commits))
	assert.Same(t, o.buffers[1], o.last)
	assert.Nil(t, o.pending)
	assert.True(t, o.buffers[1].inUse)
	assert.False(t, o.buffers[0].inUse)
}

func TestSchedulerBufferExhaustionIsFatal(t *testing.T) {
	s, _, _, ctx := testPipeline(t, 1, 100)

	// With a single buffer the frame on screen can never be replaced,
	// so the second repaint has nothing to paint into.
	err := s.Run(ctx)
	assert.ErrorIs(t, err, ErrNoFreeBuffer)
}

func TestSchedulerCommitFailureIsFatal(t *testing.T) {
	s, n, _, ctx := testPipeline(t, 2, 4)
	d := s.Device

	boom := errors.New("transaction rejected")
	d.node = nodeFunc{
		commit: func(flags uint32, objs, counts, props []uint32, values []uint64) error {
			return boom
		},
		await: n.AwaitEvents,
	}

	err := s.Run(ctx)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrCommit)
}

func TestSchedulerCancelKeyStopsCleanly(t *testing.T) {
	s, _, _, ctx := testPipeline(t, 2, 100)

	calls := 0
	s.CancelRequested = func() bool {
		calls++
		return calls > 3
	}

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 4, calls)
}

func TestSchedulerRenderFailureIsFatal(t *testing.T) {
	s, _, _, ctx := testPipeline(t, 2, 4)

	boom := errors.New("paint failed")
	s.Render = func(b *Buffer, frame int) error { return boom }

	err := s.Run(ctx)
	assert.ErrorIs(t, err, boom)
}

type nodeFunc struct {
	commit func(flags uint32, objs, counts, props []uint32, values []uint64) error
	await  func(ctx context.Context) ([]drm.FlipEvent, error)
}

func (n nodeFunc) Commit(flags uint32, objs, counts, props []uint32, values []uint64) error {
	return n.commit(flags, objs, counts, props, values)
}

func (n nodeFunc) AwaitEvents(ctx context.Context) ([]drm.FlipEvent, error) {
	return n.await(ctx)
}

func fbIDsOf(commits []commitRecord) []uint32 {
	var ids []uint32
	for _, c := range commits {
		// The plane's property block comes first; FB_ID is its second
		// entry (after CRTC_ID).
		ids = append(ids, uint32(c.values[1]))
	}
	return ids
}
