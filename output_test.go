package kmsplay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeatGlow/kmsplay/internal/drm"
)

const testRefresh = 16_666_666 * time.Nanosecond

func testOutput() *Output {
	o := &Output{
		Name:        "Virtual-1",
		ConnectorID: 40,
		CRTCID:      30,
		PlaneID:     20,
		ModeBlobID:  77,
		Refresh:     testRefresh,
		commitFence: -1,
		plane: planeProps{
			typ: 1, srcX: 2, srcY: 3, srcW: 4, srcH: 5,
			crtcX: 6, crtcY: 7, crtcW: 8, crtcH: 9,
			fbID: 10, crtcID: 11, inFenceFD: 12,
		},
		crtc:      crtcProps{modeID: 13, active: 14, outFencePtr: 15},
		connector: connectorProps{crtcID: 16},
	}
	o.Mode.HDisplay = 640
	o.Mode.VDisplay = 480
	return o
}

func testBuffer(o *Output, fbID uint32) *Buffer {
	return &Buffer{
		output:      o,
		fbID:        fbID,
		width:       int(o.Mode.HDisplay),
		height:      int(o.Mode.VDisplay),
		renderFence: -1,
		kmsFence:    -1,
	}
}

func TestAdvanceFrameBeforeFirstCompletion(t *testing.T) {
	o := testOutput()
	o.advanceFrame(5 * time.Second)
	assert.Equal(t, time.Duration(0), o.nextFrame)
	assert.Equal(t, 0, o.frame)
}

func TestAdvanceFrameStepsOneInterval(t *testing.T) {
	o := testOutput()
	o.lastFrame = time.Second
	o.advanceFrame(time.Second)

	assert.Equal(t, time.Second+testRefresh, o.nextFrame)
	assert.Equal(t, 1, o.frame)
}

func TestAdvanceFrameSkipsMissedSlots(t *testing.T) {
	o := testOutput()
	o.lastFrame = time.Second

	// Waking 100ms late must skip the unreachable slots instead of
	// scheduling into the past.
	now := time.Second + 100*time.Millisecond
	o.advanceFrame(now)

	assert.Greater(t, o.nextFrame, now+repaintMargin)
	assert.LessOrEqual(t, o.nextFrame, now+repaintMargin+testRefresh)
	assert.Equal(t, 7, o.frame)
}

func TestAdvanceFrameWrapsAnimation(t *testing.T) {
	o := testOutput()
	o.lastFrame = time.Second
	o.frame = AnimationFrames - 1
	o.advanceFrame(time.Second)
	assert.Equal(t, 0, o.frame)
}

func TestAddToRequestStagesFullChain(t *testing.T) {
	o := testOutput()
	buf := testBuffer(o, 123)

	req := NewRequest()
	require.NoError(t, o.addToRequest(req, buf))

	objs, counts, props, values := req.flatten()
	assert.Equal(t, []uint32{o.PlaneID, o.CRTCID, o.ConnectorID}, objs)
	assert.Equal(t, []uint32{11, 2, 1}, counts)

	staged := make(map[[2]uint32]uint64)
	i := 0
	for obj, count := range counts {
		for j := uint32(0); j < count; j++ {
			staged[[2]uint32{objs[obj], props[i]}] = values[i]
			i++
		}
	}
	assert.Equal(t, uint64(buf.fbID), staged[[2]uint32{o.PlaneID, uint32(o.plane.fbID)}])
	assert.Equal(t, uint64(o.CRTCID), staged[[2]uint32{o.PlaneID, uint32(o.plane.crtcID)}])
	assert.Equal(t, uint64(640)<<16, staged[[2]uint32{o.PlaneID, uint32(o.plane.srcW)}])
	assert.Equal(t, uint64(480)<<16, staged[[2]uint32{o.PlaneID, uint32(o.plane.srcH)}])
	assert.Equal(t, uint64(640), staged[[2]uint32{o.PlaneID, uint32(o.plane.crtcW)}])
	assert.Equal(t, uint64(o.ModeBlobID), staged[[2]uint32{o.CRTCID, uint32(o.crtc.modeID)}])
	assert.Equal(t, uint64(1), staged[[2]uint32{o.CRTCID, uint32(o.crtc.active)}])
	assert.Equal(t, uint64(o.CRTCID), staged[[2]uint32{o.ConnectorID, uint32(o.connector.crtcID)}])
}

func TestAddToRequestWithoutFencingOmitsFenceProps(t *testing.T) {
	o := testOutput()
	o.explicitFencing = false
	buf := testBuffer(o, 123)
	buf.renderFence = 9

	req := NewRequest()
	require.NoError(t, o.addToRequest(req, buf))

	_, _, props, _ := req.flatten()
	assert.NotContains(t, props, uint32(o.plane.inFenceFD))
	assert.NotContains(t, props, uint32(o.crtc.outFencePtr))
}

func TestAddToRequestMissingRequiredProp(t *testing.T) {
	o := testOutput()
	o.plane.fbID = 0
	req := NewRequest()
	err := o.addToRequest(req, testBuffer(o, 1))
	assert.ErrorIs(t, err, ErrMissingProp)
}

func TestFreeBuffer(t *testing.T) {
	o := testOutput()
	a := testBuffer(o, 1)
	b := testBuffer(o, 2)
	o.buffers = []*Buffer{a, b}

	a.inUse = true
	assert.Same(t, b, o.freeBuffer())

	b.inUse = true
	assert.Nil(t, o.freeBuffer())
}

func TestSupportsLinear(t *testing.T) {
	o := testOutput()
	assert.True(t, o.supportsLinear(), "no advertised layouts means no restriction")

	o.modifiers = []uint64{drm.ModifierLinear, 42}
	assert.True(t, o.supportsLinear())

	o.modifiers = []uint64{42}
	assert.False(t, o.supportsLinear())
}
