package kmsplay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableOf(props map[string]propID) propTable {
	t := propTable{ids: props, values: make(map[string]uint64)}
	return t
}

func fullPlaneTable() map[string]propID {
	return map[string]propID{
		"type": 1, "SRC_X": 2, "SRC_Y": 3, "SRC_W": 4, "SRC_H": 5,
		"CRTC_X": 6, "CRTC_Y": 7, "CRTC_W": 8, "CRTC_H": 9,
		"FB_ID": 10, "CRTC_ID": 11,
	}
}

func TestLookupPlaneProps(t *testing.T) {
	props := fullPlaneTable()
	props["IN_FORMATS"] = 12
	props["IN_FENCE_FD"] = 13

	p, err := lookupPlaneProps(tableOf(props))
	require.NoError(t, err)
	assert.Equal(t, propID(10), p.fbID)
	assert.Equal(t, propID(11), p.crtcID)
	assert.Equal(t, propID(12), p.inFormats)
	assert.Equal(t, propID(13), p.inFenceFD)
}

func TestLookupPlanePropsOptionalAbsent(t *testing.T) {
	p, err := lookupPlaneProps(tableOf(fullPlaneTable()))
	require.NoError(t, err)
	assert.Equal(t, propID(0), p.inFormats)
	assert.Equal(t, propID(0), p.inFenceFD)
}

func TestLookupPlanePropsRequiredAbsent(t *testing.T) {
	props := fullPlaneTable()
	delete(props, "FB_ID")
	_, err := lookupPlaneProps(tableOf(props))
	assert.ErrorIs(t, err, ErrMissingProp)
}

func TestLookupCRTCProps(t *testing.T) {
	c, err := lookupCRTCProps(tableOf(map[string]propID{
		"MODE_ID": 21, "ACTIVE": 22,
	}))
	require.NoError(t, err)
	assert.Equal(t, propID(21), c.modeID)
	assert.Equal(t, propID(0), c.outFencePtr)

	_, err = lookupCRTCProps(tableOf(map[string]propID{"ACTIVE": 22}))
	assert.ErrorIs(t, err, ErrMissingProp)
}

func TestLookupConnectorProps(t *testing.T) {
	c, err := lookupConnectorProps(tableOf(map[string]propID{
		"CRTC_ID": 31, "DPMS": 32,
	}))
	require.NoError(t, err)
	assert.Equal(t, propID(31), c.crtcID)
	assert.Equal(t, propID(32), c.dpms)

	_, err = lookupConnectorProps(tableOf(map[string]propID{"DPMS": 32}))
	assert.ErrorIs(t, err, ErrMissingProp)
}
