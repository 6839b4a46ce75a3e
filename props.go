package kmsplay

import (
	"fmt"

	"github.com/BeatGlow/kmsplay/internal/drm"
)

// propID is a property handle on one object. Zero means the driver does not
// expose the property; optional properties stay zero and are skipped when
// building requests.
type propID uint32

// planeProps holds the property handles a primary plane needs per commit.
type planeProps struct {
	typ       propID
	srcX      propID
	srcY      propID
	srcW      propID
	srcH      propID
	crtcX     propID
	crtcY     propID
	crtcW     propID
	crtcH     propID
	fbID      propID
	crtcID    propID
	inFormats propID
	inFenceFD propID
}

// crtcProps holds the property handles a display controller needs per commit.
type crtcProps struct {
	modeID      propID
	active      propID
	outFencePtr propID
}

// connectorProps holds the property handles a connector needs per commit.
type connectorProps struct {
	crtcID     propID
	dpms       propID
	nonDesktop propID
}

// propTable is one object's properties keyed by name, with the current
// value of each.
type propTable struct {
	ids    map[string]propID
	values map[string]uint64
}

func (t propTable) id(name string) propID    { return t.ids[name] }
func (t propTable) value(name string) uint64 { return t.values[name] }

// fetchProps reads every property attached to the object and resolves each
// handle to its name. Names, not IDs, are stable across drivers.
func fetchProps(fd uintptr, objID, objType uint32) (propTable, error) {
	ids, values, err := drm.GetObjectProperties(fd, objID, objType)
	if err != nil {
		return propTable{}, fmt.Errorf("object %#x properties: %w", objID, err)
	}
	t := propTable{
		ids:    make(map[string]propID, len(ids)),
		values: make(map[string]uint64, len(ids)),
	}
	for i, id := range ids {
		info, err := drm.GetProperty(fd, id)
		if err != nil {
			return propTable{}, fmt.Errorf("property %d: %w", id, err)
		}
		t.ids[info.Name] = propID(id)
		t.values[info.Name] = values[i]
	}
	return t, nil
}

// lookupPlaneProps binds the plane property names the commit path uses.
// IN_FORMATS and IN_FENCE_FD are optional.
func lookupPlaneProps(t propTable) (planeProps, error) {
	p := planeProps{
		typ:       t.id("type"),
		srcX:      t.id("SRC_X"),
		srcY:      t.id("SRC_Y"),
		srcW:      t.id("SRC_W"),
		srcH:      t.id("SRC_H"),
		crtcX:     t.id("CRTC_X"),
		crtcY:     t.id("CRTC_Y"),
		crtcW:     t.id("CRTC_W"),
		crtcH:     t.id("CRTC_H"),
		fbID:      t.id("FB_ID"),
		crtcID:    t.id("CRTC_ID"),
		inFormats: t.id("IN_FORMATS"),
		inFenceFD: t.id("IN_FENCE_FD"),
	}
	required := []propID{
		p.typ, p.srcX, p.srcY, p.srcW, p.srcH,
		p.crtcX, p.crtcY, p.crtcW, p.crtcH, p.fbID, p.crtcID,
	}
	for _, id := range required {
		if id == 0 {
			return planeProps{}, fmt.Errorf("%w: plane", ErrMissingProp)
		}
	}
	return p, nil
}

// lookupCRTCProps binds the controller property names the commit path uses.
// OUT_FENCE_PTR is optional.
func lookupCRTCProps(t propTable) (crtcProps, error) {
	c := crtcProps{
		modeID:      t.id("MODE_ID"),
		active:      t.id("ACTIVE"),
		outFencePtr: t.id("OUT_FENCE_PTR"),
	}
	if c.modeID == 0 || c.active == 0 {
		return crtcProps{}, fmt.Errorf("%w: CRTC", ErrMissingProp)
	}
	return c, nil
}

// lookupConnectorProps binds the connector property names the commit path
// uses. DPMS and non-desktop are informational only.
func lookupConnectorProps(t propTable) (connectorProps, error) {
	c := connectorProps{
		crtcID:     t.id("CRTC_ID"),
		dpms:       t.id("DPMS"),
		nonDesktop: t.id("non-desktop"),
	}
	if c.crtcID == 0 {
		return connectorProps{}, fmt.Errorf("%w: connector", ErrMissingProp)
	}
	return c, nil
}
