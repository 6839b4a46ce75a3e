package kmsplay

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/BeatGlow/kmsplay/internal/drm"
	"github.com/BeatGlow/kmsplay/internal/session"
	"github.com/BeatGlow/kmsplay/internal/vt"
)

// Options tune device discovery.
type Options struct {
	// DevicePath pins discovery to one device node instead of probing
	// every card.
	DevicePath string

	// DisableFencing forces implicit synchronization even on drivers
	// that support explicit fences.
	DisableFencing bool

	Logger *log.Logger
}

// Discover opens the first display device that supports atomic modesetting
// and has at least one active output. Devices are acquired through the
// login session manager when one manages us, which works from a plain user
// account; without a session we need to be launched from the console and
// arrive as the device master directly.
func Discover(opts Options) (*Device, error) {
	lg := opts.Logger
	if lg == nil {
		lg = log.Default()
	}

	sess, err := session.New()
	if err != nil {
		lg.Debug("no managed login session, opening devices directly", "err", err)
		sess = nil
	}

	paths := []string{opts.DevicePath}
	if opts.DevicePath == "" {
		paths, err = filepath.Glob("/dev/dri/card*")
		if err != nil || len(paths) == 0 {
			if sess != nil {
				sess.Close()
			}
			return nil, ErrNoDevice
		}
		sort.Strings(paths)
	}

	for _, path := range paths {
		d, err := openDevice(path, sess, opts, lg)
		if err != nil {
			lg.Debug("skipping device", "path", path, "err", err)
			continue
		}
		d.sess = sess
		if sess == nil {
			term, err := vt.Setup()
			if err != nil {
				lg.Warn("virtual-terminal setup failed, display may be contended", "err", err)
			} else {
				d.term = term
			}
		}
		lg.Info("using display device", "path", path, "outputs", len(d.Outputs))
		return d, nil
	}
	if sess != nil {
		sess.Close()
	}
	return nil, ErrNoDevice
}

// openDevice probes one device node and builds an output for every
// connector that is currently wired to a controller.
func openDevice(path string, sess *session.Session, opts Options, lg *log.Logger) (*Device, error) {
	var (
		fd  int
		err error
	)
	if sess != nil {
		fd, err = sess.TakeDevice(path)
	} else {
		fd, err = unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	d := &Device{
		Path:    path,
		fd:      uintptr(fd),
		node:    &kmsNode{fd: uintptr(fd)},
		byCRTC:  make(map[uint32]*Output),
		fencing: !opts.DisableFencing,
		log:     lg,
	}
	release := func() {
		if sess != nil {
			_ = sess.ReleaseDevice(fd)
		} else {
			unix.Close(fd)
		}
	}

	if sess == nil && !drm.IsMaster(d.fd) {
		release()
		return nil, fmt.Errorf("%s: not the display master", path)
	}
	if v, err := drm.GetCap(d.fd, drm.CapDumbBuffer); err != nil || v == 0 {
		release()
		return nil, fmt.Errorf("%s: no CPU-accessible buffer support", path)
	}
	if v, err := drm.GetCap(d.fd, drm.CapTimestampMonotonic); err != nil || v == 0 {
		release()
		return nil, fmt.Errorf("%s: no monotonic completion timestamps", path)
	}
	if err := drm.SetClientCap(d.fd, drm.ClientCapUniversalPlanes, 1); err != nil {
		release()
		return nil, fmt.Errorf("%s: no universal plane support: %w", path, err)
	}
	if err := drm.SetClientCap(d.fd, drm.ClientCapAtomic, 1); err != nil {
		release()
		return nil, fmt.Errorf("%s: no atomic modesetting support: %w", path, err)
	}
	if v, err := drm.GetCap(d.fd, drm.CapAddFB2Modifiers); err == nil && v != 0 {
		d.fbModifiers = true
	}

	res, err := drm.GetResources(d.fd)
	if err != nil {
		release()
		return nil, fmt.Errorf("%s: resources: %w", path, err)
	}
	planeIDs, err := drm.GetPlaneResources(d.fd)
	if err != nil {
		release()
		return nil, fmt.Errorf("%s: planes: %w", path, err)
	}
	planes := make([]*drm.Plane, 0, len(planeIDs))
	for _, id := range planeIDs {
		p, err := drm.GetPlane(d.fd, id)
		if err != nil {
			release()
			return nil, fmt.Errorf("%s: plane %d: %w", path, id, err)
		}
		planes = append(planes, p)
	}

	for _, connID := range res.Connectors {
		out, err := buildOutput(d.fd, connID, planes, d.fencing, lg)
		if err != nil {
			release()
			return nil, err
		}
		if out == nil {
			continue
		}
		d.Outputs = append(d.Outputs, out)
		d.byCRTC[out.CRTCID] = out
	}
	if len(d.Outputs) == 0 {
		release()
		return nil, fmt.Errorf("%s: %w", path, ErrNoOutputs)
	}
	return d, nil
}

// buildOutput follows one connector's active chain: connector to encoder to
// controller to the primary plane currently feeding it. Connectors that are
// not lit up are skipped rather than programmed from scratch, since taking
// over a running display is the job, not bringing one up.
func buildOutput(fd uintptr, connID uint32, planes []*drm.Plane, fencing bool, lg *log.Logger) (*Output, error) {
	conn, err := drm.GetConnector(fd, connID)
	if err != nil {
		return nil, fmt.Errorf("connector %d: %w", connID, err)
	}
	name := fmt.Sprintf("%s-%d", drm.ConnectorTypeName(conn.Type), conn.TypeID)
	if conn.EncoderID == 0 {
		lg.Debug("connector has no active encoder", "connector", name)
		return nil, nil
	}
	enc, err := drm.GetEncoder(fd, conn.EncoderID)
	if err != nil {
		return nil, fmt.Errorf("encoder %d: %w", conn.EncoderID, err)
	}
	if enc.CRTCID == 0 {
		lg.Debug("encoder has no active controller", "connector", name)
		return nil, nil
	}
	crtc, err := drm.GetCRTC(fd, enc.CRTCID)
	if err != nil {
		return nil, fmt.Errorf("controller %d: %w", enc.CRTCID, err)
	}
	if !crtc.ModeValid || crtc.FBID == 0 {
		lg.Debug("controller is not scanning out", "connector", name)
		return nil, nil
	}

	var primary *drm.Plane
	for _, p := range planes {
		if p.CRTCID == crtc.ID && p.FBID == crtc.FBID {
			primary = p
			break
		}
	}
	if primary == nil {
		lg.Debug("no plane currently feeds the controller", "connector", name)
		return nil, nil
	}

	o := &Output{
		Name:        name,
		ConnectorID: conn.ID,
		CRTCID:      crtc.ID,
		PlaneID:     primary.ID,
		Mode:        crtc.Mode,
		commitFence: -1,
	}
	mhz := crtc.Mode.RefreshMillihertz()
	if mhz == 0 {
		return nil, fmt.Errorf("%s: mode %q has no usable timings", name, crtc.Mode.Name())
	}
	o.Refresh = time.Duration(1_000_000_000_000 / mhz)

	o.ModeBlobID, err = drm.CreateModeBlob(fd, &o.Mode)
	if err != nil {
		return nil, fmt.Errorf("%s: mode blob: %w", name, err)
	}

	planeTable, err := fetchProps(fd, o.PlaneID, drm.ObjectPlane)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	crtcTable, err := fetchProps(fd, o.CRTCID, drm.ObjectCRTC)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	connTable, err := fetchProps(fd, o.ConnectorID, drm.ObjectConnector)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if o.plane, err = lookupPlaneProps(planeTable); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if o.crtc, err = lookupCRTCProps(crtcTable); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if o.connector, err = lookupConnectorProps(connTable); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if o.plane.inFormats != 0 {
		blobID := planeTable.value("IN_FORMATS")
		if blobID != 0 {
			blob, err := drm.GetPropertyBlob(fd, uint32(blobID))
			if err != nil {
				return nil, fmt.Errorf("%s: format list: %w", name, err)
			}
			o.modifiers = drm.ParseInFormats(blob, drm.FormatXRGB8888)
		}
	}

	o.explicitFencing = fencing && o.plane.inFenceFD != 0 && o.crtc.outFencePtr != 0
	o.needsRepaint = true

	lg.Info("output armed",
		"output", name,
		"mode", o.Mode.Name(),
		"refresh", o.Refresh,
		"fencing", o.explicitFencing)
	return o, nil
}
