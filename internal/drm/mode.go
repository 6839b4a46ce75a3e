package drm

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/BeatGlow/kmsplay/internal/ioctl"
)

// KMS object types, from DRM_IOCTL_MODE_OBJ_GETPROPERTIES.
const (
	ObjectCRTC      = 0xcccccccc
	ObjectConnector = 0xc0c0c0c0
	ObjectPlane     = 0xeeeeeeee
)

// Connector connection status.
const (
	ConnectionConnected    = 1
	ConnectionDisconnected = 2
	ConnectionUnknown      = 3
)

// Property flags.
const (
	PropPending   = 1 << 0
	PropRange     = 1 << 1
	PropImmutable = 1 << 2
	PropEnum      = 1 << 3
	PropBlob      = 1 << 4
	PropBitmask   = 1 << 5
)

// ModeInfo mirrors struct drm_mode_modeinfo.
type ModeInfo struct {
	Clock                                         uint32
	HDisplay, HSyncStart, HSyncEnd, HTotal, HSkew uint16
	VDisplay, VSyncStart, VSyncEnd, VTotal, VScan uint16
	VRefresh                                      uint32
	Flags                                         uint32
	Type                                          uint32
	RawName                                       [32]byte
}

func (m *ModeInfo) Name() string {
	for i, c := range m.RawName {
		if c == 0 {
			return string(m.RawName[:i])
		}
	}
	return string(m.RawName[:])
}

// RefreshMillihertz computes the refresh rate from the mode timings rather
// than trusting the coarse vrefresh field, as Weston does.
func (m *ModeInfo) RefreshMillihertz() uint64 {
	if m.HTotal == 0 || m.VTotal == 0 {
		return 0
	}
	return (uint64(m.Clock)*1000000/uint64(m.HTotal) +
		uint64(m.VTotal)/2) / uint64(m.VTotal)
}

type cardRes struct {
	fbIDPtr, crtcIDPtr, connectorIDPtr, encoderIDPtr   uint64
	countFBs, countCRTCs, countConnectors, countEncoders uint32
	minWidth, maxWidth, minHeight, maxHeight           uint32
}

type getConnector struct {
	encodersPtr, modesPtr, propsPtr, propValuesPtr uint64
	countModes, countProps, countEncoders          uint32
	encoderID, connectorID                         uint32
	connectorType, connectorTypeID                 uint32
	connection                                     uint32
	mmWidth, mmHeight                              uint32
	subpixel                                       uint32
	pad                                            uint32
}

type getEncoder struct {
	encoderID, encoderType               uint32
	crtcID, possibleCRTCs, possibleClones uint32
}

type modeCRTC struct {
	setConnectorsPtr uint64
	countConnectors  uint32
	crtcID           uint32
	fbID             uint32
	x, y             uint32
	gammaSize        uint32
	modeValid        uint32
	mode             ModeInfo
}

type getPlaneRes struct {
	planeIDPtr  uint64
	countPlanes uint32
}

type getPlane struct {
	planeID, crtcID, fbID uint32
	possibleCRTCs         uint32
	gammaSize             uint32
	countFormatTypes      uint32
	formatTypePtr         uint64
}

type objGetProperties struct {
	propsPtr      uint64
	propValuesPtr uint64
	countProps    uint32
	objID         uint32
	objType       uint32
}

type getProperty struct {
	valuesPtr      uint64
	enumBlobPtr    uint64
	propID         uint32
	flags          uint32
	name           [32]byte
	countValues    uint32
	countEnumBlobs uint32
}

type propertyEnum struct {
	value uint64
	name  [32]byte
}

type getBlob struct {
	blobID uint32
	length uint32
	data   uint64
}

type createBlob struct {
	data   uint64
	length uint32
	blobID uint32
}

type destroyBlob struct {
	blobID uint32
}

var (
	cmdGetResources   = ioctl.IOWR(ioctlBase, 0xa0, unsafe.Sizeof(cardRes{}))
	cmdGetCRTC        = ioctl.IOWR(ioctlBase, 0xa1, unsafe.Sizeof(modeCRTC{}))
	cmdGetEncoder     = ioctl.IOWR(ioctlBase, 0xa6, unsafe.Sizeof(getEncoder{}))
	cmdGetConnector   = ioctl.IOWR(ioctlBase, 0xa7, unsafe.Sizeof(getConnector{}))
	cmdGetProperty    = ioctl.IOWR(ioctlBase, 0xaa, unsafe.Sizeof(getProperty{}))
	cmdGetPropBlob    = ioctl.IOWR(ioctlBase, 0xac, unsafe.Sizeof(getBlob{}))
	cmdGetPlaneRes    = ioctl.IOWR(ioctlBase, 0xb5, unsafe.Sizeof(getPlaneRes{}))
	cmdGetPlane       = ioctl.IOWR(ioctlBase, 0xb6, unsafe.Sizeof(getPlane{}))
	cmdObjGetProps    = ioctl.IOWR(ioctlBase, 0xb9, unsafe.Sizeof(objGetProperties{}))
	cmdCreatePropBlob = ioctl.IOWR(ioctlBase, 0xbd, unsafe.Sizeof(createBlob{}))
	cmdDestroyPropBlob = ioctl.IOWR(ioctlBase, 0xbe, unsafe.Sizeof(destroyBlob{}))
)

func sliceAddr[T any](s []T) uint64 {
	if len(s) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&s[0])))
}

// Resources holds the object ID lists of one card.
type Resources struct {
	FBs, CRTCs, Connectors, Encoders []uint32

	MinWidth, MaxWidth   uint32
	MinHeight, MaxHeight uint32
}

// GetResources queries the card's CRTC, connector and encoder lists.
// The counts can change between the sizing call and the fetch call, so we
// retry until they settle.
func GetResources(fd uintptr) (*Resources, error) {
	for {
		var count cardRes
		if err := ioctl.Do(fd, cmdGetResources, unsafe.Pointer(&count)); err != nil {
			return nil, fmt.Errorf("drm: get resources: %w", err)
		}

		res := &Resources{
			FBs:        make([]uint32, count.countFBs),
			CRTCs:      make([]uint32, count.countCRTCs),
			Connectors: make([]uint32, count.countConnectors),
			Encoders:   make([]uint32, count.countEncoders),
		}
		req := cardRes{
			fbIDPtr:         sliceAddr(res.FBs),
			crtcIDPtr:       sliceAddr(res.CRTCs),
			connectorIDPtr:  sliceAddr(res.Connectors),
			encoderIDPtr:    sliceAddr(res.Encoders),
			countFBs:        count.countFBs,
			countCRTCs:      count.countCRTCs,
			countConnectors: count.countConnectors,
			countEncoders:   count.countEncoders,
		}
		err := ioctl.Do(fd, cmdGetResources, unsafe.Pointer(&req))
		runtime.KeepAlive(res)
		if err != nil {
			return nil, fmt.Errorf("drm: get resources: %w", err)
		}

		if req.countFBs > count.countFBs ||
			req.countCRTCs > count.countCRTCs ||
			req.countConnectors > count.countConnectors ||
			req.countEncoders > count.countEncoders {
			continue
		}

		res.FBs = res.FBs[:req.countFBs]
		res.CRTCs = res.CRTCs[:req.countCRTCs]
		res.Connectors = res.Connectors[:req.countConnectors]
		res.Encoders = res.Encoders[:req.countEncoders]
		res.MinWidth, res.MaxWidth = req.minWidth, req.maxWidth
		res.MinHeight, res.MaxHeight = req.minHeight, req.maxHeight
		return res, nil
	}
}

// Connector is one physical sink endpoint.
type Connector struct {
	ID         uint32
	Type       uint32
	TypeID     uint32
	EncoderID  uint32
	Connection uint32
	WidthMM    uint32
	HeightMM   uint32
	Modes      []ModeInfo
	Encoders   []uint32
}

// GetConnector queries one connector and its mode list.
func GetConnector(fd uintptr, id uint32) (*Connector, error) {
	for {
		count := getConnector{connectorID: id}
		if err := ioctl.Do(fd, cmdGetConnector, unsafe.Pointer(&count)); err != nil {
			return nil, fmt.Errorf("drm: get connector %d: %w", id, err)
		}

		conn := &Connector{
			Modes:    make([]ModeInfo, count.countModes),
			Encoders: make([]uint32, count.countEncoders),
		}
		props := make([]uint32, count.countProps)
		propValues := make([]uint64, count.countProps)
		req := getConnector{
			connectorID:   id,
			modesPtr:      sliceAddr(conn.Modes),
			encodersPtr:   sliceAddr(conn.Encoders),
			propsPtr:      sliceAddr(props),
			propValuesPtr: sliceAddr(propValues),
			countModes:    count.countModes,
			countProps:    count.countProps,
			countEncoders: count.countEncoders,
		}
		err := ioctl.Do(fd, cmdGetConnector, unsafe.Pointer(&req))
		runtime.KeepAlive(conn)
		runtime.KeepAlive(props)
		runtime.KeepAlive(propValues)
		if err != nil {
			return nil, fmt.Errorf("drm: get connector %d: %w", id, err)
		}

		if req.countModes > count.countModes ||
			req.countProps > count.countProps ||
			req.countEncoders > count.countEncoders {
			continue
		}

		conn.ID = req.connectorID
		conn.Type = req.connectorType
		conn.TypeID = req.connectorTypeID
		conn.EncoderID = req.encoderID
		conn.Connection = req.connection
		conn.WidthMM = req.mmWidth
		conn.HeightMM = req.mmHeight
		conn.Modes = conn.Modes[:req.countModes]
		conn.Encoders = conn.Encoders[:req.countEncoders]
		return conn, nil
	}
}

// Encoder is the deprecated connector-to-CRTC routing object.
type Encoder struct {
	ID             uint32
	Type           uint32
	CRTCID         uint32
	PossibleCRTCs  uint32
	PossibleClones uint32
}

func GetEncoder(fd uintptr, id uint32) (*Encoder, error) {
	req := getEncoder{encoderID: id}
	if err := ioctl.Do(fd, cmdGetEncoder, unsafe.Pointer(&req)); err != nil {
		return nil, fmt.Errorf("drm: get encoder %d: %w", id, err)
	}
	return &Encoder{
		ID:             req.encoderID,
		Type:           req.encoderType,
		CRTCID:         req.crtcID,
		PossibleCRTCs:  req.possibleCRTCs,
		PossibleClones: req.possibleClones,
	}, nil
}

// CRTC is one display pipeline stage.
type CRTC struct {
	ID        uint32
	FBID      uint32
	X, Y      uint32
	GammaSize uint32
	Mode      ModeInfo
	ModeValid bool
}

func GetCRTC(fd uintptr, id uint32) (*CRTC, error) {
	req := modeCRTC{crtcID: id}
	if err := ioctl.Do(fd, cmdGetCRTC, unsafe.Pointer(&req)); err != nil {
		return nil, fmt.Errorf("drm: get CRTC %d: %w", id, err)
	}
	return &CRTC{
		ID:        req.crtcID,
		FBID:      req.fbID,
		X:         req.x,
		Y:         req.y,
		GammaSize: req.gammaSize,
		Mode:      req.mode,
		ModeValid: req.modeValid != 0,
	}, nil
}

// GetPlaneResources lists all plane IDs. Primary and cursor planes are only
// included once the universal-planes client cap is set.
func GetPlaneResources(fd uintptr) ([]uint32, error) {
	for {
		var count getPlaneRes
		if err := ioctl.Do(fd, cmdGetPlaneRes, unsafe.Pointer(&count)); err != nil {
			return nil, fmt.Errorf("drm: get plane resources: %w", err)
		}

		planes := make([]uint32, count.countPlanes)
		req := getPlaneRes{
			planeIDPtr:  sliceAddr(planes),
			countPlanes: count.countPlanes,
		}
		err := ioctl.Do(fd, cmdGetPlaneRes, unsafe.Pointer(&req))
		runtime.KeepAlive(planes)
		if err != nil {
			return nil, fmt.Errorf("drm: get plane resources: %w", err)
		}
		if req.countPlanes > count.countPlanes {
			continue
		}
		return planes[:req.countPlanes], nil
	}
}

// Plane is one image layer feeding a CRTC.
type Plane struct {
	ID            uint32
	CRTCID        uint32
	FBID          uint32
	PossibleCRTCs uint32
	Formats       []uint32
}

func GetPlane(fd uintptr, id uint32) (*Plane, error) {
	for {
		count := getPlane{planeID: id}
		if err := ioctl.Do(fd, cmdGetPlane, unsafe.Pointer(&count)); err != nil {
			return nil, fmt.Errorf("drm: get plane %d: %w", id, err)
		}

		formats := make([]uint32, count.countFormatTypes)
		req := getPlane{
			planeID:          id,
			formatTypePtr:    sliceAddr(formats),
			countFormatTypes: count.countFormatTypes,
		}
		err := ioctl.Do(fd, cmdGetPlane, unsafe.Pointer(&req))
		runtime.KeepAlive(formats)
		if err != nil {
			return nil, fmt.Errorf("drm: get plane %d: %w", id, err)
		}
		if req.countFormatTypes > count.countFormatTypes {
			continue
		}

		return &Plane{
			ID:            req.planeID,
			CRTCID:        req.crtcID,
			FBID:          req.fbID,
			PossibleCRTCs: req.possibleCRTCs,
			Formats:       formats[:req.countFormatTypes],
		}, nil
	}
}

// GetObjectProperties returns the raw property ID/value pairs of one object.
func GetObjectProperties(fd uintptr, id, objType uint32) (ids []uint32, values []uint64, err error) {
	for {
		count := objGetProperties{objID: id, objType: objType}
		if err := ioctl.Do(fd, cmdObjGetProps, unsafe.Pointer(&count)); err != nil {
			return nil, nil, fmt.Errorf("drm: get properties of object %d: %w", id, err)
		}

		ids = make([]uint32, count.countProps)
		values = make([]uint64, count.countProps)
		req := objGetProperties{
			objID:         id,
			objType:       objType,
			propsPtr:      sliceAddr(ids),
			propValuesPtr: sliceAddr(values),
			countProps:    count.countProps,
		}
		err := ioctl.Do(fd, cmdObjGetProps, unsafe.Pointer(&req))
		runtime.KeepAlive(ids)
		runtime.KeepAlive(values)
		if err != nil {
			return nil, nil, fmt.Errorf("drm: get properties of object %d: %w", id, err)
		}
		if req.countProps > count.countProps {
			continue
		}
		return ids[:req.countProps], values[:req.countProps], nil
	}
}

// PropertyEnum is one named value of an enum-type property.
type PropertyEnum struct {
	Value uint64
	Name  string
}

// Property describes one KMS property.
type Property struct {
	ID    uint32
	Name  string
	Flags uint32
	Enums []PropertyEnum
}

// GetProperty fetches a property's metadata, including enum values.
func GetProperty(fd uintptr, id uint32) (*Property, error) {
	for {
		count := getProperty{propID: id}
		if err := ioctl.Do(fd, cmdGetProperty, unsafe.Pointer(&count)); err != nil {
			return nil, fmt.Errorf("drm: get property %d: %w", id, err)
		}

		// Range values are not interesting to us; only fetch the enums.
		enums := make([]propertyEnum, count.countEnumBlobs)
		req := getProperty{
			propID:         id,
			enumBlobPtr:    sliceAddr(enums),
			countEnumBlobs: count.countEnumBlobs,
		}
		err := ioctl.Do(fd, cmdGetProperty, unsafe.Pointer(&req))
		runtime.KeepAlive(enums)
		if err != nil {
			return nil, fmt.Errorf("drm: get property %d: %w", id, err)
		}
		if req.countEnumBlobs > count.countEnumBlobs {
			continue
		}

		prop := &Property{
			ID:    req.propID,
			Name:  cString(req.name[:]),
			Flags: req.flags,
		}
		if req.flags&(PropEnum|PropBitmask) != 0 {
			for _, e := range enums[:req.countEnumBlobs] {
				prop.Enums = append(prop.Enums, PropertyEnum{
					Value: e.value,
					Name:  cString(e.name[:]),
				})
			}
		}
		return prop, nil
	}
}

// GetPropertyBlob fetches the contents of a blob property.
func GetPropertyBlob(fd uintptr, id uint32) ([]byte, error) {
	for {
		count := getBlob{blobID: id}
		if err := ioctl.Do(fd, cmdGetPropBlob, unsafe.Pointer(&count)); err != nil {
			return nil, fmt.Errorf("drm: get blob %d: %w", id, err)
		}
		if count.length == 0 {
			return nil, nil
		}

		data := make([]byte, count.length)
		req := getBlob{
			blobID: id,
			length: count.length,
			data:   sliceAddr(data),
		}
		err := ioctl.Do(fd, cmdGetPropBlob, unsafe.Pointer(&req))
		runtime.KeepAlive(data)
		if err != nil {
			return nil, fmt.Errorf("drm: get blob %d: %w", id, err)
		}
		if req.length > count.length {
			continue
		}
		return data[:req.length], nil
	}
}

// CreatePropertyBlob uploads data as a new blob and returns its ID.
func CreatePropertyBlob(fd uintptr, data []byte) (uint32, error) {
	req := createBlob{
		data:   sliceAddr(data),
		length: uint32(len(data)),
	}
	err := ioctl.Do(fd, cmdCreatePropBlob, unsafe.Pointer(&req))
	runtime.KeepAlive(data)
	if err != nil {
		return 0, fmt.Errorf("drm: create blob: %w", err)
	}
	return req.blobID, nil
}

// CreateModeBlob uploads a mode for use as a CRTC MODE_ID value.
func CreateModeBlob(fd uintptr, mode *ModeInfo) (uint32, error) {
	size := unsafe.Sizeof(*mode)
	data := unsafe.Slice((*byte)(unsafe.Pointer(mode)), size)
	return CreatePropertyBlob(fd, data)
}

// DestroyPropertyBlob releases a blob created by us.
func DestroyPropertyBlob(fd uintptr, id uint32) error {
	req := destroyBlob{blobID: id}
	return ioctl.Do(fd, cmdDestroyPropBlob, unsafe.Pointer(&req))
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
