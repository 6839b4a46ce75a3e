package drm

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/BeatGlow/kmsplay/internal/ioctl"
)

// Atomic commit flags.
const (
	PageFlipEvent      = 0x01
	AtomicTestOnly     = 0x0100
	AtomicNonblock     = 0x0200
	AtomicAllowModeset = 0x0400
)

type atomicReq struct {
	flags         uint32
	countObjs     uint32
	objsPtr       uint64
	countPropsPtr uint64
	propsPtr      uint64
	propValuesPtr uint64
	reserved      uint64
	userData      uint64
}

var cmdAtomic = ioctl.IOWR(ioctlBase, 0xbc, unsafe.Sizeof(atomicReq{}))

// Atomic submits one batched state change. The four slices are the flattened
// request layout: object IDs, properties-per-object counts, then property IDs
// and values grouped in object order. With PageFlipEvent set, the kernel
// later delivers one completion event per affected CRTC on the device fd.
func Atomic(fd uintptr, flags uint32, objs, propCounts, props []uint32, values []uint64, userData uint64) error {
	if len(objs) != len(propCounts) || len(props) != len(values) {
		return fmt.Errorf("drm: malformed atomic request")
	}
	req := atomicReq{
		flags:         flags,
		countObjs:     uint32(len(objs)),
		objsPtr:       sliceAddr(objs),
		countPropsPtr: sliceAddr(propCounts),
		propsPtr:      sliceAddr(props),
		propValuesPtr: sliceAddr(values),
		userData:      userData,
	}
	err := ioctl.Do(fd, cmdAtomic, unsafe.Pointer(&req))
	runtime.KeepAlive(objs)
	runtime.KeepAlive(propCounts)
	runtime.KeepAlive(props)
	runtime.KeepAlive(values)
	if err != nil {
		return fmt.Errorf("drm: atomic commit: %w", err)
	}
	return nil
}
