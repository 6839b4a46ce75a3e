package drm

import (
	"time"
	"unsafe"

	"github.com/BeatGlow/kmsplay/internal/ioctl"
)

// sync_file fds carry the dma-fences used for explicit fencing; KMS hands us
// one per commit through the CRTC OUT_FENCE_PTR property.

type syncFileInfo struct {
	name          [32]byte
	status        int32
	flags         uint32
	numFences     uint32
	pad           uint32
	syncFenceInfo uint64
}

type syncFenceInfo struct {
	objName     [32]byte
	driverName  [32]byte
	status      int32
	flags       uint32
	timestampNS uint64
}

var cmdSyncFileInfo = ioctl.IOWR('>', 4, unsafe.Sizeof(syncFileInfo{}))

// SyncFileValid reports whether fd is a sync_file holding at least one fence.
func SyncFileValid(fd int) bool {
	var info syncFileInfo
	if err := ioctl.Do(uintptr(fd), cmdSyncFileInfo, unsafe.Pointer(&info)); err != nil {
		return false
	}
	return info.numFences > 0
}

// SyncFileTime returns the signal timestamp of a single-fence sync_file.
// We never merge fences, so querying exactly one is sufficient.
func SyncFileTime(fd int) (time.Duration, error) {
	var fence syncFenceInfo
	info := syncFileInfo{
		numFences:     1,
		syncFenceInfo: uint64(uintptr(unsafe.Pointer(&fence))),
	}
	if err := ioctl.Do(uintptr(fd), cmdSyncFileInfo, unsafe.Pointer(&info)); err != nil {
		return 0, err
	}
	return time.Duration(fence.timestampNS), nil
}
