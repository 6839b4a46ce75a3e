package drm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/BeatGlow/kmsplay/internal/ioctl"
)

// Framebuffer flags.
const FBModifiers = 1 << 1

type createDumb struct {
	height, width uint32
	bpp           uint32
	flags         uint32
	handle        uint32
	pitch         uint32
	size          uint64
}

type mapDumb struct {
	handle uint32
	pad    uint32
	offset uint64
}

type destroyDumb struct {
	handle uint32
}

type fbCmd2 struct {
	fbID          uint32
	width, height uint32
	pixelFormat   uint32
	flags         uint32
	handles       [4]uint32
	pitches       [4]uint32
	offsets       [4]uint32
	modifier      [4]uint64
}

var (
	cmdRmFB        = ioctl.IOWR(ioctlBase, 0xaf, unsafe.Sizeof(uint32(0)))
	cmdCreateDumb  = ioctl.IOWR(ioctlBase, 0xb2, unsafe.Sizeof(createDumb{}))
	cmdMapDumb     = ioctl.IOWR(ioctlBase, 0xb3, unsafe.Sizeof(mapDumb{}))
	cmdDestroyDumb = ioctl.IOWR(ioctlBase, 0xb4, unsafe.Sizeof(destroyDumb{}))
	cmdAddFB2      = ioctl.IOWR(ioctlBase, 0xb8, unsafe.Sizeof(fbCmd2{}))
)

// DumbBuffer is a linear, CPU-mappable scanout buffer.
type DumbBuffer struct {
	Handle uint32
	Pitch  uint32
	Size   uint64
}

// CreateDumb allocates a dumb buffer. The kernel picks pitch and size.
func CreateDumb(fd uintptr, width, height, bpp uint32) (DumbBuffer, error) {
	req := createDumb{width: width, height: height, bpp: bpp}
	if err := ioctl.Do(fd, cmdCreateDumb, unsafe.Pointer(&req)); err != nil {
		return DumbBuffer{}, fmt.Errorf("drm: create %dx%d dumb buffer: %w", width, height, err)
	}
	return DumbBuffer{Handle: req.handle, Pitch: req.pitch, Size: req.size}, nil
}

// MapDumb returns the fake mmap offset for a dumb buffer handle.
func MapDumb(fd uintptr, handle uint32) (uint64, error) {
	req := mapDumb{handle: handle}
	if err := ioctl.Do(fd, cmdMapDumb, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("drm: map dumb buffer: %w", err)
	}
	return req.offset, nil
}

// MapDumbBuffer maps a dumb buffer into our address space for CPU rendering.
func MapDumbBuffer(fd uintptr, handle uint32, size uint64) ([]byte, error) {
	offset, err := MapDumb(fd, handle)
	if err != nil {
		return nil, err
	}
	mem, err := unix.Mmap(int(fd), int64(offset), int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("drm: mmap dumb buffer: %w", err)
	}
	return mem, nil
}

// DestroyDumb releases a dumb buffer handle.
func DestroyDumb(fd uintptr, handle uint32) error {
	req := destroyDumb{handle: handle}
	return ioctl.Do(fd, cmdDestroyDumb, unsafe.Pointer(&req))
}

// AddFB2 wraps buffer handles in a framebuffer object, carrying format and
// layout metadata. Pass FBModifiers in flags to supply explicit modifiers.
func AddFB2(fd uintptr, width, height, format uint32, handles, pitches, offsets [4]uint32, modifiers [4]uint64, flags uint32) (uint32, error) {
	req := fbCmd2{
		width:       width,
		height:      height,
		pixelFormat: format,
		flags:       flags,
		handles:     handles,
		pitches:     pitches,
		offsets:     offsets,
		modifier:    modifiers,
	}
	if err := ioctl.Do(fd, cmdAddFB2, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("drm: add framebuffer: %w", err)
	}
	return req.fbID, nil
}

// RemoveFB destroys a framebuffer object.
func RemoveFB(fd uintptr, id uint32) error {
	return ioctl.Do(fd, cmdRmFB, unsafe.Pointer(&id))
}
