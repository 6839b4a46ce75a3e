// Package drm speaks the kernel display-control uAPI directly, the same
// ioctl surface libdrm wraps in C. Only the subset needed to drive atomic
// modesetting with dumb buffers is covered.
package drm

import (
	"unsafe"

	"github.com/BeatGlow/kmsplay/internal/ioctl"
)

const ioctlBase = 'd'

// Device capabilities, from DRM_IOCTL_GET_CAP.
const (
	CapDumbBuffer         = 0x1
	CapTimestampMonotonic = 0x6
	CapAddFB2Modifiers    = 0x10
)

// Client capabilities, from DRM_IOCTL_SET_CLIENT_CAP.
const (
	ClientCapUniversalPlanes = 2
	ClientCapAtomic          = 3
)

type capRequest struct {
	Capability uint64
	Value      uint64
}

type authRequest struct {
	Magic uint32
}

var (
	cmdGetMagic     = ioctl.IOR(ioctlBase, 0x02, unsafe.Sizeof(authRequest{}))
	cmdGetCap       = ioctl.IOWR(ioctlBase, 0x0c, unsafe.Sizeof(capRequest{}))
	cmdSetClientCap = ioctl.IOW(ioctlBase, 0x0d, unsafe.Sizeof(capRequest{}))
	cmdAuthMagic    = ioctl.IOW(ioctlBase, 0x11, unsafe.Sizeof(authRequest{}))
)

// GetCap queries a device capability.
func GetCap(fd uintptr, cap uint64) (uint64, error) {
	req := capRequest{Capability: cap}
	if err := ioctl.Do(fd, cmdGetCap, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return req.Value, nil
}

// SetClientCap advertises a client capability to the kernel.
func SetClientCap(fd uintptr, cap, value uint64) error {
	req := capRequest{Capability: cap, Value: value}
	return ioctl.Do(fd, cmdSetClientCap, unsafe.Pointer(&req))
}

// GetMagic returns the authentication token for this file descriptor.
func GetMagic(fd uintptr) (uint32, error) {
	var req authRequest
	if err := ioctl.Do(fd, cmdGetMagic, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return req.Magic, nil
}

// AuthMagic authenticates a token. Self-authenticating our own token is the
// cheapest way to check we are the device master.
func AuthMagic(fd uintptr, magic uint32) error {
	req := authRequest{Magic: magic}
	return ioctl.Do(fd, cmdAuthMagic, unsafe.Pointer(&req))
}

// IsMaster reports whether the file descriptor holds display-control rights.
func IsMaster(fd uintptr) bool {
	magic, err := GetMagic(fd)
	if err != nil {
		return false
	}
	return AuthMagic(fd, magic) == nil
}
