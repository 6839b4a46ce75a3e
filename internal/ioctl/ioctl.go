// Package ioctl encodes and issues Linux ioctl commands.
package ioctl

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mode is the IOCTL data direction.
type Mode uint8

// Directions
const (
	None Mode = iota
	Write
	Read
)

// Command to be sent over ioctl.
type Command uintptr

func (c Command) String() string {
	var (
		mode = Mode(c >> 30 & 0x03)
		size = c >> 16 & 0x3fff
		typ  = c >> 8 & 0xff
		nr   = c & 0xff
		str  string
	)
	if mode&Write > 0 {
		str += " write"
	}
	if mode&Read > 0 {
		str += " read"
	}
	return fmt.Sprintf("ioctl%s (%d bytes) '%c' 0x%02x", str, size, rune(typ), uintptr(nr))
}

// Encode an ioctl command from its direction, type, number and argument size.
func Encode(mode Mode, size uint16, typ, nr uint8) Command {
	return Command(mode)<<30 | Command(size)<<16 | Command(typ)<<8 | Command(nr)
}

// IO encodes a command without an argument.
func IO(typ, nr uint8) Command {
	return Encode(None, 0, typ, nr)
}

// IOR encodes a read command for an argument of size bytes.
func IOR(typ, nr uint8, size uintptr) Command {
	return Encode(Read, uint16(size), typ, nr)
}

// IOW encodes a write command for an argument of size bytes.
func IOW(typ, nr uint8, size uintptr) Command {
	return Encode(Write, uint16(size), typ, nr)
}

// IOWR encodes a read-write command for an argument of size bytes.
func IOWR(typ, nr uint8, size uintptr) Command {
	return Encode(Read|Write, uint16(size), typ, nr)
}

// Do executes the ioctl call with a pointer argument.
func Do(fd uintptr, command Command, ptr unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(command), uintptr(ptr))
	if errno != 0 {
		return &Error{Command: command, Errno: errno}
	}
	return nil
}

// Call does a plain ioctl system call with an integer argument.
func Call(fd uintptr, command Command, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(command), arg)
	if errno != 0 {
		return &Error{Command: command, Errno: errno}
	}
	return nil
}

// Error is a failed ioctl call.
type Error struct {
	Command Command
	Errno   unix.Errno
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Command, e.Errno)
}

func (e *Error) Unwrap() error { return e.Errno }
