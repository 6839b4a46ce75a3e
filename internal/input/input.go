// Package input watches the system keyboards for the escape key, giving a
// direct display takeover a way out even though the terminal keyboard is
// switched off while the animation runs.
package input

import (
	"encoding/binary"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"
)

const (
	// One input_event on a 64-bit kernel: timeval, type, code, value.
	eventSize = 24

	evKey  = 1
	keyEsc = 1
	keyQ   = 16
)

// Poller reads key events from every input device it could open. Devices
// that do not emit key events simply never match.
type Poller struct {
	fds []int
	buf [eventSize * 64]byte
}

// Open opens the input device nodes nonblocking. acquire obtains a
// descriptor for a device path when the process cannot open the nodes
// itself; nil means open directly. Opening no devices at all is not an
// error, it just leaves the interrupt signal as the only exit.
func Open(acquire func(path string) (int, error)) *Poller {
	paths, _ := filepath.Glob("/dev/input/event*")
	sort.Strings(paths)

	p := &Poller{}
	for _, path := range paths {
		var (
			fd  int
			err error
		)
		if acquire != nil {
			fd, err = acquire(path)
		} else {
			fd, err = unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		}
		if err != nil {
			continue
		}
		unix.SetNonblock(fd, true)
		p.fds = append(p.fds, fd)
	}
	return p
}

// Devices returns how many input devices are being watched.
func (p *Poller) Devices() int { return len(p.fds) }

// QuitRequested drains pending events from every device and reports
// whether escape or q was pressed. It never blocks.
func (p *Poller) QuitRequested() bool {
	quit := false
	for _, fd := range p.fds {
		for {
			n, err := unix.Read(fd, p.buf[:])
			if err != nil || n < eventSize {
				break
			}
			for off := 0; off+eventSize <= n; off += eventSize {
				typ := binary.LittleEndian.Uint16(p.buf[off+16:])
				code := binary.LittleEndian.Uint16(p.buf[off+18:])
				value := int32(binary.LittleEndian.Uint32(p.buf[off+20:]))
				if typ == evKey && value == 1 && (code == keyEsc || code == keyQ) {
					quit = true
				}
			}
		}
	}
	return quit
}

// Close releases the watched devices.
func (p *Poller) Close() {
	for _, fd := range p.fds {
		unix.Close(fd)
	}
	p.fds = nil
}
