// Package vt puts the controlling virtual terminal into graphics mode for
// the duration of a direct display takeover, and restores it afterwards.
// Without this the console keeps drawing its own text and cursor into the
// framebuffer underneath us, and keystrokes reach the shell behind the
// animation.
package vt

import (
	"fmt"
	"os"
	"strconv"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/BeatGlow/kmsplay/internal/ioctl"
)

const (
	vtOpenQry    = ioctl.Command(0x5600)
	vtActivate   = ioctl.Command(0x5606)
	vtWaitActive = ioctl.Command(0x5607)

	kdSetMode   = ioctl.Command(0x4b3a)
	kdGetKbMode = ioctl.Command(0x4b44)
	kdSetKbMode = ioctl.Command(0x4b45)

	kdText     = 0
	kdGraphics = 1
	kbOff      = 4

	ttyMajor = 4
)

// Terminal is a virtual terminal held in graphics mode.
type Terminal struct {
	f       *os.File
	num     int
	savedKb int32
}

// Setup selects a terminal, switches to it, silences its keyboard and puts
// it in graphics mode. The terminal comes from $TTYNO, from the terminal
// on standard input, or failing both from the first free one.
func Setup() (*Terminal, error) {
	f, num, err := openTerminal()
	if err != nil {
		return nil, err
	}
	t := &Terminal{f: f, num: num}

	if err := ioctl.Call(f.Fd(), vtActivate, uintptr(num)); err != nil {
		f.Close()
		return nil, fmt.Errorf("activate terminal %d: %w", num, err)
	}
	if err := ioctl.Call(f.Fd(), vtWaitActive, uintptr(num)); err != nil {
		f.Close()
		return nil, fmt.Errorf("wait for terminal %d: %w", num, err)
	}

	if err := ioctl.Do(f.Fd(), kdGetKbMode, unsafe.Pointer(&t.savedKb)); err != nil {
		f.Close()
		return nil, fmt.Errorf("read keyboard mode: %w", err)
	}
	if err := ioctl.Call(f.Fd(), kdSetKbMode, kbOff); err != nil {
		f.Close()
		return nil, fmt.Errorf("silence keyboard: %w", err)
	}
	if err := ioctl.Call(f.Fd(), kdSetMode, kdGraphics); err != nil {
		_ = ioctl.Call(f.Fd(), kdSetKbMode, uintptr(t.savedKb))
		f.Close()
		return nil, fmt.Errorf("enter graphics mode: %w", err)
	}
	return t, nil
}

// openTerminal picks the terminal to take over.
func openTerminal() (*os.File, int, error) {
	if env := os.Getenv("TTYNO"); env != "" {
		num, err := strconv.Atoi(env)
		if err != nil || num < 1 {
			return nil, 0, fmt.Errorf("bad TTYNO %q", env)
		}
		f, err := os.OpenFile(fmt.Sprintf("/dev/tty%d", num), os.O_RDWR|unix.O_NOCTTY, 0)
		if err != nil {
			return nil, 0, err
		}
		return f, num, nil
	}

	// Standard input already being a terminal means we were launched
	// from the console, so take over the one we are on.
	if _, err := unix.IoctlGetTermios(0, unix.TCGETS); err == nil {
		f, err := os.OpenFile("/proc/self/fd/0", os.O_RDWR|unix.O_NOCTTY, 0)
		if err != nil {
			return nil, 0, err
		}
		var st unix.Stat_t
		if err := unix.Fstat(int(f.Fd()), &st); err != nil {
			f.Close()
			return nil, 0, err
		}
		if unix.Major(uint64(st.Rdev)) != ttyMajor || unix.Minor(uint64(st.Rdev)) == 0 {
			f.Close()
			return nil, 0, fmt.Errorf("standard input is not a virtual terminal")
		}
		return f, int(unix.Minor(uint64(st.Rdev))), nil
	}

	f, err := os.OpenFile("/dev/tty0", os.O_WRONLY, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("no terminal on standard input and /dev/tty0 unavailable: %w", err)
	}
	var num int32
	err = ioctl.Do(f.Fd(), vtOpenQry, unsafe.Pointer(&num))
	f.Close()
	if err != nil || num < 1 {
		return nil, 0, fmt.Errorf("no free terminal: %w", err)
	}
	tf, err := os.OpenFile(fmt.Sprintf("/dev/tty%d", num), os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, 0, err
	}
	return tf, int(num), nil
}

// Num returns the terminal number.
func (t *Terminal) Num() int { return t.num }

// Restore returns the terminal to text mode with its keyboard re-enabled.
func (t *Terminal) Restore() {
	if t.f == nil {
		return
	}
	_ = ioctl.Call(t.f.Fd(), kdSetKbMode, uintptr(t.savedKb))
	_ = ioctl.Call(t.f.Fd(), kdSetMode, kdText)
	t.f.Close()
	t.f = nil
}
