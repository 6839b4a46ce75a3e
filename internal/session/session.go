// Package session acquires display devices through the systemd login
// manager, so the process can run from an ordinary user session without
// being the console owner. The manager hands out device descriptors over
// the bus and revokes them on session switch.
package session

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

const (
	busName    = "org.freedesktop.login1"
	managerAPI = "org.freedesktop.login1.Manager"
	sessionAPI = "org.freedesktop.login1.Session"
)

// Session is control of the login session this process runs in.
type Session struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	path dbus.ObjectPath
}

// New connects to the system bus, resolves the session owning this
// process, and takes control of it. Failing any step means no session
// manages us and devices must be opened directly.
func New() (*Session, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", err)
	}

	mgr := conn.Object(busName, "/org/freedesktop/login1")
	var path dbus.ObjectPath
	err = mgr.Call(managerAPI+".GetSessionByPID", 0, uint32(os.Getpid())).Store(&path)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	s := &Session{
		conn: conn,
		obj:  conn.Object(busName, path),
		path: path,
	}
	if err := s.obj.Call(sessionAPI+".TakeControl", 0, false).Err; err != nil {
		return nil, fmt.Errorf("take control of %s: %w", path, err)
	}
	return s, nil
}

// TakeDevice asks the session manager for the device node and returns an
// owned descriptor. The manager's descriptor is duplicated so revocation
// on its side cannot yank ours mid-transaction without us noticing through
// the API first.
func (s *Session) TakeDevice(path string) (int, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return -1, fmt.Errorf("stat %s: %w", path, err)
	}
	major := unix.Major(uint64(st.Rdev))
	minor := unix.Minor(uint64(st.Rdev))

	var (
		fd     dbus.UnixFD
		paused bool
	)
	err := s.obj.Call(sessionAPI+".TakeDevice", 0, major, minor).Store(&fd, &paused)
	if err != nil {
		return -1, fmt.Errorf("take device %s: %w", path, err)
	}
	if paused {
		unix.Close(int(fd))
		return -1, fmt.Errorf("take device %s: delivered paused", path)
	}

	dup, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	unix.Close(int(fd))
	if err != nil {
		return -1, fmt.Errorf("duplicate descriptor for %s: %w", path, err)
	}
	return dup, nil
}

// ReleaseDevice returns a descriptor obtained from TakeDevice.
func (s *Session) ReleaseDevice(fd int) error {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return fmt.Errorf("fstat device: %w", err)
	}
	major := unix.Major(uint64(st.Rdev))
	minor := unix.Minor(uint64(st.Rdev))
	err := s.obj.Call(sessionAPI+".ReleaseDevice", 0, major, minor).Err
	unix.Close(fd)
	return err
}

// Close releases session control and drops the bus connection.
func (s *Session) Close() {
	if s.conn == nil {
		return
	}
	_ = s.obj.Call(sessionAPI+".ReleaseControl", 0).Err
	_ = s.conn.Close()
	s.conn = nil
}
