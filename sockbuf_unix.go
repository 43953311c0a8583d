//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package mqop

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// sendBufferSize returns the negotiated SO_SNDBUF for conn. This is
// observability only: failures mean the connection does not expose a raw
// descriptor (e.g., a test stub) and are reported in a debug log.
func sendBufferSize(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, errors.ErrUnsupported
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var (
		size int
		gerr error
	)
	if cerr := raw.Control(func(fd uintptr) {
		size, gerr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF)
	}); cerr != nil {
		return 0, cerr
	}
	return size, gerr
}
