//go:build !unix

// SPDX-License-Identifier: GPL-3.0-or-later

package mqop

import (
	"errors"
	"net"
)

// sendBufferSize is unavailable without SOL_SOCKET access; the caller
// only logs the size, so reporting unsupported is fine.
func sendBufferSize(conn net.Conn) (int, error) {
	return 0, errors.ErrUnsupported
}
