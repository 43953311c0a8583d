//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package mqop

import "golang.org/x/sys/unix"

// transientSendErrnos are the would-block class errnos that the send
// ladder retries. EAGAIN and EWOULDBLOCK are distinct values on some
// platforms; ENOBUFS is the datagram-socket flavor of the same condition.
var transientSendErrnos = []error{
	unix.EAGAIN,
	unix.EWOULDBLOCK,
	unix.ENOBUFS,
}
