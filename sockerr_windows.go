//go:build windows

// SPDX-License-Identifier: GPL-3.0-or-later

package mqop

import "golang.org/x/sys/windows"

// transientSendErrnos are the would-block class errnos that the send
// ladder retries.
var transientSendErrnos = []error{
	windows.WSAEWOULDBLOCK,
	windows.WSAENOBUFS,
}
