// SPDX-License-Identifier: GPL-3.0-or-later

package mqop

import "errors"

// Errors returned by this package. Callers should match them with
// [errors.Is] because the returned values wrap the underlying OS error
// where one exists.
var (
	// ErrBind means binding the queue path as a reader failed. Bind
	// failures are immediate and never retried.
	ErrBind = errors.New("mqop: cannot bind queue")

	// ErrQueueNotFound means the queue path never appeared within the
	// existence-wait ladder; no connect attempt was made.
	ErrQueueNotFound = errors.New("mqop: queue not found")

	// ErrConnect means connecting to a socket failed on every attempt
	// of the connect ladder. It wraps the last OS error.
	ErrConnect = errors.New("mqop: cannot connect to socket")

	// ErrFormat means a secure-mode payload is missing the locator
	// separator. The send is rejected and no bytes leave the process.
	ErrFormat = errors.New("mqop: malformed secure payload")

	// ErrQueueUnavailable means the caller supplied a nil or closed
	// queue handle. Immediate, no retry.
	ErrQueueUnavailable = errors.New("mqop: queue not available")

	// ErrSocket means the transport itself is gone (hard socket error).
	// The handle has been closed and the message is lost.
	ErrSocket = errors.New("mqop: socket not available")

	// ErrDeliveryFailed means the socket stayed busy beyond the backoff
	// budget. The handle has been closed defensively and the message is
	// lost.
	ErrDeliveryFailed = errors.New("mqop: message delivery failed")

	// ErrInvalidTransport means a destination declares an unrecognized
	// transport mode. This is a configuration defect and aborts the
	// whole broadcast.
	ErrInvalidTransport = errors.New("mqop: invalid socket transport")
)

// isTransientSendError reports whether a send failure is a would-block
// class condition worth retrying. Everything else is a hard socket error.
//
// The errno tables live in build-tagged files.
func isTransientSendError(err error) bool {
	for _, target := range transientSendErrnos {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
