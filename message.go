// SPDX-License-Identifier: GPL-3.0-or-later

package mqop

import (
	"fmt"
	"strings"
)

// MaxLineLength is the maximum size in bytes of a wire line, including
// the trailing NUL terminator. Frames longer than this are truncated,
// never rejected. All call sites share this single constant.
const MaxLineLength = 6144

const (
	// readerBufferSize is the receive buffer requested when binding
	// the queue path as a reader.
	readerBufferSize = MaxLineLength + 512

	// writerBufferSize is the send buffer requested when connecting
	// to the queue path or to a destination socket.
	writerBufferSize = MaxLineLength + 256
)

// keepaliveMarker identifies control traffic that is filtered at the
// sender layer and never reaches the transport.
const keepaliveMarker = "keepalive"

// formatPlain frames a message as `locator:origin:payload`, truncated
// to fit a wire line.
func formatPlain(locator byte, origin, payload string) string {
	return truncateLine(fmt.Sprintf("%c:%s:%s", locator, origin, payload))
}

// formatSecure re-frames an already-located message as
// `locator:origin->body`, truncated to fit a wire line.
func formatSecure(locator byte, origin, body string) string {
	return truncateLine(fmt.Sprintf("%c:%s->%s", locator, origin, body))
}

// parseSecure splits a secure-mode payload into its embedded locator and
// the message body. The first byte is the effective locator and the
// second byte must be the `:` separator, otherwise the payload is
// malformed and we return [ErrFormat].
func parseSecure(payload string) (locator byte, body string, err error) {
	if len(payload) < 2 || payload[1] != ':' {
		return 0, "", ErrFormat
	}
	return payload[0], payload[2:], nil
}

// isKeepalive reports whether a secure-mode body is keepalive traffic.
// The match is on the leading bytes of the body.
func isKeepalive(body string) bool {
	return strings.HasPrefix(body, keepaliveMarker)
}

// truncateLine caps a frame so that the wire line produced by
// [wireLine] never exceeds [MaxLineLength].
func truncateLine(frame string) string {
	if len(frame) > MaxLineLength-1 {
		return frame[:MaxLineLength-1]
	}
	return frame
}

// wireLine converts a frame into the bytes actually transmitted. The
// line is NUL-terminated on the wire.
func wireLine(frame string) []byte {
	return append([]byte(frame), 0)
}
