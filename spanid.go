// SPDX-License-Identifier: GPL-3.0-or-later

package mqop

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 representing a span.
//
// A span is a sequence of operations that can fail in a single, specific
// way. For example, opening the writer endpoint, one send on the primary
// queue, or one broadcast across the destination list.
//
// We recommend attaching a span ID to the logger so that all events of
// one operation correlate across retry tiers.
//
// The span terminology is borrowed from OTel.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
