// SPDX-License-Identifier: GPL-3.0-or-later

// Package mqop implements a local message relay: a transport layer that
// lets a producing process hand short text-framed events to one or more
// consumers over local interprocess sockets.
//
// # Core Abstractions
//
// The package is built around three cooperating components:
//
//   - Queue endpoint ([OpenReaderFunc], [OpenWriterFunc]): opens the relay's
//     own datagram channel either as a reader (binds and listens, returning
//     a [*QueueReader]) or as a writer (connects with a bounded staged wait
//     for the reader to come up, returning a [*QueueWriter])
//
//   - Primary sender ([Sender]): frames a single message with a locator and
//     origin prefix and transmits it on the writer endpoint, applying an
//     escalating retry ladder on transient busy conditions and hard-failing
//     on socket errors
//
//   - Fan-out relay ([Relay]): replays an outbound message to a list of
//     configured named destinations, lazily establishing and caching each
//     destination's connection, applying the same retry discipline per
//     destination, and reporting destination failures back through the
//     primary sender rather than aborting the whole fan-out
//
// The reader/writer split is enforced by the type system: a [*QueueReader]
// has no send operation and a [*QueueWriter] has no accept operation.
//
// # Retry Policy
//
// All waits are fixed ladders, consumed from small data tables:
//
//   - waiting for the queue path to exist: 1s, 5s, 15s between four checks
//   - connecting to a socket: 1s, 2s between three attempts
//   - sending on a busy socket: 1s, 3s, 5s, 10s between five attempts
//
// A hard socket error short-circuits the send ladder and closes the
// handle; only would-block class errors are retried. Once a ladder begins
// it runs to completion or success: the sleeps are real blocking waits
// with no cancellation hook, so a caller needing cancellation must run
// these operations on a goroutine it is prepared to abandon.
//
// # Failure Isolation
//
// Per-destination failures during a broadcast are contained: they are
// reported as a side-channel notification through the primary queue and as
// a log event, and the broadcast continues with the remaining destinations.
// Only a configuration-class error (an unrecognized transport mode) aborts
// the whole broadcast, because that is a setup defect rather than a
// delivery defect.
//
// # Observability
//
// All components support structured logging via [SLogger] (compatible with
// [log/slog]). By default, logging is disabled. Pass a custom [*slog.Logger]
// to the constructors to enable logging.
//
// Components emit paired span events (*Start/*Done) recording operation
// lifecycle, plus one Warn event per retry tier and one Error event per
// terminal failure. All events share a common set of fields: path or
// destination, protocol, and t (timestamp). Completion events (*Done)
// additionally include t0 (start time), err, and errClass. Error
// classification is configurable via [ErrClassifier]; the default
// classifies errors with the errclass package.
//
// Use [NewSpanID] to generate a unique, time-ordered identifier (UUIDv7)
// for each send or broadcast, then attach it to the logger with
// [*slog.Logger.With] so that all events of one operation correlate.
//
// # Concurrency
//
// A [Sender] serializes all sends on its queue handle through an internal
// mutex, so at most one send is in flight per sender. Destination
// connections are mutated only by [*Relay.Broadcast]; concurrent broadcasts
// over the same destination slice require external serialization.
//
// # Design Boundaries
//
// This package intentionally provides only the relay transport. The
// following are out of scope and should be implemented by higher-level
// packages:
//
//   - Message content schema and validation
//   - Queue persistence and cross-restart delivery guarantees
//   - Configuration loading and daemon bootstrap
//   - Parallel fan-out (destinations are handled sequentially)
package mqop
