// SPDX-License-Identifier: GPL-3.0-or-later

package mqop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// transmitLine sends one frame applying the busy-retry discipline: a
// would-block class failure walks the send ladder, anything else is a
// hard socket error that short-circuits the remaining waits.
//
// Returns nil on success, an error wrapping [ErrDeliveryFailed] when the
// ladder is exhausted, or an error wrapping [ErrSocket] on a hard
// failure. The caller owns the socket and decides whether to close it.
func transmitLine(
	frame string,
	send func(line []byte) error,
	sleep func(time.Duration),
	onRetry func(wait time.Duration, err error),
) error {
	line := wireLine(frame)
	err := runLadder(sendWaits, sleep,
		func() error {
			return send(line)
		},
		isTransientSendError,
		onRetry,
	)
	if err == nil {
		return nil
	}
	if isTransientSendError(err) {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return fmt.Errorf("%w: %w", ErrSocket, err)
}

// NewSender returns a new [*Sender] owning the given queue writer.
//
// The cfg argument contains the common configuration for mqop operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewSender(cfg *Config, queue *QueueWriter, logger SLogger) *Sender {
	return &Sender{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Sleep:         cfg.Sleep,
		TimeNow:       cfg.TimeNow,
		mu:            sync.Mutex{},
		queue:         queue,
	}
}

// Sender transmits framed messages on the writing end of the queue.
//
// All sends are serialized through an internal mutex so that at most one
// send is in flight on the queue handle, preventing interleaved writes
// on the same socket. This also makes sends a bottleneck: callers on a
// high-rate path should batch upstream.
//
// The exported fields are safe to modify after construction but before
// first use. Fields must not be mutated concurrently with calls to [Send].
type Sender struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewSender] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewSender] to the user-provided logger.
	Logger SLogger

	// Sleep blocks between retries (configurable for testing).
	//
	// Set by [NewSender] from [Config.Sleep].
	Sleep func(d time.Duration)

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewSender] from [Config.TimeNow].
	TimeNow func() time.Time

	// mu serializes sends on the queue handle.
	mu sync.Mutex

	// queue is the writing end of the queue.
	queue *QueueWriter
}

// Send frames a message and transmits it on the queue.
//
// When secure is false the frame is `locator:origin:payload`.
//
// When secure is true the first payload byte overrides the locator
// argument and must be followed by a `:` separator, else the send is
// rejected with [ErrFormat] and no bytes leave the process; the
// remainder re-frames as `locator:origin->body`. A keepalive body is
// filtered here and reported as success without touching the transport.
//
// Error returns: [ErrQueueUnavailable] when the handle is nil or closed
// (no send attempted), an error wrapping [ErrSocket] when the transport
// is gone (handle closed, no retry), or an error wrapping
// [ErrDeliveryFailed] when the socket stayed busy beyond the backoff
// budget (handle closed, message lost).
//
// The backoff sleeps are blocking and non-cancellable: ctx is accepted
// for interface symmetry but a started ladder always runs to completion.
func (s *Sender) Send(ctx context.Context, payload, origin string, locator byte, secure bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t0 := s.TimeNow()
	s.logSendStart(t0, secure)

	var frame string
	if secure {
		loc, body, err := parseSecure(payload)
		if err != nil {
			s.logSendDone(t0, err)
			return err
		}
		if isKeepalive(body) {
			s.Logger.Debug(
				"sendKeepaliveFiltered",
				slog.String("path", s.queuePath()),
				slog.Time("t", s.TimeNow()),
			)
			s.logSendDone(t0, nil)
			return nil
		}
		frame = formatSecure(loc, origin, body)
	} else {
		frame = formatPlain(locator, origin, payload)
	}

	if s.queue == nil || s.queue.unusable() {
		err := ErrQueueUnavailable
		s.logSendDone(t0, err)
		return err
	}

	err := transmitLine(frame, s.queue.send, s.Sleep,
		func(wait time.Duration, err error) {
			s.logSendRetry(wait, err)
		},
	)
	if err != nil {
		// The transport is gone or congested beyond the budget: the
		// handle is unusable either way.
		s.queue.Close()
	}
	s.logSendDone(t0, err)
	return err
}

// queuePath returns the queue path for logging, tolerating a nil handle.
func (s *Sender) queuePath() string {
	if s.queue == nil {
		return ""
	}
	return s.queue.Path()
}

func (s *Sender) logSendStart(t0 time.Time, secure bool) {
	s.Logger.Info(
		"sendStart",
		slog.String("path", s.queuePath()),
		slog.Bool("secure", secure),
		slog.Time("t", t0),
	)
}

func (s *Sender) logSendRetry(wait time.Duration, err error) {
	s.Logger.Warn(
		"sendBusyRetry",
		slog.Any("err", err),
		slog.String("errClass", s.ErrClassifier.Classify(err)),
		slog.String("path", s.queuePath()),
		slog.Time("t", s.TimeNow()),
		slog.Duration("wait", wait),
	)
}

func (s *Sender) logSendDone(t0 time.Time, err error) {
	logf := s.Logger.Info
	if err != nil {
		logf = s.Logger.Error
	}
	logf(
		"sendDone",
		slog.Any("err", err),
		slog.String("errClass", s.ErrClassifier.Classify(err)),
		slog.String("path", s.queuePath()),
		slog.Time("t0", t0),
		slog.Time("t", s.TimeNow()),
	)
}
