// SPDX-License-Identifier: GPL-3.0-or-later

package mqop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/bassosimone/safeconn"
)

// AgentDestination is the distinguished destination name that is not a
// physical sink: it routes the message through the primary [Sender]
// instead of opening a separate socket.
const AgentDestination = "agent"

// Notification texts reported through the primary queue when a
// destination fails. Byte-exact strings observed by the consumers of
// the primary queue.
const (
	notifySocketUnavailable = "Socket not available."
	notifyCannotSend        = "Cannot send message to socket."
)

// Destination is a named output sink for the fan-out relay.
//
// Destinations are constructed by the caller at configuration time and
// handed to [*Relay.Broadcast] in a stable order. The connection state
// is owned by the relay: it is established lazily on the first send
// attempt and reset to unconnected after an unrecoverable send error so
// that the next broadcast re-establishes it from scratch.
type Destination struct {
	// Name is the unique, case-sensitive key of the sink. The name
	// [AgentDestination] is a routing alias, not a physical sink.
	Name string

	// Mode declares the transport: "udp" (datagram) or "tcp" (stream).
	// Any other value is a configuration defect.
	Mode string

	// Location is the socket path or network address of the sink.
	Location string

	// Prefix, when non-empty, is prepended to every message for this
	// sink as `prefix:payload`.
	Prefix string

	// conn is the lazily-established socket; nil means unconnected.
	conn net.Conn
}

// Connected reports whether the destination currently holds an
// established socket.
func (d *Destination) Connected() bool {
	return d.conn != nil
}

// reset closes the socket, if any, and reverts to unconnected.
func (d *Destination) reset() {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}

// resolveNetwork maps a destination's declared mode to a Go network
// name. Locations containing a path separator are unix-domain sockets,
// with "udp" selecting datagram and "tcp" selecting stream semantics;
// other locations are genuine UDP/TCP addresses.
func resolveNetwork(mode, location string) (string, error) {
	local := strings.Contains(location, "/")
	switch mode {
	case "udp":
		if local {
			return "unixgram", nil
		}
		return "udp", nil
	case "tcp":
		if local {
			return "unix", nil
		}
		return "tcp", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransport, mode)
	}
}

// NewRelay returns a new [*Relay] forwarding through the given sender.
//
// The cfg argument contains the common configuration for mqop operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewRelay(cfg *Config, sender *Sender, logger SLogger) *Relay {
	return &Relay{
		Dialer:        cfg.Dialer,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Sleep:         cfg.Sleep,
		TimeNow:       cfg.TimeNow,
		sender:        sender,
	}
}

// Relay fans an outbound message out to a list of configured
// destinations, isolating each destination's failures from the rest.
//
// The exported fields are safe to modify after construction but before
// first use. Fields must not be mutated concurrently with calls to
// [Broadcast], and concurrent broadcasts over the same destination
// slice require external serialization.
type Relay struct {
	// Dialer is the [Dialer] to use.
	//
	// Set by [NewRelay] from [Config.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewRelay] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewRelay] to the user-provided logger.
	Logger SLogger

	// Sleep blocks between retries (configurable for testing).
	//
	// Set by [NewRelay] from [Config.Sleep].
	Sleep func(d time.Duration)

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewRelay] from [Config.TimeNow].
	TimeNow func() time.Time

	// sender forwards to the agent alias and reports sink failures.
	sender *Sender
}

// Broadcast replays a message to every destination, in order.
//
// The [AgentDestination] alias forwards through the primary [Sender]
// against its queue handle; every other destination gets the payload on
// its own socket, prefixed with its configured prefix when one is set
// (no locator/origin framing is added at this layer).
//
// Per-destination failures are contained: a destination that cannot be
// connected or kept busy beyond the backoff budget is reported through
// the primary queue as a notification message, logged, and skipped, and
// the broadcast continues with the remaining destinations. The only
// error return is an error wrapping [ErrInvalidTransport], which aborts
// the whole broadcast immediately: a nil return means every destination
// was attempted, not that every destination succeeded.
func (r *Relay) Broadcast(
	ctx context.Context,
	payload, origin string,
	locator byte,
	secure bool,
	destinations []*Destination,
) error {
	t0 := r.TimeNow()
	r.logBroadcastStart(t0, len(destinations))

	for _, dst := range destinations {
		if dst.Name == AgentDestination {
			// The sender logs and contains its own failures; the
			// broadcast proceeds in either outcome.
			_ = r.sender.Send(ctx, payload, origin, locator, secure)
			continue
		}

		network, err := resolveNetwork(dst.Mode, dst.Location)
		if err != nil {
			r.logBroadcastDone(t0, err)
			return err
		}

		if !dst.Connected() {
			conn, err := r.dialDestination(ctx, network, dst)
			if err != nil {
				r.report(ctx, notifySocketUnavailable, origin, locator)
				continue
			}
			dst.conn = conn
		}

		frame := truncateLine(payload)
		if dst.Prefix != "" {
			frame = truncateLine(dst.Prefix + ":" + payload)
		}
		r.Logger.Debug(
			"relaySendStart",
			slog.String("destination", dst.Name),
			slog.String("frame", frame),
			slog.String("location", dst.Location),
			slog.Time("t", r.TimeNow()),
		)

		conn := dst.conn
		err = transmitLine(frame,
			func(line []byte) error {
				_, werr := conn.Write(line)
				return werr
			},
			r.Sleep,
			func(wait time.Duration, err error) {
				r.logDestinationRetry("relaySendBusyRetry", dst, wait, err)
			},
		)
		if err != nil {
			dst.reset()
			if errors.Is(err, ErrDeliveryFailed) {
				r.report(ctx, notifyCannotSend, origin, locator)
			}
		}
		r.logDestinationSendDone(dst, err)
	}

	r.logBroadcastDone(t0, nil)
	return nil
}

// dialDestination establishes a destination socket applying the connect
// ladder. On exhaustion it logs the terminal failure and returns an
// error wrapping [ErrConnect].
func (r *Relay) dialDestination(ctx context.Context, network string, dst *Destination) (net.Conn, error) {
	t0 := r.TimeNow()
	r.Logger.Info(
		"relayConnectStart",
		slog.String("destination", dst.Name),
		slog.String("location", dst.Location),
		slog.String("protocol", network),
		slog.Time("t", t0),
	)

	var conn net.Conn
	err := runLadder(connectWaits, r.Sleep,
		func() error {
			c, err := r.Dialer.DialContext(ctx, network, dst.Location)
			if err != nil {
				return err
			}
			conn = c
			return nil
		},
		alwaysRetry,
		func(wait time.Duration, err error) {
			r.logDestinationRetry("relayConnectRetry", dst, wait, err)
		},
	)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrConnect, dst.Location, err)
	} else if wb, ok := conn.(setWriteBufferer); ok {
		if werr := wb.SetWriteBuffer(writerBufferSize); werr != nil {
			r.Logger.Debug(
				"relaySetWriteBuffer",
				slog.String("destination", dst.Name),
				slog.Any("err", werr),
				slog.String("location", dst.Location),
				slog.Time("t", r.TimeNow()),
			)
		}
	}

	logf := r.Logger.Info
	if err != nil {
		logf = r.Logger.Error
	}
	logf(
		"relayConnectDone",
		slog.String("destination", dst.Name),
		slog.Any("err", err),
		slog.String("errClass", r.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("location", dst.Location),
		slog.String("protocol", network),
		slog.Time("t0", t0),
		slog.Time("t", r.TimeNow()),
	)
	return conn, err
}

// report sends a failure notification for a destination through the
// primary queue. Best effort: when the primary queue is down as well
// the sender's own error is logged by the sender and swallowed here so
// that the broadcast still proceeds to the remaining destinations.
func (r *Relay) report(ctx context.Context, text, origin string, locator byte) {
	_ = r.sender.Send(ctx, text, origin, locator, false)
}

func (r *Relay) logBroadcastStart(t0 time.Time, count int) {
	r.Logger.Info(
		"broadcastStart",
		slog.Int("destinations", count),
		slog.Time("t", t0),
	)
}

func (r *Relay) logBroadcastDone(t0 time.Time, err error) {
	logf := r.Logger.Info
	if err != nil {
		logf = r.Logger.Error
	}
	logf(
		"broadcastDone",
		slog.Any("err", err),
		slog.String("errClass", r.ErrClassifier.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", r.TimeNow()),
	)
}

func (r *Relay) logDestinationRetry(event string, dst *Destination, wait time.Duration, err error) {
	r.Logger.Warn(
		event,
		slog.String("destination", dst.Name),
		slog.Any("err", err),
		slog.String("errClass", r.ErrClassifier.Classify(err)),
		slog.String("location", dst.Location),
		slog.Time("t", r.TimeNow()),
		slog.Duration("wait", wait),
	)
}

func (r *Relay) logDestinationSendDone(dst *Destination, err error) {
	logf := r.Logger.Info
	if err != nil {
		logf = r.Logger.Error
	}
	logf(
		"relaySendDone",
		slog.String("destination", dst.Name),
		slog.Any("err", err),
		slog.String("errClass", r.ErrClassifier.Classify(err)),
		slog.String("location", dst.Location),
		slog.Time("t", r.TimeNow()),
	)
}
