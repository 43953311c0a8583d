// SPDX-License-Identifier: GPL-3.0-or-later

package mqop

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassosimone/safeconn"
)

// Dialer abstracts the [*net.Dialer] behavior.
//
// By making writer-open and relay operations depend on an abstract
// implementation we allow for unit testing and for using alternative dialers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ListenConfig abstracts the [*net.ListenConfig] behavior.
//
// [*OpenReaderFunc] uses it to bind the queue path as a datagram socket.
type ListenConfig interface {
	ListenPacket(ctx context.Context, network, address string) (net.PacketConn, error)
}

// setReadBufferer is implemented by socket types whose receive buffer
// can be resized (e.g., [*net.UnixConn]).
type setReadBufferer interface {
	SetReadBuffer(bytes int) error
}

// setWriteBufferer is implemented by socket types whose send buffer
// can be resized.
type setWriteBufferer interface {
	SetWriteBuffer(bytes int) error
}

// NewOpenReaderFunc returns a new [*OpenReaderFunc].
//
// The cfg argument contains the common configuration for mqop operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewOpenReaderFunc(cfg *Config, logger SLogger) *OpenReaderFunc {
	return &OpenReaderFunc{
		ErrClassifier: cfg.ErrClassifier,
		ListenConfig:  cfg.ListenConfig,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// OpenReaderFunc opens the relay's own channel as a reader: it binds a
// datagram socket at the queue path and listens on it.
//
// Returns either a valid [*QueueReader] or an error, never both. Bind
// failures are immediate and never retried: they wrap [ErrBind].
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type OpenReaderFunc struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewOpenReaderFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// ListenConfig is the [ListenConfig] to use.
	//
	// Set by [NewOpenReaderFunc] from [Config.ListenConfig].
	ListenConfig ListenConfig

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewOpenReaderFunc] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewOpenReaderFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

// Call binds the queue path and returns the reading end of the queue.
func (op *OpenReaderFunc) Call(ctx context.Context, path string) (*QueueReader, error) {
	t0 := op.TimeNow()
	op.logBindStart(path, t0)
	pc, err := op.ListenConfig.ListenPacket(ctx, "unixgram", path)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrBind, path, err)
		op.logBindDone(path, t0, nil, err)
		return nil, err
	}
	if rb, ok := pc.(setReadBufferer); ok {
		if err := rb.SetReadBuffer(readerBufferSize); err != nil {
			op.Logger.Debug(
				"bindSetReadBuffer",
				slog.Any("err", err),
				slog.String("path", path),
				slog.Time("t", op.TimeNow()),
			)
		}
	}
	op.logBindDone(path, t0, pc, nil)
	return &QueueReader{
		closeonce: sync.Once{},
		path:      path,
		pc:        pc,
	}, nil
}

func (op *OpenReaderFunc) logBindStart(path string, t0 time.Time) {
	op.Logger.Info(
		"bindStart",
		slog.String("path", path),
		slog.String("protocol", "unixgram"),
		slog.Time("t", t0),
	)
}

func (op *OpenReaderFunc) logBindDone(path string, t0 time.Time, pc net.PacketConn, err error) {
	var laddr string
	if pc != nil {
		laddr = pc.LocalAddr().String()
	}
	logf := op.Logger.Info
	if err != nil {
		logf = op.Logger.Error
	}
	logf(
		"bindDone",
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", laddr),
		slog.String("path", path),
		slog.String("protocol", "unixgram"),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}

// NewOpenWriterFunc returns a new [*OpenWriterFunc].
//
// The cfg argument contains the common configuration for mqop operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewOpenWriterFunc(cfg *Config, logger SLogger) *OpenWriterFunc {
	return &OpenWriterFunc{
		Dialer:        cfg.Dialer,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Sleep:         cfg.Sleep,
		Stat:          cfg.Stat,
		TimeNow:       cfg.TimeNow,
	}
}

// OpenWriterFunc opens the relay's own channel as a writer: it waits for
// the queue path to exist, then connects to it, each phase bounded by a
// fixed wait ladder.
//
// The existence wait allows up to ~21s for the reading end to start. If
// the path never appears the call fails with [ErrQueueNotFound] and no
// connect attempt is made. The connect phase allows three attempts
// within ~3s and fails wrapping [ErrConnect] around the last OS error.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type OpenWriterFunc struct {
	// Dialer is the [Dialer] to use.
	//
	// Set by [NewOpenWriterFunc] from [Config.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewOpenWriterFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewOpenWriterFunc] to the user-provided logger.
	Logger SLogger

	// Sleep blocks between retries (configurable for testing).
	//
	// Set by [NewOpenWriterFunc] from [Config.Sleep].
	Sleep func(d time.Duration)

	// Stat checks for the queue path (configurable for testing).
	//
	// Set by [NewOpenWriterFunc] from [Config.Stat].
	Stat func(path string) (fs.FileInfo, error)

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewOpenWriterFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

// Call waits for the queue path, connects to it, and returns the
// writing end of the queue.
func (op *OpenWriterFunc) Call(ctx context.Context, path string) (*QueueWriter, error) {
	t0 := op.TimeNow()
	op.logOpenStart(path, t0)

	// Give the reading end a bounded amount of time to come up. When the
	// reader is already up this adds zero delay.
	err := runLadder(existenceWaits, op.Sleep,
		func() error {
			_, err := op.Stat(path)
			return err
		},
		alwaysRetry,
		func(wait time.Duration, err error) {
			op.logRetry("queueWaitRetry", path, wait, err)
		},
	)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrQueueNotFound, path)
		op.logOpenDone(path, t0, nil, err)
		return nil, err
	}

	// The path exists: connect, with its own shorter ladder.
	var conn net.Conn
	err = runLadder(connectWaits, op.Sleep,
		func() error {
			c, err := op.Dialer.DialContext(ctx, "unixgram", path)
			if err != nil {
				return err
			}
			conn = c
			return nil
		},
		alwaysRetry,
		func(wait time.Duration, err error) {
			op.logRetry("queueConnectRetry", path, wait, err)
		},
	)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrConnect, path, err)
		op.logOpenDone(path, t0, nil, err)
		return nil, err
	}

	if wb, ok := conn.(setWriteBufferer); ok {
		if err := wb.SetWriteBuffer(writerBufferSize); err != nil {
			op.Logger.Debug(
				"queueSetWriteBuffer",
				slog.Any("err", err),
				slog.String("path", path),
				slog.Time("t", op.TimeNow()),
			)
		}
	}
	size, sizeErr := sendBufferSize(conn)
	op.Logger.Debug(
		"queueSocketSize",
		slog.Any("err", sizeErr),
		slog.String("path", path),
		slog.Int("sndbuf", size),
		slog.Time("t", op.TimeNow()),
	)

	op.logOpenDone(path, t0, conn, nil)
	return &QueueWriter{
		closed:    atomic.Bool{},
		closeonce: sync.Once{},
		conn:      conn,
		path:      path,
	}, nil
}

func (op *OpenWriterFunc) logOpenStart(path string, t0 time.Time) {
	op.Logger.Info(
		"queueOpenStart",
		slog.String("path", path),
		slog.String("protocol", "unixgram"),
		slog.Time("t", t0),
	)
}

func (op *OpenWriterFunc) logOpenDone(path string, t0 time.Time, conn net.Conn, err error) {
	logf := op.Logger.Info
	if err != nil {
		logf = op.Logger.Error
	}
	logf(
		"queueOpenDone",
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("path", path),
		slog.String("protocol", "unixgram"),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}

func (op *OpenWriterFunc) logRetry(event, path string, wait time.Duration, err error) {
	op.Logger.Warn(
		event,
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("path", path),
		slog.Time("t", op.TimeNow()),
		slog.Duration("wait", wait),
	)
}

// QueueReader is the reading end of the queue.
//
// This type owns the underlying socket. The caller is responsible for
// calling Close() when done. A QueueReader never sends.
//
// Construct via [*OpenReaderFunc].
type QueueReader struct {
	// closeonce ensures we close just once.
	closeonce sync.Once

	// path is the bound queue path.
	path string

	// pc is the owned datagram socket.
	pc net.PacketConn
}

// Recv blocks until the next message arrives on the queue and returns
// it with the trailing NUL terminator stripped.
func (r *QueueReader) Recv() (string, error) {
	buf := make([]byte, MaxLineLength)
	count, _, err := r.pc.ReadFrom(buf)
	if err != nil {
		return "", err
	}
	for count > 0 && buf[count-1] == 0 {
		count--
	}
	return string(buf[:count]), nil
}

// LocalAddr returns the bound address of the queue.
func (r *QueueReader) LocalAddr() net.Addr {
	return r.pc.LocalAddr()
}

// Path returns the queue path this reader is bound to.
func (r *QueueReader) Path() string {
	return r.path
}

// Close closes the underlying socket.
//
// Subsequent calls return [net.ErrClosed], consistent with Go's standard
// library behavior for closed connections.
func (r *QueueReader) Close() (err error) {
	err = net.ErrClosed
	r.closeonce.Do(func() {
		err = r.pc.Close()
	})
	return
}

// QueueWriter is the writing end of the queue.
//
// This type owns the underlying socket. The socket is closed exactly
// once, either by [*QueueWriter.Close] or by the [Sender] on a hard
// failure. A QueueWriter never accepts.
//
// Construct via [*OpenWriterFunc].
type QueueWriter struct {
	// closed records that the handle is unusable.
	closed atomic.Bool

	// closeonce ensures we close just once.
	closeonce sync.Once

	// conn is the owned datagram socket.
	conn net.Conn

	// path is the connected queue path.
	path string
}

// send transmits one wire line. Callers serialize through the [Sender].
func (w *QueueWriter) send(line []byte) error {
	_, err := w.conn.Write(line)
	return err
}

// unusable reports whether the handle has been closed.
func (w *QueueWriter) unusable() bool {
	return w.closed.Load()
}

// Path returns the queue path this writer is connected to.
func (w *QueueWriter) Path() string {
	return w.path
}

// Close closes the underlying socket.
//
// Subsequent calls return [net.ErrClosed], consistent with Go's standard
// library behavior for closed connections.
func (w *QueueWriter) Close() (err error) {
	err = net.ErrClosed
	w.closeonce.Do(func() {
		w.closed.Store(true)
		err = w.conn.Close()
	})
	return
}
