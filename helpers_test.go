// SPDX-License-Identifier: GPL-3.0-or-later

package mqop

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// countRecords returns how many captured records carry the given message.
func countRecords(records *[]slog.Record, message string) int {
	var count int
	for _, record := range *records {
		if record.Message == message {
			count++
		}
	}
	return count
}

// newRecordingSleep returns a sleep function that records each requested
// wait instead of actually sleeping, so that retry-ladder tests run fast
// and can assert the exact backoff sequence.
func newRecordingSleep() (func(time.Duration), *[]time.Duration) {
	var waits []time.Duration
	return func(d time.Duration) {
		waits = append(waits, d)
	}, &waits
}

// newStubConn returns a [*netstub.FuncConn] with LocalAddrFunc,
// RemoteAddrFunc, and CloseFunc set. This is the minimum needed for code
// that logs addresses and closes the connection on failure. Tests add
// WriteFunc for the behavior under test.
func newStubConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		CloseFunc: func() error {
			return nil
		},
		LocalAddrFunc: func() net.Addr {
			return &net.UnixAddr{Name: "", Net: "unixgram"}
		},
		RemoteAddrFunc: func() net.Addr {
			return &net.UnixAddr{Name: "/var/run/test.sock", Net: "unixgram"}
		},
	}
}

// newTestQueueWriter returns a [*QueueWriter] directly wrapping conn,
// bypassing [*OpenWriterFunc] so that sender tests control the socket.
func newTestQueueWriter(conn net.Conn) *QueueWriter {
	return &QueueWriter{
		conn: conn,
		path: "/var/run/test.sock",
	}
}

// errBusy is a would-block class error on the platform running the tests.
var errBusy = transientSendErrnos[0]
