// SPDX-License-Identifier: GPL-3.0-or-later

package mqop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewSender populates all fields from Config and the provided logger.
func TestNewSender(t *testing.T) {
	cfg := NewConfig()
	writer := newTestQueueWriter(newStubConn())

	sender := NewSender(cfg, writer, DefaultSLogger())

	require.NotNil(t, sender)
	assert.NotNil(t, sender.ErrClassifier)
	assert.NotNil(t, sender.Logger)
	assert.NotNil(t, sender.Sleep)
	assert.NotNil(t, sender.TimeNow)
}

// Send frames and transmits messages, filtering keepalives and
// rejecting malformed secure payloads before any byte leaves.
func TestSenderFraming(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// payload is the message payload.
		payload string

		// secure selects secure-mode re-framing.
		secure bool

		// wantErr is the expected sentinel, if any.
		wantErr error

		// wantWires is the expected sequence of transmitted lines.
		wantWires []string
	}{
		{
			name:      "plain framing",
			payload:   "hello world",
			wantWires: []string{"q:daemon:hello world\x00"},
		},

		{
			name:      "secure re-framing overrides the locator",
			payload:   "X:rest of it",
			secure:    true,
			wantWires: []string{"X:daemon->rest of it\x00"},
		},

		{
			name:      "keepalive is filtered but reported as success",
			payload:   "1:keepalive agent is alive",
			secure:    true,
			wantWires: nil,
		},

		{
			name:      "missing separator yields a format error",
			payload:   "Xrest",
			secure:    true,
			wantErr:   ErrFormat,
			wantWires: nil,
		},

		{
			name:      "empty secure payload yields a format error",
			payload:   "",
			secure:    true,
			wantErr:   ErrFormat,
			wantWires: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wires []string
			conn := newStubConn()
			conn.WriteFunc = func(b []byte) (int, error) {
				wires = append(wires, string(b))
				return len(b), nil
			}

			sender := NewSender(NewConfig(), newTestQueueWriter(conn), DefaultSLogger())
			err := sender.Send(context.Background(), tt.payload, "daemon", 'q', tt.secure)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantWires, wires)
		})
	}
}

// Send against a nil or closed handle fails immediately with
// ErrQueueUnavailable: no send attempted, no retry.
func TestSenderQueueUnavailable(t *testing.T) {
	t.Run("nil handle", func(t *testing.T) {
		sender := NewSender(NewConfig(), nil, DefaultSLogger())

		err := sender.Send(context.Background(), "hello", "daemon", 'q', false)

		require.ErrorIs(t, err, ErrQueueUnavailable)
	})

	t.Run("closed handle", func(t *testing.T) {
		var writes int
		conn := newStubConn()
		conn.WriteFunc = func(b []byte) (int, error) {
			writes++
			return len(b), nil
		}
		writer := newTestQueueWriter(conn)
		writer.Close()

		sender := NewSender(NewConfig(), writer, DefaultSLogger())
		err := sender.Send(context.Background(), "hello", "daemon", 'q', false)

		require.ErrorIs(t, err, ErrQueueUnavailable)
		assert.Equal(t, 0, writes)
	})
}

// Send against a handle that always reports transient-busy fails after
// exactly five attempts spanning the 1,3,5,10s waits, closes the
// handle, and emits one event per retry tier.
func TestSenderExhaustedRetries(t *testing.T) {
	logger, records := newCapturingLogger()
	sleep, waits := newRecordingSleep()
	var writes, closes int

	conn := newStubConn()
	conn.WriteFunc = func(b []byte) (int, error) {
		writes++
		return 0, errBusy
	}
	conn.CloseFunc = func() error {
		closes++
		return nil
	}
	writer := newTestQueueWriter(conn)

	cfg := NewConfig()
	cfg.Sleep = sleep
	sender := NewSender(cfg, writer, logger)
	err := sender.Send(context.Background(), "hello", "daemon", 'q', false)

	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, 5, writes)
	assert.Equal(t, []time.Duration{
		1 * time.Second, 3 * time.Second, 5 * time.Second, 10 * time.Second,
	}, *waits)
	assert.Equal(t, 1, closes)
	assert.True(t, writer.unusable())
	assert.Equal(t, 4, countRecords(records, "sendBusyRetry"))
	assert.Equal(t, 1, countRecords(records, "sendDone"))
}

// Send against a handle that reports a hard error on the first attempt
// fails immediately with ErrSocket: zero retries, handle closed.
func TestSenderHardError(t *testing.T) {
	sleep, waits := newRecordingSleep()
	errPipe := errors.New("broken pipe")
	var writes, closes int

	conn := newStubConn()
	conn.WriteFunc = func(b []byte) (int, error) {
		writes++
		return 0, errPipe
	}
	conn.CloseFunc = func() error {
		closes++
		return nil
	}
	writer := newTestQueueWriter(conn)

	cfg := NewConfig()
	cfg.Sleep = sleep
	sender := NewSender(cfg, writer, DefaultSLogger())
	err := sender.Send(context.Background(), "hello", "daemon", 'q', false)

	require.ErrorIs(t, err, ErrSocket)
	require.ErrorIs(t, err, errPipe)
	assert.Equal(t, 1, writes)
	assert.Empty(t, *waits)
	assert.Equal(t, 1, closes)
	assert.True(t, writer.unusable())
}

// A transient failure that turns into a hard error mid-ladder
// short-circuits the remaining waits.
func TestSenderHardErrorMidLadder(t *testing.T) {
	sleep, waits := newRecordingSleep()
	errPipe := errors.New("broken pipe")
	var writes int

	conn := newStubConn()
	conn.WriteFunc = func(b []byte) (int, error) {
		writes++
		if writes == 1 {
			return 0, errBusy
		}
		return 0, errPipe
	}
	writer := newTestQueueWriter(conn)

	cfg := NewConfig()
	cfg.Sleep = sleep
	sender := NewSender(cfg, writer, DefaultSLogger())
	err := sender.Send(context.Background(), "hello", "daemon", 'q', false)

	require.ErrorIs(t, err, ErrSocket)
	assert.Equal(t, 2, writes)
	assert.Equal(t, []time.Duration{1 * time.Second}, *waits)
}

// A transient failure that clears up mid-ladder delivers the message.
func TestSenderEventualDelivery(t *testing.T) {
	sleep, waits := newRecordingSleep()
	var writes int
	var delivered string

	conn := newStubConn()
	conn.WriteFunc = func(b []byte) (int, error) {
		writes++
		if writes < 3 {
			return 0, errBusy
		}
		delivered = string(b)
		return len(b), nil
	}
	writer := newTestQueueWriter(conn)

	cfg := NewConfig()
	cfg.Sleep = sleep
	sender := NewSender(cfg, writer, DefaultSLogger())
	err := sender.Send(context.Background(), "hello", "daemon", 'q', false)

	require.NoError(t, err)
	assert.Equal(t, 3, writes)
	assert.Equal(t, []time.Duration{
		1 * time.Second, 3 * time.Second,
	}, *waits)
	assert.Equal(t, "q:daemon:hello\x00", delivered)
	assert.False(t, writer.unusable())
}

// Send emits sendStart/sendDone log events on the success path.
func TestSenderLogging(t *testing.T) {
	logger, records := newCapturingLogger()

	conn := newStubConn()
	conn.WriteFunc = func(b []byte) (int, error) {
		return len(b), nil
	}

	sender := NewSender(NewConfig(), newTestQueueWriter(conn), logger)
	err := sender.Send(context.Background(), "hello", "daemon", 'q', false)

	require.NoError(t, err)
	assert.Equal(t, 1, countRecords(records, "sendStart"))
	assert.Equal(t, 1, countRecords(records, "sendDone"))
	assert.Equal(t, 0, countRecords(records, "sendBusyRetry"))
}
