// SPDX-License-Identifier: GPL-3.0-or-later

package mqop

import "time"

// Wait tables consumed by [runLadder]. Each table allows len(table)+1
// attempts with table[i] slept after the i-th failure.
var (
	// existenceWaits paces the checks for the queue path to appear
	// while opening a writer endpoint (worst case ~21s).
	existenceWaits = []time.Duration{
		1 * time.Second,
		5 * time.Second,
		15 * time.Second,
	}

	// connectWaits paces socket connect attempts (worst case ~3s).
	connectWaits = []time.Duration{
		1 * time.Second,
		2 * time.Second,
	}

	// sendWaits paces retransmissions on a busy socket (worst
	// case ~19s, after which the message is lost).
	sendWaits = []time.Duration{
		1 * time.Second,
		3 * time.Second,
		5 * time.Second,
		10 * time.Second,
	}
)

// runLadder invokes attempt up to len(waits)+1 times, sleeping waits[i]
// after the i-th failure. It stops early when attempt succeeds or when
// retryable reports that the error is not worth retrying, and returns the
// last error observed.
//
// onRetry is invoked exactly once per tier, before the sleep, so that
// every retry step emits exactly one observable event.
func runLadder(
	waits []time.Duration,
	sleep func(time.Duration),
	attempt func() error,
	retryable func(error) bool,
	onRetry func(wait time.Duration, err error),
) error {
	err := attempt()
	for i := 0; err != nil && retryable(err) && i < len(waits); i++ {
		onRetry(waits[i], err)
		sleep(waits[i])
		err = attempt()
	}
	return err
}

// alwaysRetry is the retryable policy for ladders where every failure
// is worth another attempt (existence wait, connect).
func alwaysRetry(error) bool {
	return true
}
