// SPDX-License-Identifier: GPL-3.0-or-later

package mqop

import (
	"io/fs"
	"net"
	"os"
	"time"
)

// Config holds common configuration for mqop operations.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// Dialer is used by [*OpenWriterFunc] and [*Relay].
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// ListenConfig is used by [*OpenReaderFunc] to bind the queue path.
	//
	// Set by [NewConfig] to [*net.ListenConfig].
	ListenConfig ListenConfig

	// Sleep blocks the caller for the given duration between retries.
	//
	// Set by [NewConfig] to [time.Sleep].
	Sleep func(d time.Duration)

	// Stat checks for the existence of the queue path.
	//
	// Set by [NewConfig] to [os.Stat].
	Stat func(path string) (fs.FileInfo, error)

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Dialer:        &net.Dialer{},
		ErrClassifier: DefaultErrClassifier,
		ListenConfig:  &net.ListenConfig{},
		Sleep:         time.Sleep,
		Stat:          os.Stat,
		TimeNow:       time.Now,
	}
}
