package reachability

import (
	"errors"
	"log/slog"
	"time"
)

// Option configures a Monitor.
type Option func(*options) error

type options struct {
	interval time.Duration
	timeout  time.Duration
	dial     DialFunc
	logger   *slog.Logger
}

// WithInterval sets the time between probes.
func WithInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("interval must be positive")
		}
		o.interval = d
		return nil
	}
}

// WithProbeTimeout bounds a single probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("probe timeout must be positive")
		}
		o.timeout = d
		return nil
	}
}

// WithDialer replaces the TCP dialer used for probes.
func WithDialer(dial DialFunc) Option {
	return func(o *options) error {
		if dial == nil {
			return errors.New("dialer must not be nil")
		}
		o.dial = dial
		return nil
	}
}

// WithLogger sets the logger for status changes.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}
