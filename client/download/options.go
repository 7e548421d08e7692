package download

import (
	"errors"
	"hash"
)

// Option defines optional settings for downloading files.
type Option func(*options) error

// ProgressFunc receives the bytes written by the last chunk, the running
// total and the expected total. expected is -1 when the length is unknown.
type ProgressFunc func(written, totalWritten, totalExpected int64)

type options struct {
	checksum     *checksumVerifier
	logProgress  bool
	progressFns  []ProgressFunc
	destination  string
	skipExisting bool
}

// WithChecksum enables checksum validation of the downloaded file.
// h is a hash.Hash instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum, optionally prefixed like "sha256:".
func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}

		if expected == "" {
			return errors.New("expected checksum must not be empty")
		}

		v, err := newChecksumVerifier(h, expected)
		if err != nil {
			return err
		}

		opts.checksum = v
		return nil
	}
}

// WithProgress enables periodic download progress logging via the
// logger supplied to Handle.
func WithProgress() Option {
	return func(opts *options) error {
		opts.logProgress = true
		return nil
	}
}

// WithProgressFunc calls fn after every chunk written to disk.
func WithProgressFunc(fn ProgressFunc) Option {
	return func(opts *options) error {
		if fn == nil {
			return errors.New("progress func must not be nil")
		}

		opts.progressFns = append(opts.progressFns, fn)
		return nil
	}
}

// WithDestination moves the finished file to path instead of leaving it
// at the generated location.
func WithDestination(path string) Option {
	return func(opts *options) error {
		if path == "" {
			return errors.New("destination must not be empty")
		}

		opts.destination = path
		return nil
	}
}

// WithSkipExisting causes Handle to return immediately when the
// destination file already exists. It requires WithDestination.
func WithSkipExisting() Option {
	return func(opts *options) error {
		opts.skipExisting = true
		return nil
	}
}
