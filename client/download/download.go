package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// tempPattern names in-progress and undelivered downloads.
const tempPattern = "httpstream-*.download"

// Handle streams body to a new file in dir and returns its location. With
// WithDestination the file is created next to the destination instead and
// renamed on success. On any error the file is removed.
func Handle(ctx context.Context, body io.Reader, contentLength int64, dir string, logger *slog.Logger, optFns ...Option) (string, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return "", fmt.Errorf("applying option: %w", err)
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	if opts.skipExisting {
		if opts.destination == "" {
			return "", errors.New("skip existing requires a destination")
		}
		if _, err := os.Stat(opts.destination); err == nil {
			logger.Info("skipping existing file", "path", opts.destination)
			return opts.destination, nil
		}
	}

	if opts.destination != "" {
		dir = filepath.Dir(opts.destination)
	}
	if dir == "" {
		dir = os.TempDir()
	}

	body = &contextReader{ctx: ctx, r: body}

	file, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	var successful bool
	defer func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Error("defer closing temp file", "error", err)
		}
		if !successful {
			if err := os.Remove(file.Name()); err != nil {
				logger.Error("failed to remove temp file", "error", err)
			}
		}
	}()

	var writer io.Writer = file
	if opts.checksum != nil {
		writer = io.MultiWriter(writer, opts.checksum)
	}

	if opts.logProgress || len(opts.progressFns) > 0 {
		pw := &progressWriter{
			w:         writer,
			report:    opts.progressFns,
			total:     contentLength,
			startTime: time.Now(),
		}
		if opts.logProgress {
			pw.logger = logger
		}
		writer = pw
	}

	n, err := io.Copy(writer, body)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("%w: %w", ErrDownloadCancelled, err)
		}

		return "", fmt.Errorf("copying file body: %w", err)
	}

	if contentLength >= 0 && n != contentLength {
		return "", &Error{
			Err:    ErrContentLengthMismatch,
			Detail: fmt.Sprintf("expected %d bytes, got %d", contentLength, n),
		}
	}

	if err := opts.checksum.Verify(); err != nil {
		return "", err
	}

	if err := file.Sync(); err != nil {
		return "", fmt.Errorf("syncing temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}

	location := file.Name()
	if opts.destination != "" {
		if err := os.Rename(file.Name(), opts.destination); err != nil {
			return "", fmt.Errorf("renaming temp file: %w", err)
		}
		location = opts.destination
	}

	successful = true

	return location, nil
}
