// Package download streams HTTP response bodies to disk with optional
// checksum validation and progress reporting.
//
// [Handle] writes the body to a new file inside a directory and returns its
// location. With [WithDestination] the file is renamed into place on
// success; on any error the partial file is removed:
//
//	loc, err := download.Handle(ctx, resp.Body, resp.ContentLength, dir, logger,
//		download.WithChecksum(sha256.New(), expectedHex),
//		download.WithProgressFunc(func(written, total, expected int64) { ... }),
//	)
//
// Most callers should use [github.com/adamwoolhether/httpstream/client],
// which runs Handle for every download task and re-exports these options.
package download
