package client

import (
	"hash"

	"github.com/adamwoolhether/httpstream/client/download"
	"github.com/adamwoolhether/httpstream/client/neterror"
	"github.com/adamwoolhether/httpstream/client/request"
	"github.com/adamwoolhether/httpstream/client/session"
	"github.com/adamwoolhether/httpstream/client/trust"
)

// -------------------------------------------------------------------------
// Type aliases: re-export user-facing types from the subpackages.
// -------------------------------------------------------------------------

type (
	// DownloadOption configures a single download.
	DownloadOption = download.Option

	// DownloadError wraps a download sentinel error with additional detail.
	DownloadError = download.Error

	// NetworkError is the error of every failed [Stream].
	NetworkError = neterror.Error

	// Endpoint describes one request relative to an [Environment].
	Endpoint = request.Endpoint

	// Environment is the deployment an [Endpoint] is resolved against.
	Environment = request.Environment

	// CertificatePinning pins the exact DER encoding of a certificate.
	CertificatePinning = trust.CertificatePinning

	// PublicKeyPinning pins the SubjectPublicKeyInfo of a certificate.
	PublicKeyPinning = trust.PublicKeyPinning
)

// -------------------------------------------------------------------------
// Sentinel errors
// -------------------------------------------------------------------------

var (
	ErrUnknown     = neterror.ErrUnknown
	ErrAPI         = neterror.ErrAPI
	ErrBadRequest  = neterror.ErrBadRequest
	ErrServerError = neterror.ErrServerError
	ErrRedirected  = neterror.ErrRedirected
	ErrBadURL      = neterror.ErrBadURL
	ErrNoInternet  = neterror.ErrNoInternet
	ErrTrustFailed = neterror.ErrTrustFailed

	// ErrInvalidated is wrapped by every operation started after
	// [Client.CancelAllTasks].
	ErrInvalidated = session.ErrInvalidated

	// ErrContentLengthMismatch indicates the byte count did not match Content-Length.
	ErrContentLengthMismatch = download.ErrContentLengthMismatch

	// ErrChecksumMismatch indicates the file checksum did not match the expected value.
	ErrChecksumMismatch = download.ErrChecksumMismatch

	// ErrDownloadCancelled indicates the download was cancelled via context.
	ErrDownloadCancelled = download.ErrDownloadCancelled
)

// -------------------------------------------------------------------------
// Download option forwarding functions
// -------------------------------------------------------------------------

// WithChecksum enables checksum validation of the downloaded file.
// h is a [hash.Hash] instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string.
func WithChecksum(h hash.Hash, expected string) DownloadOption {
	return download.WithChecksum(h, expected)
}

// WithProgress enables periodic download progress logging.
func WithProgress() DownloadOption { return download.WithProgress() }

// WithDestination moves the finished download to path instead of leaving
// it in the download directory.
func WithDestination(path string) DownloadOption { return download.WithDestination(path) }

// WithSkipExisting causes a download to resolve immediately when the
// destination file already exists.
func WithSkipExisting() DownloadOption { return download.WithSkipExisting() }
