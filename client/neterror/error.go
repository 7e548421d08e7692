// Package neterror defines the classification every httpstream operation
// resolves failures into.
package neterror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed network operation.
type Kind int

const (
	KindUnknown Kind = iota
	KindBadRequest
	KindServerError
	KindRedirected
	KindAPI
	KindBadURL
	KindNoInternet
	KindTrustFailed
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindServerError:
		return "server_error"
	case KindRedirected:
		return "redirected"
	case KindAPI:
		return "api_error"
	case KindBadURL:
		return "bad_url"
	case KindNoInternet:
		return "no_internet"
	case KindTrustFailed:
		return "trust_failed"
	default:
		return "unknown"
	}
}

// Sentinels for use with errors.Is. Matching compares Kind only.
var (
	ErrUnknown     = &Error{Kind: KindUnknown}
	ErrBadRequest  = &Error{Kind: KindBadRequest}
	ErrServerError = &Error{Kind: KindServerError}
	ErrRedirected  = &Error{Kind: KindRedirected}
	ErrAPI         = &Error{Kind: KindAPI}
	ErrBadURL      = &Error{Kind: KindBadURL}
	ErrNoInternet  = &Error{Kind: KindNoInternet}
	ErrTrustFailed = &Error{Kind: KindTrustFailed}
)

// Error is the single classified failure of an operation.
type Error struct {
	Kind Kind
	// Reason carries the transport or validation message. Always set for KindAPI.
	Reason string
	// StatusCode is the HTTP status that produced the error, 0 when no response exists.
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.message()
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}

	return msg
}

func (e *Error) message() string {
	switch e.Kind {
	case KindBadRequest:
		return "bad request, please check your request and try again"
	case KindServerError:
		return "the server has encountered a situation it does not know how to handle"
	case KindRedirected:
		return "the request had to be redirected"
	case KindAPI:
		return e.Reason
	case KindBadURL:
		if e.Reason != "" {
			return "malformed request url: " + e.Reason
		}
		return "malformed request url"
	case KindNoInternet:
		return "no internet, please check your connection and try again"
	case KindTrustFailed:
		if e.Reason != "" {
			return "server trust evaluation failed: " + e.Reason
		}
		return "server trust evaluation failed"
	default:
		return "an unknown error occurred while processing the request"
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}

// New returns an *Error of the given kind.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Classify maps a completed exchange onto the status table. A nil
// response yields KindUnknown, a 2xx status yields nil.
func Classify(resp *http.Response) *Error {
	if resp == nil {
		return &Error{Kind: KindUnknown}
	}

	return ClassifyStatus(resp.StatusCode)
}

// ClassifyStatus is the pure status-code form of Classify.
func ClassifyStatus(code int) *Error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 300 && code < 400:
		return &Error{Kind: KindRedirected, StatusCode: code}
	case code >= 400 && code < 500:
		return &Error{Kind: KindBadRequest, StatusCode: code}
	case code >= 500 && code < 600:
		return &Error{Kind: KindServerError, StatusCode: code}
	default:
		return &Error{Kind: KindUnknown, StatusCode: code}
	}
}

// TrustRejection is implemented by errors raised when a TLS peer was refused.
type TrustRejection interface {
	error
	TrustRejected() bool
}

// FromTransport classifies an error the transport returned instead of a
// response. An *Error passes through unchanged.
func FromTransport(err error) *Error {
	if err == nil {
		return nil
	}

	var ne *Error
	if errors.As(err, &ne) {
		return ne
	}

	var tr TrustRejection
	if errors.As(err, &tr) && tr.TrustRejected() {
		return &Error{Kind: KindTrustFailed, Reason: tr.Error(), Err: err}
	}

	return &Error{Kind: KindAPI, Reason: err.Error(), Err: err}
}
