// Package netlog logs requests and URLs through log/slog with a privacy
// level applied to every URL.
package netlog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/multiformats/go-multihash"
)

// Privacy controls how URLs appear in log records.
type Privacy int

const (
	// Open logs URLs verbatim, minus any password.
	Open Privacy = iota
	// Encapsulate replaces URLs with a placeholder.
	Encapsulate
	// Encrypt replaces URLs with a stable digest so records stay correlatable.
	Encrypt
)

func (p Privacy) String() string {
	switch p {
	case Open:
		return "open"
	case Encapsulate:
		return "encapsulate"
	case Encrypt:
		return "encrypt"
	default:
		return "unknown"
	}
}

// UnmarshalText parses the lowercase level names produced by String.
func (p *Privacy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "open", "":
		*p = Open
	case "encapsulate":
		*p = Encapsulate
	case "encrypt":
		*p = Encrypt
	default:
		return fmt.Errorf("unknown privacy level %q", text)
	}

	return nil
}

// Category groups log records by subsystem.
type Category string

const (
	CategoryNetwork  Category = "network"
	CategoryDatabase Category = "database"
)

// Logger writes request diagnostics.
type Logger struct {
	log     *slog.Logger
	privacy Privacy
}

// New returns a Logger tagging every record with category. A nil logger
// falls back to slog.Default.
func New(logger *slog.Logger, privacy Privacy, category Category) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if category == "" {
		category = CategoryNetwork
	}

	return &Logger{
		log:     logger.With("category", string(category)),
		privacy: privacy,
	}
}

// Slog returns the underlying logger, category attached.
func (l *Logger) Slog() *slog.Logger {
	return l.log
}

// URL wraps u so it is rendered under the logger's privacy level.
func (l *Logger) URL(u *url.URL) slog.LogValuer {
	return privateURL{u: u, privacy: l.privacy}
}

// LogRequest records a failed request.
func (l *Logger) LogRequest(ctx context.Context, req *http.Request, err error, args ...any) {
	if req == nil {
		l.LogMessage(ctx, slog.LevelError, "request failed", append(args, "error", err)...)
		return
	}

	attrs := append([]any{"method", req.Method, "url", l.URL(req.URL), "error", err}, args...)
	l.log.ErrorContext(ctx, "request failed", attrs...)
}

// LogURL records a failure for an operation that only has a URL.
func (l *Logger) LogURL(ctx context.Context, u *url.URL, err error, args ...any) {
	attrs := append([]any{"url", l.URL(u), "error", err}, args...)
	l.log.ErrorContext(ctx, "url operation failed", attrs...)
}

// LogMessage records a free-form message at level.
func (l *Logger) LogMessage(ctx context.Context, level slog.Level, msg string, args ...any) {
	l.log.Log(ctx, level, msg, args...)
}

type privateURL struct {
	u       *url.URL
	privacy Privacy
}

func (p privateURL) LogValue() slog.Value {
	if p.u == nil {
		return slog.StringValue("<nil>")
	}

	switch p.privacy {
	case Open:
		return slog.StringValue(p.u.Redacted())
	case Encrypt:
		return slog.StringValue(digest(p.u.String()))
	default:
		return slog.StringValue("<private>")
	}
}

// digest renders a short base58 multihash of s.
func digest(s string) string {
	mh, err := multihash.Sum([]byte(s), multihash.SHA2_256, -1)
	if err != nil {
		return "<private>"
	}

	b58 := mh.B58String()
	if len(b58) > 16 {
		b58 = b58[:16]
	}

	return "<hash:" + b58 + ">"
}
