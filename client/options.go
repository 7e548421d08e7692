package client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/httpstream/client/netlog"
	"github.com/adamwoolhether/httpstream/client/reachability"
	"github.com/adamwoolhether/httpstream/client/session"
	"github.com/adamwoolhether/httpstream/client/throttle"
	"github.com/adamwoolhether/httpstream/client/trust"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	client            *http.Client
	rt                http.RoundTripper
	timeout           *time.Duration
	userAgent         string
	throttle          *throttle.Config
	noFollowRedirects bool
	logger            *slog.Logger
	privacy           netlog.Privacy
	tlsConfig         *tls.Config
	pinning           trust.Policy
	checker           reachability.Checker
	tracer            trace.Tracer
	downloadDir       string
	maxConcurrent     int
	wrapDelegate      func(session.Delegate) session.Delegate
}

// WithClient replaces the default [http.Client] used by the [Client].
// The client is copied, the original is never modified.
func WithClient(hc *http.Client) Option {
	return func(c *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// WithTransport sets a custom [http.RoundTripper] as the base transport.
// Pinning and [WithTLSConfig] require it to be an *http.Transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		c.rt = rt
		return nil
	}
}

// WithTimeout sets the overall request timeout on the underlying [http.Client].
func WithTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = &d
		return nil
	}
}

// WithUserAgent adds a persistent User-Agent header to all outgoing requests.
func WithUserAgent(header string) Option {
	return func(c *options) error {
		c.userAgent = header
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting with the given requests per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(c *options) error {
		cfg := throttle.Config{RPS: rps, Burst: burst}
		if err := cfg.Validate(); err != nil {
			return err
		}
		c.throttle = &cfg
		return nil
	}
}

// WithNoFollowRedirects prevents the [Client] from following HTTP redirects,
// so 3xx responses classify as redirected.
func WithNoFollowRedirects() Option {
	return func(c *options) error {
		c.noFollowRedirects = true
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		c.logger = logger
		return nil
	}
}

// WithPrivacy sets how URLs appear in failure logs. The default is
// [netlog.Open].
func WithPrivacy(p netlog.Privacy) Option {
	return func(c *options) error {
		if p < netlog.Open || p > netlog.Encrypt {
			return fmt.Errorf("unknown privacy level %d", p)
		}
		c.privacy = p
		return nil
	}
}

// WithTLSConfig sets the TLS configuration of the base transport. RootCAs
// also serve as the roots for pinned trust evaluation.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *options) error {
		if cfg == nil {
			return errors.New("tls config must not be nil")
		}
		c.tlsConfig = cfg
		return nil
	}
}

// WithPinning enables certificate or public key pinning. Every handshake
// is then evaluated by the client's trust validator.
func WithPinning(p trust.Policy) Option {
	return func(c *options) error {
		if p == nil {
			return errors.New("pinning policy must not be nil")
		}
		c.pinning = p
		return nil
	}
}

// WithReachability injects the connectivity checker consulted by
// [Client.IsInternetReachable] and [Client.Endpoint].
func WithReachability(checker reachability.Checker) Option {
	return func(c *options) error {
		if checker == nil {
			return errors.New("reachability checker must not be nil")
		}
		c.checker = checker
		return nil
	}
}

// WithTracer sets the tracer that records one span per operation.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		c.tracer = tracer
		return nil
	}
}

// WithDownloadDir sets where finished downloads are written.
func WithDownloadDir(dir string) Option {
	return func(c *options) error {
		if dir == "" {
			return errors.New("download dir must not be empty")
		}
		c.downloadDir = dir
		return nil
	}
}

// WithMaxConcurrentTasks bounds the number of tasks running at once.
func WithMaxConcurrentTasks(n int) Option {
	return func(c *options) error {
		if n <= 0 {
			return fmt.Errorf("max concurrent tasks[%d] %w", n, throttle.ErrMustNotBeZero)
		}
		c.maxConcurrent = n
		return nil
	}
}

// WithDelegate decorates the default session delegate. wrap receives the
// delegate that feeds trust evaluation and progress, and should forward to
// it for behavior it does not replace.
func WithDelegate(wrap func(session.Delegate) session.Delegate) Option {
	return func(c *options) error {
		if wrap == nil {
			return errors.New("delegate wrapper must not be nil")
		}
		c.wrapDelegate = wrap
		return nil
	}
}

// userAgent is an http.RoundTripper, enabling the persistent User-Agent header.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}
