package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/net/http2"

	"github.com/adamwoolhether/httpstream/client/neterror"
	"github.com/adamwoolhether/httpstream/client/netlog"
	"github.com/adamwoolhether/httpstream/client/progress"
	"github.com/adamwoolhether/httpstream/client/reachability"
	"github.com/adamwoolhether/httpstream/client/request"
	"github.com/adamwoolhether/httpstream/client/session"
	"github.com/adamwoolhether/httpstream/client/throttle"
	"github.com/adamwoolhether/httpstream/client/trust"
)

// ErrPinningTransport is returned by Build when pinning or a TLS config is
// requested over a transport that is not an *http.Transport.
var ErrPinningTransport = errors.New("tls options require an *http.Transport base transport")

// Client issues requests, uploads and downloads as [Stream] values. It owns
// its session: once [Client.CancelAllTasks] is called every later
// operation fails.
type Client struct {
	hc        *http.Client
	session   *session.Session
	mux       *progress.Multiplexer
	builder   *request.Builder
	checker   reachability.Checker
	validator *trust.Validator
	log       *netlog.Logger
	tracer    trace.Tracer
}

func Build(optFns ...Option) (*Client, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	logger := slog.Default()
	if opts.logger != nil {
		logger = opts.logger
	}

	validator, err := trust.NewValidator(opts.pinning, logger)
	if err != nil {
		return nil, fmt.Errorf("configuring pinning: %w", err)
	}

	hc := &http.Client{}
	if opts.client != nil {
		cpy := *opts.client
		hc = &cpy
	}

	if opts.timeout != nil {
		hc.Timeout = *opts.timeout
	}

	if opts.noFollowRedirects {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case hc.Transport != nil:
		transport = hc.Transport
	}

	// base is the transport whose handshakes the session evaluates.
	var base *http.Transport
	switch t := transport.(type) {
	case nil:
		base, err = newTransport()
		if err != nil {
			return nil, err
		}
		transport = base
	case *http.Transport:
		base = t.Clone()
		transport = base
	}

	if opts.tlsConfig != nil || validator.Pinned() {
		if base == nil {
			return nil, ErrPinningTransport
		}
		if opts.tlsConfig != nil {
			cfg := opts.tlsConfig.Clone()
			if len(cfg.NextProtos) == 0 && base.TLSClientConfig != nil {
				cfg.NextProtos = base.TLSClientConfig.NextProtos
			}
			base.TLSClientConfig = cfg
		}
		if validator.Pinned() {
			if base.TLSClientConfig == nil {
				base.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
			// The validator runs the full chain evaluation in the handshake hook.
			base.TLSClientConfig.InsecureSkipVerify = true
		}
	}

	if opts.userAgent != "" {
		transport = userAgent{value: opts.userAgent, base: transport}
	}

	nl := netlog.New(logger, opts.privacy, netlog.CategoryNetwork)

	if opts.throttle != nil {
		rt, err := throttle.NewRoundTripper(*opts.throttle, nl.Slog, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}
	hc.Transport = transport

	mux := progress.New(0)

	var delegate session.Delegate = session.NewDelegate(validator, mux)
	if opts.wrapDelegate != nil {
		delegate = opts.wrapDelegate(delegate)
		if delegate == nil {
			return nil, errors.New("delegate wrapper returned nil")
		}
	}

	sess, err := session.New(session.Config{
		Client:        hc,
		Transport:     base,
		Delegate:      delegate,
		Logger:        nl.Slog(),
		DownloadDir:   opts.downloadDir,
		MaxConcurrent: opts.maxConcurrent,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	checker := opts.checker
	if checker == nil {
		checker = reachability.Static(true)
	}

	tracer := opts.tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("github.com/adamwoolhether/httpstream")
	}

	return &Client{
		hc:        hc,
		session:   sess,
		mux:       mux,
		builder:   request.NewBuilder(checker),
		checker:   checker,
		validator: validator,
		log:       nl,
		tracer:    tracer,
	}, nil
}

// newTransport clones http.DefaultTransport and configures HTTP/2 on it
// through x/net so idle connections are health checked.
func newTransport() (*http.Transport, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()

	h2, err := http2.ConfigureTransports(t)
	if err != nil {
		return nil, fmt.Errorf("configuring http2: %w", err)
	}
	h2.ReadIdleTimeout = 30 * time.Second
	h2.PingTimeout = 15 * time.Second

	return t, nil
}

// Request fetches req and resolves with the response body. No progress
// events are emitted.
func (c *Client) Request(req *http.Request) *Stream[[]byte] {
	req, op := c.begin("request", req)

	return launch(c, op, false, func(fn session.CompletionFunc) (*session.Task, error) {
		return c.session.DataTask(req, fn)
	}, responseBody)
}

// UploadFile sends the file at path as the body of req.
func (c *Client) UploadFile(req *http.Request, path string) *Stream[[]byte] {
	req, op := c.begin("upload_file", req)

	return launch(c, op, true, func(fn session.CompletionFunc) (*session.Task, error) {
		return c.session.UploadFileTask(req, path, fn)
	}, responseBody)
}

// UploadBytes sends data as the body of req.
func (c *Client) UploadBytes(req *http.Request, data []byte) *Stream[[]byte] {
	req, op := c.begin("upload", req)

	return launch(c, op, true, func(fn session.CompletionFunc) (*session.Task, error) {
		return c.session.UploadTask(req, data, fn)
	}, responseBody)
}

// Download streams the response of req to disk and resolves with the file
// location.
func (c *Client) Download(req *http.Request, opts ...DownloadOption) *Stream[string] {
	req, op := c.begin("download", req)

	return launch(c, op, true, func(fn session.CompletionFunc) (*session.Task, error) {
		return c.session.DownloadTask(req, fn, opts...)
	}, fileLocation)
}

// DownloadURL downloads u with a plain GET.
func (c *Client) DownloadURL(u *url.URL, opts ...DownloadOption) *Stream[string] {
	op := c.beginURL("download_url", u)

	return launch(c, op, true, func(fn session.CompletionFunc) (*session.Task, error) {
		return c.session.DownloadURLTask(u, fn, opts...)
	}, fileLocation)
}

// Endpoint builds a request for ep, failing fast when the client's
// reachability checker reports no connectivity or the URL is malformed.
func (c *Client) Endpoint(ctx context.Context, ep Endpoint) (*http.Request, error) {
	req, err := c.builder.Build(ctx, ep)
	if err != nil {
		c.log.LogMessage(ctx, slog.LevelError, "building request failed",
			"path", ep.Path,
			"method", string(ep.Method),
			"error", err,
		)
		return nil, err
	}

	return req, nil
}

// CancelAllTasks invalidates the session: outstanding operations fail and
// every later operation fails with [ErrInvalidated].
func (c *Client) CancelAllTasks() {
	c.session.InvalidateAndCancel()
	c.mux.Close()
}

// CancelTaskWithURL cancels the first running task, in creation order,
// whose original URL equals u. It is a no-op when none matches.
func (c *Client) CancelTaskWithURL(u *url.URL) bool {
	return c.session.CancelTaskWithURL(u)
}

// IsInternetReachable reports the injected checker's answer.
func (c *Client) IsInternetReachable() bool {
	return c.checker.IsReachable()
}

// Pinned reports whether a pinning policy is in effect.
func (c *Client) Pinned() bool {
	return c.validator.Pinned()
}

// InternalClient returns the configured *http.Client for exchanges that
// need no task tracking.
func (c *Client) InternalClient() *http.Client {
	return c.hc
}

// Progress subscribes to every task's progress. Callers must filter by
// task id, see [progress.Filter], and close the subscription.
func (c *Client) Progress() *progress.Subscription {
	return c.mux.Subscribe()
}

// =============================================================================

// operation carries the span and log context of one facade call.
type operation struct {
	name  string
	id    string
	req   *http.Request
	url   *url.URL
	ctx   context.Context
	span  trace.Span
	start time.Time
	c     *Client
}

func (c *Client) begin(name string, req *http.Request) (*http.Request, *operation) {
	ctx := context.Background()
	var u *url.URL
	if req != nil {
		ctx, u = req.Context(), req.URL
	}

	op := c.newOperation(ctx, name, u)
	if req != nil {
		req = req.WithContext(op.ctx)
		op.req = req
		op.span.SetAttributes(attribute.String("http.request.method", req.Method))
	}

	return req, op
}

func (c *Client) beginURL(name string, u *url.URL) *operation {
	op := c.newOperation(context.Background(), name, u)
	op.span.SetAttributes(attribute.String("http.request.method", http.MethodGet))

	return op
}

func (c *Client) newOperation(ctx context.Context, name string, u *url.URL) *operation {
	id := uuid.NewString()

	attrs := []attribute.KeyValue{
		attribute.String("httpstream.operation", name),
		attribute.String("httpstream.operation_id", id),
	}
	if u != nil {
		attrs = append(attrs, attribute.String("server.address", u.Hostname()))
	}

	ctx, span := c.tracer.Start(ctx, "httpstream."+name, trace.WithAttributes(attrs...))

	return &operation{
		name:  name,
		id:    id,
		url:   u,
		ctx:   ctx,
		span:  span,
		start: time.Now(),
		c:     c,
	}
}

// end logs a failure and closes the span.
func (op *operation) end(err error) {
	defer op.span.End()

	elapsed := time.Since(op.start).Round(time.Millisecond)

	if err == nil {
		op.span.SetStatus(codes.Ok, "")
		op.c.log.LogMessage(op.ctx, slog.LevelDebug, "operation completed", "operation", op.name, "op_id", op.id, "elapsed", elapsed)
		return
	}

	var ne *neterror.Error
	if errors.As(err, &ne) {
		op.span.SetAttributes(attribute.String("httpstream.error_kind", ne.Kind.String()))
		if ne.StatusCode > 0 {
			op.span.SetAttributes(attribute.Int("http.response.status_code", ne.StatusCode))
		}
	}
	op.span.RecordError(err)
	op.span.SetStatus(codes.Error, err.Error())

	if op.req != nil {
		op.c.log.LogRequest(op.ctx, op.req, err, "operation", op.name, "op_id", op.id, "elapsed", elapsed)
		return
	}
	op.c.log.LogURL(op.ctx, op.url, err, "operation", op.name, "op_id", op.id, "elapsed", elapsed)
}

type startFunc func(session.CompletionFunc) (*session.Task, error)

// launch starts a task and wires its completion, and optionally its
// progress, into a new Stream. The subscription is taken before the task
// starts so no progress is missed.
func launch[T any](c *Client, op *operation, track bool, start startFunc, payload func(session.Completion) T) *Stream[T] {
	s := newStream[T](op.end)

	var sub *progress.Subscription
	if track {
		sub = c.mux.Subscribe()
	}

	completion := make(chan outcome[T], 1)
	task, err := start(func(comp session.Completion) {
		var out outcome[T]
		if comp.Err != nil {
			out.err = comp.Err
		} else {
			out.payload = payload(comp)
		}
		completion <- out
	})
	if err != nil {
		if sub != nil {
			sub.Close()
		}
		failed := make(chan outcome[T], 1)
		failed <- outcome[T]{err: neterror.FromTransport(err)}
		s.run(nil, 0, failed)
		return s
	}

	s.taskID = task.ID()
	op.span.SetAttributes(attribute.Int64("httpstream.task_id", task.ID()))

	go s.run(sub, task.ID(), completion)

	return s
}

func responseBody(c session.Completion) []byte { return c.Body }
func fileLocation(c session.Completion) string { return c.Location }
