package session

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sync"

	"github.com/adamwoolhether/httpstream/client/download"
	"github.com/adamwoolhether/httpstream/client/neterror"
	"github.com/adamwoolhether/httpstream/client/trust"
)

// maxErrBodySize caps the amount of response body kept when the status
// classifies as an error.
const maxErrBodySize = 4 << 10 // 4KB

// ErrInvalidated is returned by every operation on an invalidated session.
var ErrInvalidated = errors.New("session invalidated")

// Config configures a Session.
type Config struct {
	// Client performs every exchange. Nil uses a client over a clone of
	// http.DefaultTransport.
	Client *http.Client
	// Transport receives the handshake hook. Nil uses Client.Transport when
	// that is an *http.Transport. Without either, handshakes fall back to
	// net/http's own verification and the delegate sees no challenges.
	Transport *http.Transport
	Delegate  Delegate
	Logger    *slog.Logger
	// DownloadDir holds finished downloads. Empty uses os.TempDir.
	DownloadDir string
	// MaxConcurrent bounds running tasks, <= 0 is unlimited.
	MaxConcurrent int
}

// Session owns the transport and every task started on it.
type Session struct {
	client   *http.Client
	delegate Delegate
	logger   *slog.Logger
	dir      string
	queue    *queue

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	nextID      int64
	tasks       []*Task
	invalidated bool
}

// New returns a session ready to start tasks.
func New(cfg Config) (*Session, error) {
	if cfg.Delegate == nil {
		return nil, errors.New("delegate must not be nil")
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		client:   hc,
		delegate: cfg.Delegate,
		logger:   logger,
		dir:      cfg.DownloadDir,
		queue:    newQueue(cfg.MaxConcurrent),
		ctx:      ctx,
		cancel:   cancel,
	}

	tr := cfg.Transport
	if tr == nil {
		if t, ok := hc.Transport.(*http.Transport); ok {
			tr = t
		}
	}
	if tr != nil {
		s.installTrustHook(tr)
	}

	return s, nil
}

// installTrustHook turns every finished handshake on t into a challenge for
// the delegate. A rejected challenge aborts the connection.
//
// Unless t already has a TLS dialer, handshakes run in a dialer that knows
// the dialed host, so IP literal peers are still checked against their IP
// SANs.
func (s *Session) installTrustHook(t *http.Transport) {
	if t.TLSClientConfig == nil {
		t.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cfg := t.TLSClientConfig
	roots := cfg.RootCAs
	prev := cfg.VerifyConnection

	cfg.VerifyConnection = s.verifyConnection(cfg, "", roots, prev)

	if t.DialTLSContext != nil || t.DialTLS != nil {
		return
	}

	dial := t.DialContext
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}
	timeout := t.TLSHandshakeTimeout

	t.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		connCfg := cfg.Clone()
		if connCfg.ServerName == "" {
			connCfg.ServerName = host
		}
		connCfg.VerifyConnection = s.verifyConnection(connCfg, connCfg.ServerName, roots, prev)

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		tlsConn := tls.Client(conn, connCfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}

		return tlsConn, nil
	}
}

// verifyConnection hands the handshake to the delegate. host is the name
// the peer must be valid for; empty falls back to the SNI name.
func (s *Session) verifyConnection(cfg *tls.Config, host string, roots *x509.CertPool, prev func(tls.ConnectionState) error) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if prev != nil {
			if err := prev(cs); err != nil {
				return err
			}
		}

		// Without platform verification the hostname check is ours alone.
		if host == "" && cs.ServerName == "" && cfg.InsecureSkipVerify {
			return &trust.RejectedError{Reason: "no server name to verify"}
		}

		ch := trust.ChallengeFromState(cs, host, roots)
		d := s.delegate.HandleChallenge(s.ctx, ch)
		if !d.Accepted() {
			return &trust.RejectedError{Host: ch.Host, Reason: d.Reason}
		}

		return nil
	}
}

// DataTask fetches req and completes with the response body.
func (s *Session) DataTask(req *http.Request, fn CompletionFunc) (*Task, error) {
	return s.start(req, "data", fn, func(ctx context.Context, _ *Task) Completion {
		return s.exchange(req.WithContext(ctx))
	})
}

// UploadTask sends body as the request body, reporting every chunk sent.
func (s *Session) UploadTask(req *http.Request, body []byte, fn CompletionFunc) (*Task, error) {
	return s.start(req, "upload", fn, func(ctx context.Context, t *Task) Completion {
		r := req.WithContext(ctx)
		r.ContentLength = int64(len(body))

		if len(body) == 0 {
			r.Body = http.NoBody
			r.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
			return s.exchange(r)
		}

		var mark sentMark
		r.Body = s.uploadBody(t, &mark, bytes.NewReader(body), r.ContentLength)
		r.GetBody = func() (io.ReadCloser, error) {
			return s.uploadBody(t, &mark, bytes.NewReader(body), r.ContentLength), nil
		}

		return s.exchange(r)
	})
}

// UploadFileTask streams the file at path as the request body.
func (s *Session) UploadFileTask(req *http.Request, path string, fn CompletionFunc) (*Task, error) {
	return s.start(req, "upload-file", fn, func(ctx context.Context, t *Task) Completion {
		f, size, err := openUpload(path)
		if err != nil {
			return Completion{Err: neterror.FromTransport(err)}
		}

		r := req.WithContext(ctx)
		var mark sentMark
		r.ContentLength = size
		r.Body = s.uploadBody(t, &mark, f, size)
		r.GetBody = func() (io.ReadCloser, error) {
			f, size, err := openUpload(path)
			if err != nil {
				return nil, err
			}
			return s.uploadBody(t, &mark, f, size), nil
		}

		return s.exchange(r)
	})
}

// DownloadTask streams the response of req to a file and completes with its
// location.
func (s *Session) DownloadTask(req *http.Request, fn CompletionFunc, opts ...download.Option) (*Task, error) {
	return s.start(req, "download", fn, func(ctx context.Context, t *Task) Completion {
		resp, err := s.client.Do(req.WithContext(ctx))
		if err != nil {
			return Completion{Err: neterror.FromTransport(err)}
		}
		defer s.closeBody(resp)

		if ne := neterror.Classify(resp); ne != nil {
			return Completion{Response: resp, Body: s.errorBody(resp), Err: ne}
		}

		report := download.WithProgressFunc(func(written, totalWritten, totalExpected int64) {
			s.delegate.DidWriteData(t, written, totalWritten, totalExpected)
		})

		loc, err := download.Handle(ctx, resp.Body, resp.ContentLength, s.dir, s.logger, append(slices.Clone(opts), report)...)
		if err != nil {
			return Completion{Response: resp, Err: neterror.FromTransport(fmt.Errorf("download: %w", err))}
		}

		s.delegate.DidFinishDownloading(t, loc)

		return Completion{Response: resp, Location: loc}
	})
}

// DownloadURLTask downloads u with a plain GET.
func (s *Session) DownloadURLTask(u *url.URL, fn CompletionFunc, opts ...download.Option) (*Task, error) {
	if u == nil {
		return nil, neterror.New(neterror.KindBadURL, "url must not be nil")
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &neterror.Error{Kind: neterror.KindBadURL, Reason: err.Error(), Err: err}
	}

	return s.DownloadTask(req, fn, opts...)
}

// Tasks returns the unfinished tasks in creation order.
func (s *Session) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.tasks)
}

// CancelTaskWithURL cancels the first running task, in creation order,
// whose original URL equals u. It reports whether a task was cancelled.
func (s *Session) CancelTaskWithURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	target := u.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.State() == Running && t.url.String() == target {
			t.Cancel()
			s.logger.Info("task cancelled by url", "task", t.id)
			return true
		}
	}

	return false
}

// InvalidateAndCancel cancels every task and closes idle connections. Every
// later operation fails with ErrInvalidated.
func (s *Session) InvalidateAndCancel() {
	s.mu.Lock()
	if s.invalidated {
		s.mu.Unlock()
		return
	}
	s.invalidated = true
	tasks := slices.Clone(s.tasks)
	s.mu.Unlock()

	s.queue.stop()
	for _, t := range tasks {
		t.Cancel()
	}
	s.cancel()
	s.client.CloseIdleConnections()

	s.logger.Info("session invalidated", "cancelled", len(tasks))
}

// Invalidated reports whether InvalidateAndCancel was called.
func (s *Session) Invalidated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.invalidated
}

// Wait blocks until every started task has completed.
func (s *Session) Wait() {
	s.queue.wait()
}

// start registers a task and queues run. Completion is delivered exactly
// once, before the task's Done channel closes.
func (s *Session) start(req *http.Request, kind string, fn CompletionFunc, run func(context.Context, *Task) Completion) (*Task, error) {
	if req == nil {
		return nil, neterror.New(neterror.KindBadURL, "request must not be nil")
	}
	if fn == nil {
		fn = func(Completion) {}
	}

	s.mu.Lock()
	if s.invalidated {
		s.mu.Unlock()
		return nil, ErrInvalidated
	}

	s.nextID++
	ctx, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(s.ctx, cancel)

	t := &Task{
		id:  s.nextID,
		url: req.URL,
		cancel: func() {
			stop()
			cancel()
		},
		done: make(chan struct{}),
	}
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()

	logger := s.logger.With("task", t.id, "kind", kind)
	logger.Debug("task started", "url", req.URL.Redacted())

	finish := func(c Completion) {
		c.Task = t
		t.complete()
		s.remove(t)

		if c.Err != nil {
			logger.Debug("task failed", "error", c.Err)
		} else {
			logger.Debug("task completed")
		}

		fn(c)
		close(t.done)
	}

	s.queue.start(ctx,
		func(ctx context.Context) { finish(run(ctx, t)) },
		func(err error) { finish(Completion{Err: neterror.FromTransport(err)}) },
	)

	return t, nil
}

func (s *Session) remove(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.Index(s.tasks, t); i >= 0 {
		s.tasks = slices.Delete(s.tasks, i, i+1)
	}
}

// exchange runs a request whose body, if any, is already attached.
func (s *Session) exchange(req *http.Request) Completion {
	resp, err := s.client.Do(req)
	if err != nil {
		return Completion{Err: neterror.FromTransport(err)}
	}
	defer s.closeBody(resp)

	if ne := neterror.Classify(resp); ne != nil {
		return Completion{Response: resp, Body: s.errorBody(resp), Err: ne}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{Response: resp, Err: neterror.FromTransport(fmt.Errorf("reading body: %w", err))}
	}

	return Completion{Response: resp, Body: body}
}

// uploadBody wraps r so reads beyond mark reach the delegate.
func (s *Session) uploadBody(t *Task, mark *sentMark, r io.Reader, size int64) io.ReadCloser {
	return &countingReader{
		r:        r,
		expected: size,
		onRead: func(_, total, expected int64) {
			if sent, ok := mark.advance(total); ok {
				s.delegate.DidSendBodyData(t, sent, total, expected)
			}
		},
	}
}

func (s *Session) errorBody(resp *http.Response) []byte {
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
	if err != nil {
		return []byte("unable to read body")
	}

	return b
}

func (s *Session) closeBody(resp *http.Response) {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		s.logger.Debug("failed to discard unused body", "error", err)
	}
	if err := resp.Body.Close(); err != nil {
		s.logger.Error("failed to close response body", "error", err)
	}
}

func openUpload(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening upload file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat upload file: %w", err)
	}

	return f, info.Size(), nil
}
