// Package reachability reports whether the network is usable. A [Checker]
// is injected wherever a request must fail fast without connectivity.
package reachability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Checker answers whether the internet is currently reachable.
type Checker interface {
	IsReachable() bool
}

// Static is a Checker with a fixed answer.
type Static bool

func (s Static) IsReachable() bool { return bool(s) }

// Func adapts a function to a Checker.
type Func func() bool

func (f Func) IsReachable() bool { return f() }

// Status is the connectivity state observed by a Monitor.
type Status int

const (
	StatusConnected Status = iota
	StatusDisconnected
)

func (s Status) String() string {
	if s == StatusConnected {
		return "connected"
	}
	return "disconnected"
}

var ErrAlreadyStarted = errors.New("monitor already started")

// DialFunc opens a probe connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Monitor probes an address on an interval and notifies observers when the
// status changes. It starts out connected.
type Monitor struct {
	address  string
	interval time.Duration
	timeout  time.Duration
	dial     DialFunc
	logger   *slog.Logger

	mu        sync.Mutex
	status    Status
	observers map[int]func(Status)
	nextID    int
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewMonitor returns a stopped Monitor probing address ("host:port").
func NewMonitor(address string, optFns ...Option) (*Monitor, error) {
	if address == "" {
		return nil, errors.New("address must not be empty")
	}

	opts := options{
		interval: 10 * time.Second,
		timeout:  3 * time.Second,
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, err
		}
	}

	if opts.dial == nil {
		var d net.Dialer
		opts.dial = d.DialContext
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}

	return &Monitor{
		address:   address,
		interval:  opts.interval,
		timeout:   opts.timeout,
		dial:      opts.dial,
		logger:    opts.logger,
		status:    StatusConnected,
		observers: make(map[int]func(Status)),
	}, nil
}

// IsReachable implements Checker.
func (m *Monitor) IsReachable() bool {
	return m.Status() == StatusConnected
}

// Status returns the last observed status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.status
}

// Subscribe registers fn for status changes. The returned func removes it.
func (m *Monitor) Subscribe(fn func(Status)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.observers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers, id)
	}
}

// Check probes once and records the result. A probe cut short by ctx ending
// records nothing and reports the last status.
func (m *Monitor) Check(ctx context.Context) Status {
	if ctx.Err() != nil {
		return m.Status()
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	status := StatusConnected
	conn, err := m.dial(dialCtx, "tcp", m.address)
	if err != nil {
		if ctx.Err() != nil {
			return m.Status()
		}
		m.logger.Debug("reachability probe failed", "address", m.address, "error", err)
		status = StatusDisconnected
	} else {
		conn.Close()
	}

	m.set(status)

	return status
}

// Start probes immediately and then on every interval until Stop or ctx ends.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			m.Check(ctx)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return nil
}

// Stop ends polling and waits for the probe loop to exit. The last status
// is kept.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) set(status Status) {
	m.mu.Lock()
	if m.status == status {
		m.mu.Unlock()
		return
	}
	m.status = status
	observers := make([]func(Status), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	m.mu.Unlock()

	m.logger.Info("reachability changed", "status", status)
	for _, fn := range observers {
		fn(status)
	}
}
