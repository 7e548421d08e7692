// Package progress fans in per-task progress updates from every running
// transfer into one current-value broadcast.
//
// The multiplexer does not isolate tasks: every subscriber sees every task's
// events and is expected to keep only its own, see [Filter].
package progress

import (
	"sync"
)

// DefaultBuffer is the per-subscriber queue depth.
const DefaultBuffer = 64

// Event is a single progress update for one task.
type Event struct {
	TaskID   int64
	Fraction float64
}

// Multiplexer is a current-value broadcast of progress events. It is safe
// for concurrent use by publishers and subscribers.
type Multiplexer struct {
	mu      sync.Mutex
	current Event
	has     bool
	subs    map[*Subscription]struct{}
	buffer  int
	closed  bool
}

// New returns a Multiplexer whose subscribers each buffer up to buffer
// events. A buffer <= 0 uses DefaultBuffer.
func New(buffer int) *Multiplexer {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	return &Multiplexer{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Publish records the new current value and hands it to every subscriber.
// It never blocks: a subscriber whose queue is full loses its oldest event.
func (m *Multiplexer) Publish(taskID int64, fraction float64) {
	ev := Event{TaskID: taskID, Fraction: fraction}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.current = ev
	m.has = true

	for s := range m.subs {
		s.offer(ev)
	}
}

// Current returns the last published event, if any.
func (m *Multiplexer) Current() (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current, m.has
}

// Subscribe registers a new subscriber. The current value, if one exists,
// is the first event it receives. On a closed multiplexer the returned
// subscription's channel is already closed.
func (m *Multiplexer) Subscribe() *Subscription {
	s := &Subscription{
		ch:  make(chan Event, m.buffer),
		mux: m,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		close(s.ch)
		s.closed = true
		return s
	}

	if m.has {
		s.offer(m.current)
	}
	m.subs[s] = struct{}{}

	return s
}

// Close ends every subscription. Later publishes are dropped.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true

	for s := range m.subs {
		s.close()
	}
	clear(m.subs)
}

// Len returns the number of live subscriptions.
func (m *Multiplexer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.subs)
}

// Subscription is one subscriber's view of the broadcast.
type Subscription struct {
	ch     chan Event
	mux    *Multiplexer
	closed bool // guarded by mux.mu
}

// Events returns the receive side. It is closed by Close on either the
// subscription or the multiplexer.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.mux.mu.Lock()
	defer s.mux.mu.Unlock()

	delete(s.mux.subs, s)
	s.close()
}

// offer must be called with mux.mu held.
func (s *Subscription) offer(ev Event) {
	if s.closed {
		return
	}

	for {
		select {
		case s.ch <- ev:
			return
		default:
		}

		select {
		case <-s.ch:
		default:
		}
	}
}

// close must be called with mux.mu held.
func (s *Subscription) close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Filter keeps only the fractions of taskID. The returned channel is closed
// after in is closed.
func Filter(in <-chan Event, taskID int64) <-chan float64 {
	out := make(chan float64)

	go func() {
		defer close(out)
		for ev := range in {
			if ev.TaskID == taskID {
				out <- ev.Fraction
			}
		}
	}()

	return out
}
