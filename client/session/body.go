package session

import (
	"io"
	"sync/atomic"
)

// countingReader reports every read of a request body.
type countingReader struct {
	r        io.Reader
	total    int64
	expected int64
	onRead   func(n, total, expected int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.total += int64(n)
		c.onRead(int64(n), c.total, c.expected)
	}

	return n, err
}

func (c *countingReader) Close() error {
	if rc, ok := c.r.(io.Closer); ok {
		return rc.Close()
	}

	return nil
}

// sentMark is the highest total reported for one upload. Redirects rebuild
// the body from the start, and reads below the mark report nothing.
type sentMark struct {
	total atomic.Int64
}

// advance records total and returns the bytes it adds beyond the mark.
func (m *sentMark) advance(total int64) (int64, bool) {
	prev := m.total.Load()
	if total <= prev {
		return 0, false
	}
	m.total.Store(total)

	return total - prev, true
}
