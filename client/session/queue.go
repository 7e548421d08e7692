package session

import (
	"context"
	"sync"
	"sync/atomic"
)

// queue runs task bodies on their own goroutines, at most max at a time.
type queue struct {
	wg       sync.WaitGroup
	sem      chan struct{}
	shutdown atomic.Bool
}

// newQueue creates a queue with the given concurrency limit.
// If maxConcurrent <= 0, concurrency is unlimited.
func newQueue(maxConcurrent int) *queue {
	q := &queue{}
	if maxConcurrent > 0 {
		q.sem = make(chan struct{}, maxConcurrent)
	}
	return q
}

// start launches run once a slot is free. If ctx ends first, or the queue
// was shut down, abort receives the reason instead.
func (q *queue) start(ctx context.Context, run func(ctx context.Context), abort func(error)) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		if q.sem != nil {
			select {
			case q.sem <- struct{}{}:
				defer func() {
					<-q.sem
				}()
			case <-ctx.Done():
				abort(ctx.Err())
				return
			}
		}

		if q.shutdown.Load() {
			abort(ErrInvalidated)
			return
		}

		run(ctx)
	}()
}

// wait blocks until every started body has returned.
func (q *queue) wait() {
	q.wg.Wait()
}

// stop prevents queued bodies from running.
func (q *queue) stop() {
	q.shutdown.Store(true)
}
