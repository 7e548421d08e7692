package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueue_ConcurrencyLimit(t *testing.T) {
	const limit = 2
	const total = 5

	q := newQueue(limit)

	var running atomic.Int32
	var maxRunning atomic.Int32
	barrier := make(chan struct{})

	for range total {
		q.start(t.Context(), func(ctx context.Context) {
			cur := running.Add(1)
			for {
				old := maxRunning.Load()
				if cur <= old || maxRunning.CompareAndSwap(old, cur) {
					break
				}
			}
			<-barrier
			running.Add(-1)
		}, func(err error) {
			t.Errorf("unexpected abort: %v", err)
		})
	}

	// Let all goroutines proceed concurrently.
	time.Sleep(50 * time.Millisecond)
	close(barrier)
	q.wait()

	if peak := maxRunning.Load(); peak > limit {
		t.Errorf("max concurrent was %d, want <= %d", peak, limit)
	}
}

func TestQueue_UnlimitedConcurrency(t *testing.T) {
	const total = 10

	q := newQueue(0)

	var running atomic.Int32
	var peak atomic.Int32
	barrier := make(chan struct{})

	for range total {
		q.start(t.Context(), func(ctx context.Context) {
			cur := running.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			<-barrier
		}, func(err error) {
			t.Errorf("unexpected abort: %v", err)
		})
	}

	time.Sleep(50 * time.Millisecond)
	close(barrier)
	q.wait()

	if got := peak.Load(); got != total {
		t.Errorf("exp %d concurrent bodies, got %d", total, got)
	}
}

func TestQueue_StopAbortsQueued(t *testing.T) {
	q := newQueue(0)
	q.stop()

	aborted := make(chan error, 1)
	q.start(t.Context(), func(ctx context.Context) {
		t.Error("body ran after stop")
	}, func(err error) {
		aborted <- err
	})
	q.wait()

	if err := <-aborted; !errors.Is(err, ErrInvalidated) {
		t.Errorf("exp ErrInvalidated, got %v", err)
	}
}

func TestQueue_ContextEndsWhileWaiting(t *testing.T) {
	q := newQueue(1)

	hold := make(chan struct{})
	started := make(chan struct{})
	q.start(t.Context(), func(ctx context.Context) {
		close(started)
		<-hold
	}, func(error) {})
	<-started

	ctx, cancel := context.WithCancel(t.Context())
	aborted := make(chan error, 1)
	q.start(ctx, func(ctx context.Context) {
		t.Error("body ran without a slot")
	}, func(err error) {
		aborted <- err
	})

	cancel()

	select {
	case err := <-aborted:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("exp context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiting body was not aborted")
	}

	close(hold)
	q.wait()
}
