package client

import (
	"github.com/adamwoolhether/httpstream/client/progress"
)

// streamBuffer is the Events channel capacity. One slot is always kept
// free for the terminal event.
const streamBuffer = 32

// EventKind discriminates the events of a [Stream].
type EventKind int

const (
	KindProgress EventKind = iota
	KindResponse
	KindFailure
)

func (k EventKind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindResponse:
		return "response"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Event is one value of a [Stream]. Fraction is set for KindProgress,
// Payload for KindResponse and Err for KindFailure.
type Event[T any] struct {
	Kind     EventKind
	Fraction float64
	Payload  T
	Err      error
}

// Stream is the observable result of one operation: zero or more progress
// events followed by exactly one terminal event, after which Events closes.
//
// When the consumer falls behind, the oldest buffered progress is dropped
// so the latest fraction still arrives. The terminal event is never dropped, and Wait works without
// reading Events at all.
type Stream[T any] struct {
	events chan Event[T]
	done   chan struct{}
	taskID int64

	payload T
	err     error

	end func(error)
}

type outcome[T any] struct {
	payload T
	err     error
}

func newStream[T any](end func(error)) *Stream[T] {
	return &Stream[T]{
		events: make(chan Event[T], streamBuffer),
		done:   make(chan struct{}),
		end:    end,
	}
}

// Events returns the event channel.
func (s *Stream[T]) Events() <-chan Event[T] {
	return s.events
}

// Wait blocks until the terminal event and returns its payload or error.
// The error is a *neterror.Error.
func (s *Stream[T]) Wait() (T, error) {
	<-s.done
	return s.payload, s.err
}

// Done is closed once the outcome is available to Wait.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// TaskID returns the identifier of the underlying task, 0 when the
// operation failed before a task started.
func (s *Stream[T]) TaskID() int64 {
	return s.taskID
}

// run forwards the task's progress from sub until completion fires. Every
// progress event published before completion is forwarded before the
// terminal event. sub may be nil for operations without progress.
func (s *Stream[T]) run(sub *progress.Subscription, taskID int64, completion <-chan outcome[T]) {
	var events <-chan progress.Event
	if sub != nil {
		events = sub.Events()
		defer sub.Close()
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.progress(taskID, ev)

		case out := <-completion:
		drain:
			for events != nil {
				select {
				case ev, ok := <-events:
					if !ok {
						break drain
					}
					s.progress(taskID, ev)
				default:
					break drain
				}
			}

			s.finish(out)
			return
		}
	}
}

func (s *Stream[T]) progress(taskID int64, ev progress.Event) {
	if ev.TaskID != taskID {
		return
	}

	// run is the only sender and the terminal event goes last, so anything
	// buffered is progress and a freed slot cannot disappear.
	if len(s.events) >= cap(s.events)-1 {
		select {
		case <-s.events:
		default:
		}
	}
	s.events <- Event[T]{Kind: KindProgress, Fraction: ev.Fraction}
}

func (s *Stream[T]) finish(out outcome[T]) {
	s.payload, s.err = out.payload, out.err

	if s.end != nil {
		s.end(out.err)
	}

	if out.err != nil {
		s.events <- Event[T]{Kind: KindFailure, Err: out.err}
	} else {
		s.events <- Event[T]{Kind: KindResponse, Payload: out.payload}
	}
	close(s.events)
	close(s.done)
}
