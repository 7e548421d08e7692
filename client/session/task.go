package session

import (
	"context"
	"net/http"
	"net/url"
	"sync/atomic"
)

// State is the lifecycle state of a task.
type State int32

const (
	Running State = iota
	Canceling
	Completed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Canceling:
		return "canceling"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Task is the handle of one in-flight operation. Handles are never reused.
type Task struct {
	id     int64
	url    *url.URL
	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
}

// ID returns the session-unique task identifier.
func (t *Task) ID() int64 { return t.id }

// OriginalURL returns the URL of the request that started the task.
func (t *Task) OriginalURL() *url.URL { return t.url }

// State returns the current state.
func (t *Task) State() State { return State(t.state.Load()) }

// Done is closed after the completion func has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel aborts a running task. The task still completes, with a failure.
func (t *Task) Cancel() {
	if t.state.CompareAndSwap(int32(Running), int32(Canceling)) {
		t.cancel()
	}
}

func (t *Task) complete() {
	t.state.Store(int32(Completed))
	t.cancel()
}

// Completion is the terminal outcome of a task. Err is a *neterror.Error
// when set. Response is set whenever the server answered; its body has
// already been consumed.
type Completion struct {
	Task     *Task
	Response *http.Response
	// Body holds the payload of data and upload tasks.
	Body []byte
	// Location is the file of a finished download.
	Location string
	Err      error
}

// CompletionFunc receives a task's completion exactly once.
type CompletionFunc func(Completion)
