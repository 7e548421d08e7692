package session

import (
	"context"

	"github.com/adamwoolhether/httpstream/client/progress"
	"github.com/adamwoolhether/httpstream/client/trust"
)

// Delegate receives the callbacks of every task in a session. Calls arrive
// on transport goroutines, concurrently across tasks.
type Delegate interface {
	HandleChallenge(ctx context.Context, ch trust.Challenge) trust.Decision
	DidSendBodyData(task *Task, sent, totalSent, totalExpected int64)
	DidWriteData(task *Task, written, totalWritten, totalExpected int64)
	DidFinishDownloading(task *Task, location string)
}

// SessionDelegate routes challenges to a trust validator and byte counts to
// a progress multiplexer.
type SessionDelegate struct {
	validator *trust.Validator
	mux       *progress.Multiplexer
}

// NewDelegate returns the default delegate.
func NewDelegate(validator *trust.Validator, mux *progress.Multiplexer) *SessionDelegate {
	return &SessionDelegate{validator: validator, mux: mux}
}

// HandleChallenge evaluates ch against the validator's policy.
func (d *SessionDelegate) HandleChallenge(ctx context.Context, ch trust.Challenge) trust.Decision {
	return d.validator.Evaluate(ctx, ch)
}

// DidSendBodyData publishes upload progress.
func (d *SessionDelegate) DidSendBodyData(task *Task, _, totalSent, totalExpected int64) {
	d.publish(task, totalSent, totalExpected)
}

// DidWriteData publishes download progress.
func (d *SessionDelegate) DidWriteData(task *Task, _, totalWritten, totalExpected int64) {
	d.publish(task, totalWritten, totalExpected)
}

// DidFinishDownloading publishes completion of the transfer.
func (d *SessionDelegate) DidFinishDownloading(task *Task, _ string) {
	d.mux.Publish(task.ID(), 1)
}

// publish skips transfers of unknown length.
func (d *SessionDelegate) publish(task *Task, done, expected int64) {
	if expected <= 0 {
		return
	}

	d.mux.Publish(task.ID(), min(float64(done)/float64(expected), 1))
}
