package future

import (
	"fmt"
	"time"
)

// Promise is the external completion surface for a task without a body.
// The task cannot be started; it settles only through Complete, Fail or
// Cancel, each of which works exactly once.
type Promise[T any] struct {
	t *Task[T]
}

// NewPromise creates an unsettled promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{t: &Task[T]{h: newHandle()}}
}

// Task returns the task view of the promise for awaiting and composition.
func (p *Promise[T]) Task() *Task[T] { return p.t }

// Complete settles the task with v. Settling an already-terminal task
// returns an ErrInvalidOp error and changes nothing.
func (p *Promise[T]) Complete(v T) error {
	if !p.t.h.settle(Completed, nil, func() { p.t.value = v }) {
		return p.settledErr("complete")
	}
	return nil
}

// Fail settles the task Faulted with err as its single failure.
func (p *Promise[T]) Fail(err error) error {
	if err == nil {
		return fmt.Errorf("%w: fail with nil error", ErrInvalidOp)
	}
	if !p.t.h.settle(Faulted, []error{err}, nil) {
		return p.settledErr("fail")
	}
	return nil
}

// Cancel settles the task Canceled.
func (p *Promise[T]) Cancel() error {
	if !p.t.h.settle(Canceled, nil, nil) {
		return p.settledErr("cancel")
	}
	return nil
}

func (p *Promise[T]) settledErr(op string) error {
	return fmt.Errorf("%w: %s: task %d already %s", ErrInvalidOp, op, p.t.h.id, p.t.h.State())
}

// Run creates and starts a task in one step. A start refused by the
// scheduler surfaces as the task's failure rather than a second return
// value, so fire-and-forget call sites stay one-liners. The refusal also
// reaches the scheduler's unobserved channel, so discarding the returned
// task does not lose it.
func Run[T any](s *Scheduler, body Func[T]) *Task[T] {
	t := New(body)
	if err := t.Start(s); err != nil {
		// a refused start never stored the scheduler; the failure still
		// needs an owner to reach the unobserved channel
		t.h.sched.Store(s)
		t.h.settle(Faulted, []error{err}, nil)
	}
	return t
}

// Delay returns a task that completes with the firing instant after d has
// elapsed. Cancelable like any task; canceling stops the timer.
func Delay(d time.Duration) *Task[time.Time] {
	p := NewPromise[time.Time]()
	timer := time.AfterFunc(d, func() {
		_ = p.Complete(time.Now())
	})
	p.t.h.onTerminal(func() { timer.Stop() })
	return p.t
}
