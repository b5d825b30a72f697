package future

import (
	"context"
	"sync/atomic"
)

// Exec is the execution-context handle passed to every task body: the task
// context, the scheduler and worker the body currently runs under, and the
// suspension primitives. Valid only inside its body; do not retain it.
type Exec struct {
	h        *handle
	s        *Scheduler
	wid      WorkerID
	it       *item
	canceled bool
}

// Context returns the task context. Bodies observe cancellation through it.
func (ex *Exec) Context() context.Context { return ex.h.ctx }

// Scheduler returns the scheduler the body is currently running under. It
// changes when an await with WithAffinity(false) resumes elsewhere.
func (ex *Exec) Scheduler() *Scheduler { return ex.s }

// Worker returns the id of the worker currently executing the body.
func (ex *Exec) Worker() WorkerID { return ex.wid }

// TaskID returns the id of the task the body belongs to.
func (ex *Exec) TaskID() TaskID { return ex.h.id }

// Yield reposts the remainder of the body to the back of the ready queue
// and parks until a worker picks it up again, giving every already-queued
// item a turn first. Returns the task context error when cancellation
// arrived by resume time.
func (ex *Exec) Yield() error {
	s := ex.s
	if s.obs != nil {
		s.obs.TaskYielded(ex.h.id, ex.wid)
	}
	start := s.clock()
	old := ex.it
	next := &item{grant: make(chan WorkerID, 1), release: make(chan struct{}, 1)}
	ex.it = next
	s.enqueue(next)
	old.release <- struct{}{}
	wid := <-next.grant
	ex.wid = wid
	if s.obs != nil {
		s.obs.TaskResumed(ex.h.id, wid, s.clock().Sub(start))
	}
	return ex.h.ctx.Err()
}

type awaitConfig struct {
	affinity bool
}

// AwaitOption adjusts a single await call.
type AwaitOption func(*awaitConfig)

// WithAffinity controls where the body resumes after an await. True, the
// default, resumes on the scheduler the body is currently running under.
// False lets the resumption run on the scheduler of whichever task
// completed the awaited work, falling back to the current one when the
// completer is external (a promise, a timer) or its scheduler has closed.
func WithAffinity(v bool) AwaitOption {
	return func(c *awaitConfig) { c.affinity = v }
}

// Await suspends the calling body until t is terminal, then applies the
// default bridge: Completed yields the value, Canceled a *CancelError, and
// Faulted only the first failure. The worker slot is released for the whole
// suspension; an already-terminal task continues synchronously. If the
// awaiting task is canceled while parked, Await returns the task context
// error instead.
func Await[T any](ex *Exec, t *Task[T], opts ...AwaitOption) (T, error) {
	return awaitTask(ex, t, false, opts)
}

// AwaitAggregate is Await with the aggregate bridge: a Faulted task yields
// its entire failure list as one *AggregateError, a Canceled task an
// aggregate holding the cancel marker.
func AwaitAggregate[T any](ex *Exec, t *Task[T], opts ...AwaitOption) (T, error) {
	return awaitTask(ex, t, true, opts)
}

func awaitTask[T any](ex *Exec, t *Task[T], aggregate bool, opts []AwaitOption) (T, error) {
	if ex == nil {
		panic("future: await outside a task body")
	}
	if t == nil {
		panic("future: await on nil task")
	}
	if t.h == ex.h {
		panic("future: task awaiting itself")
	}
	cfg := awaitConfig{affinity: true}
	for _, fn := range opts {
		fn(&cfg)
	}
	if t.h.State().Terminal() {
		return t.result(aggregate)
	}
	if err := ex.park(t.h, cfg.affinity); err != nil {
		var zero T
		return zero, err
	}
	return t.result(aggregate)
}

// park suspends the body until target settles or the body's own context is
// canceled, whichever registers its resumption first. The resumption is a
// fresh handshake item enqueued on the destination scheduler; the old item
// is released so the current worker moves on immediately. A nil return
// means target is terminal.
func (ex *Exec) park(target *handle, affinity bool) error {
	origin := ex.s
	start := origin.clock()
	old := ex.it
	next := &item{grant: make(chan WorkerID, 1), release: make(chan struct{}, 1)}
	ex.it = next

	var fired atomic.Bool
	resume := func(to *Scheduler, canceled bool) {
		ex.canceled = canceled
		ex.s = to
		if to == origin {
			origin.enqueue(next)
		} else if !to.tryEnqueue(next) {
			// completer's scheduler closed between settling and this
			// resume; the origin still counts the body as parked, so its
			// drain is guaranteed to serve the fallback
			ex.s = origin
			origin.enqueue(next)
		}
		origin.mu.Lock()
		origin.parked--
		origin.mu.Unlock()
		origin.cond.Broadcast()
	}

	origin.mu.Lock()
	origin.parked++
	origin.mu.Unlock()

	stop := context.AfterFunc(ex.h.ctx, func() {
		if fired.Swap(true) {
			return
		}
		resume(origin, true)
	})
	target.onTerminal(func() {
		if fired.Swap(true) {
			return
		}
		stop()
		to := origin
		if !affinity {
			if cs := target.sched.Load(); cs != nil {
				to = cs
			}
		}
		resume(to, false)
	})

	old.release <- struct{}{}
	wid := <-next.grant
	ex.wid = wid
	if obs := ex.s.obs; obs != nil {
		obs.TaskResumed(ex.h.id, wid, ex.s.clock().Sub(start))
	}
	if ex.canceled {
		ex.canceled = false
		return ex.h.ctx.Err()
	}
	return nil
}
