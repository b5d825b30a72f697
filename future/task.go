package future

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// State is the task lifecycle state.
type State int32

const (
	Pending State = iota
	Running
	Completed
	Faulted
	Canceled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Faulted:
		return "faulted"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether s is final. Terminal state and payload never
// change afterwards.
func (s State) Terminal() bool {
	return s == Completed || s == Faulted || s == Canceled
}

// TaskID identifies a task in diagnostics and observer hooks.
type TaskID uint64

// WorkerID identifies a scheduler worker. Code running outside a worker
// reports NoWorker.
type WorkerID int

const NoWorker WorkerID = -1

var taskSeq atomic.Uint64

// handle is the untyped lifecycle core shared by Task, Promise and the
// combinators: state machine, failure list, terminal hooks, observation
// mark. The task mutex is the single mutual-exclusion point for state
// transitions and hook registration, so a registration can never race a
// transition into running twice or not at all.
type handle struct {
	id TaskID

	mu        sync.Mutex
	state     State
	failures  []error
	hooks     []func()
	cancelReq bool
	began     time.Time

	// set while transitioning Pending -> Running, immutable afterwards
	ctx    context.Context
	cancel context.CancelFunc

	done chan struct{}

	sched    atomic.Pointer[Scheduler]
	observed atomic.Bool
}

func newHandle() *handle {
	return &handle{
		id:   TaskID(taskSeq.Add(1)),
		done: make(chan struct{}),
	}
}

func (h *handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// settle performs the single terminal transition. pre, if non-nil, runs
// inside the critical section before the state flips; it is how typed
// result values are published without racing late settlers. Returns false
// when the handle is already terminal.
func (h *handle) settle(to State, failures []error, pre func()) bool {
	h.mu.Lock()
	if h.state.Terminal() {
		h.mu.Unlock()
		return false
	}
	if pre != nil {
		pre()
	}
	h.state = to
	h.failures = failures
	hooks := h.hooks
	h.hooks = nil
	began := h.began
	h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
	}
	s := h.sched.Load()
	if s != nil && to == Faulted {
		// registered before done closes, so a waiter waking right now and
		// reading the failure deregisters, never the other way around
		s.trackFaulted(h)
	}
	close(h.done)
	for _, fn := range hooks {
		fn()
	}
	if s != nil {
		s.notifySettled(h.id, to, began, len(failures))
	}
	return true
}

// onTerminal registers fn to run after the terminal transition, in
// registration order. On an already-terminal handle fn runs immediately on
// the calling goroutine. fn must only hand work off, never block.
func (h *handle) onTerminal(fn func()) {
	h.mu.Lock()
	if !h.state.Terminal() {
		h.hooks = append(h.hooks, fn)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	fn()
}

// markObserved records that some caller consumed the failure payload and
// takes the handle out of the unobserved sweep.
func (h *handle) markObserved() {
	if h.observed.Swap(true) {
		return
	}
	if s := h.sched.Load(); s != nil {
		s.dropUnobserved(h)
	}
}

func (h *handle) requestCancel() error {
	h.mu.Lock()
	if h.state.Terminal() {
		st := h.state
		h.mu.Unlock()
		return fmt.Errorf("%w: cancel: task %d already %s", ErrInvalidOp, h.id, st)
	}
	if h.state == Pending {
		h.mu.Unlock()
		if !h.settle(Canceled, nil, nil) {
			return fmt.Errorf("%w: cancel: task %d already settled", ErrInvalidOp, h.id)
		}
		return nil
	}
	h.cancelReq = true
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Func is a task body. It runs on a scheduler worker and may suspend
// through Await or Yield on the provided Exec. Returning an error faults
// the task; returning the task context's cancellation error after Cancel
// settles it Canceled.
type Func[T any] func(ex *Exec) (T, error)

// Task is a single unit of asynchronous work producing a T. Created
// Pending, started at most once, settled exactly once.
type Task[T any] struct {
	h     *handle
	body  Func[T]
	value T
}

// New creates a task in the Pending state. The body does not run until
// Start hands it to a scheduler.
func New[T any](body Func[T]) *Task[T] {
	if body == nil {
		panic("future: nil task body")
	}
	return &Task[T]{h: newHandle(), body: body}
}

// Start transitions the task Pending -> Running and enqueues its body on s.
// Starting twice, starting a terminal task, or starting a body-less task
// (promises, combinators) returns an ErrInvalidOp error; a closed scheduler
// returns ErrClosed.
func (t *Task[T]) Start(s *Scheduler) error {
	if s == nil {
		panic("future: nil scheduler")
	}
	if t.body == nil {
		return fmt.Errorf("%w: start: task %d has no body", ErrInvalidOp, t.h.id)
	}
	h := t.h
	base, err := s.admit()
	if err != nil {
		return err
	}
	h.mu.Lock()
	if h.state != Pending {
		st := h.state
		h.mu.Unlock()
		s.unadmit()
		return fmt.Errorf("%w: start: task %d already %s", ErrInvalidOp, h.id, st)
	}
	h.state = Running
	h.ctx, h.cancel = context.WithCancel(base)
	h.mu.Unlock()
	h.sched.Store(s)
	s.dispatch(h, t.run)
	return nil
}

// run executes the body on a granted worker and settles the task from its
// return. Runs on the task's own goroutine; the worker is only pinned
// between grant and release.
func (t *Task[T]) run(ex *Exec) {
	h := t.h
	now := ex.s.clock()
	h.mu.Lock()
	if h.state.Terminal() {
		// canceled between enqueue and dispatch
		h.mu.Unlock()
		return
	}
	h.began = now
	h.mu.Unlock()
	if obs := ex.s.obs; obs != nil {
		obs.TaskStarted(h.id, ex.wid)
	}

	var (
		v   T
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				if ex.s.opts.PanicAsError {
					err = fmt.Errorf("panic: %v", r)
					return
				}
				panic(r)
			}
		}()
		v, err = t.body(ex)
	}()

	switch {
	case err == nil:
		h.settle(Completed, nil, func() { t.value = v })
	case errors.Is(err, context.Canceled) && h.ctx.Err() != nil:
		h.settle(Canceled, nil, nil)
	default:
		h.settle(Faulted, []error{err}, nil)
	}
}

// Cancel requests cooperative cancellation. A Pending task settles Canceled
// immediately; a Running task has its context canceled and settles when the
// body acknowledges. Terminal tasks return an ErrInvalidOp error.
func (t *Task[T]) Cancel() error { return t.h.requestCancel() }

// ID returns the diagnostic task identifier.
func (t *Task[T]) ID() TaskID { return t.h.id }

// State returns the current lifecycle state.
func (t *Task[T]) State() State { return t.h.State() }

// Done is closed on the terminal transition.
func (t *Task[T]) Done() <-chan struct{} { return t.h.done }

// Err returns nil until the task is terminal, then nil for Completed, the
// first failure for Faulted, and a *CancelError for Canceled. A non-nil
// return marks the failure observed.
func (t *Task[T]) Err() error {
	h := t.h
	h.mu.Lock()
	st := h.state
	var first error
	if len(h.failures) > 0 {
		first = h.failures[0]
	}
	h.mu.Unlock()
	switch st {
	case Faulted:
		h.markObserved()
		return first
	case Canceled:
		h.markObserved()
		return &CancelError{Task: h.id}
	default:
		return nil
	}
}

// Failures returns a copy of the ordered failure list, empty unless the
// task is Faulted. A non-empty return marks the failures observed.
func (t *Task[T]) Failures() []error {
	h := t.h
	h.mu.Lock()
	out := make([]error, len(h.failures))
	copy(out, h.failures)
	h.mu.Unlock()
	if len(out) > 0 {
		h.markObserved()
	}
	return out
}

// Wait blocks the calling goroutine until the task is terminal or ctx is
// done. Failures surface through the default bridge: only the first one is
// returned. Use Await inside task bodies instead; Wait would pin the
// worker.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-t.h.done:
		return t.result(false)
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WaitAggregate is Wait with the aggregate bridge: a Faulted task yields
// its entire failure list as one *AggregateError, a Canceled task an
// aggregate holding the cancel marker.
func (t *Task[T]) WaitAggregate(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-t.h.done:
		return t.result(true)
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (t *Task[T]) result(aggregate bool) (T, error) {
	h := t.h
	h.mu.Lock()
	st := h.state
	failures := h.failures
	h.mu.Unlock()
	var zero T
	switch st {
	case Completed:
		return t.value, nil
	case Canceled:
		h.markObserved()
		if aggregate {
			return zero, &AggregateError{Errors: []error{&CancelError{Task: h.id}}}
		}
		return zero, &CancelError{Task: h.id}
	case Faulted:
		h.markObserved()
		if aggregate {
			out := make([]error, len(failures))
			copy(out, failures)
			return zero, &AggregateError{Errors: out}
		}
		return zero, failures[0]
	default:
		return zero, fmt.Errorf("%w: result of task %d read before completion", ErrInvalidOp, h.id)
	}
}
