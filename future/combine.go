package future

import (
	"fmt"
	"sync/atomic"
)

// AllOf returns a task that settles only after every input is terminal;
// nothing short-circuits. When all inputs complete it completes with their
// values in input order. Otherwise it faults with the concatenation, in
// input order, of every faulted input's failures, a canceled input
// contributing a single *CancelError marker. Completion timing of the
// inputs never affects the failure order. AllOf consumes the inputs'
// failures, so they are not reported as unobserved; the aggregate carries
// them instead.
func AllOf[T any](tasks ...*Task[T]) *Task[[]T] {
	for _, in := range tasks {
		if in == nil {
			panic("future: nil task")
		}
	}
	agg := &Task[[]T]{h: newHandle()}
	if len(tasks) == 0 {
		agg.h.settle(Completed, nil, func() { agg.value = []T{} })
		return agg
	}
	var remaining atomic.Int64
	remaining.Store(int64(len(tasks)))
	gather := func() {
		var failures []error
		values := make([]T, len(tasks))
		for i, in := range tasks {
			in.h.mu.Lock()
			st := in.h.state
			fs := in.h.failures
			in.h.mu.Unlock()
			switch st {
			case Completed:
				values[i] = in.value
			case Canceled:
				failures = append(failures, &CancelError{Task: in.h.id})
			case Faulted:
				failures = append(failures, fs...)
			}
			in.h.markObserved()
		}
		adoptScheduler(agg.h, tasks)
		if len(failures) > 0 {
			agg.h.settle(Faulted, failures, nil)
			return
		}
		agg.h.settle(Completed, nil, func() { agg.value = values })
	}
	for _, in := range tasks {
		in.h.onTerminal(func() {
			if remaining.Add(-1) == 0 {
				gather()
			}
		})
	}
	return agg
}

// AnyOf returns a task that completes with the value of the first input to
// complete. When no input completes it faults with one marker per input in
// input order: the failures of faulted inputs, a *CancelError for canceled
// ones. AnyOf adopts every input's failures, winners and losers alike, so
// none of them is reported as unobserved.
func AnyOf[T any](tasks ...*Task[T]) *Task[T] {
	for _, in := range tasks {
		if in == nil {
			panic("future: nil task")
		}
	}
	agg := &Task[T]{h: newHandle()}
	if len(tasks) == 0 {
		agg.h.settle(Faulted, []error{fmt.Errorf("%w: any-of with no inputs", ErrInvalidOp)}, nil)
		return agg
	}
	var remaining atomic.Int64
	remaining.Store(int64(len(tasks)))
	for _, in := range tasks {
		in.h.onTerminal(func() {
			in.h.markObserved()
			if in.h.State() == Completed {
				adoptScheduler(agg.h, tasks)
				agg.h.settle(Completed, nil, func() { agg.value = in.value })
			}
			if remaining.Add(-1) == 0 {
				var failures []error
				for _, loser := range tasks {
					loser.h.mu.Lock()
					st := loser.h.state
					fs := loser.h.failures
					loser.h.mu.Unlock()
					switch st {
					case Canceled:
						failures = append(failures, &CancelError{Task: loser.h.id})
					case Faulted:
						failures = append(failures, fs...)
					}
				}
				adoptScheduler(agg.h, tasks)
				agg.h.settle(Faulted, failures, nil)
			}
		})
	}
	return agg
}

// adoptScheduler attaches the aggregate to the scheduler of the first
// started input so its own unobserved failures have an owner to report
// them. Aggregates over pure promises stay unowned.
func adoptScheduler[T any](h *handle, tasks []*Task[T]) {
	if h.sched.Load() != nil {
		return
	}
	for _, in := range tasks {
		if s := in.h.sched.Load(); s != nil {
			h.sched.Store(s)
			return
		}
	}
}

// ContinueWith derives a task that runs fn on s once t is terminal. fn
// receives the terminal task itself and can inspect its state and full
// failure list; nothing is unwrapped or re-raised beforehand. The
// continuation is always enqueued, never run inline with t's completion,
// and its registration order among t's continuations is preserved.
func ContinueWith[T, U any](s *Scheduler, t *Task[T], fn func(ex *Exec, prev *Task[T]) (U, error)) *Task[U] {
	if s == nil {
		panic("future: nil scheduler")
	}
	if t == nil {
		panic("future: nil task")
	}
	if fn == nil {
		panic("future: nil continuation")
	}
	next := New(func(ex *Exec) (U, error) {
		return fn(ex, t)
	})
	t.h.onTerminal(func() {
		if err := next.Start(s); err != nil {
			next.h.settle(Faulted, []error{err}, nil)
		}
	})
	return next
}
