// Package errgroup provides an adapter that mimics golang.org/x/sync/errgroup
// semantics on top of the task runtime. It enables incremental migration
// without pulling errgroup into callers that already own a scheduler.
package errgroup

import (
	"context"
	"errors"
	"sync"

	"github.com/NetPo4ki/go-future/future"
)

// Group is an errgroup-like wrapper that runs its functions as tasks on one
// scheduler. The first non-nil error wins and cancels the group context.
type Group struct {
	s      *future.Scheduler
	cancel context.CancelFunc

	mu    sync.Mutex
	tasks []*future.Task[struct{}]

	once sync.Once
	err  error
}

// WithContext creates a Group whose functions run on s. The returned context
// is canceled the first time a function passed to Go returns a non-nil error
// or when Wait returns.
func WithContext(ctx context.Context, s *future.Scheduler) (*Group, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{s: s, cancel: cancel}, ctx
}

// Go starts f as a task. It should return a non-nil error to signal failure.
func (g *Group) Go(f func() error) {
	if f == nil {
		return
	}
	t := future.Run(g.s, func(*future.Exec) (struct{}, error) {
		if err := f(); err != nil {
			g.once.Do(func() {
				g.err = err
				g.cancel()
			})
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	g.mu.Lock()
	g.tasks = append(g.tasks, t)
	g.mu.Unlock()
}

// Wait blocks until every started function has returned, then reports the
// first non-nil error. Task failures are consumed here, so a group whose
// functions ran never feeds the unobserved-failure channel; a start refused
// by a closed scheduler is reported there in addition to surfacing here.
func (g *Group) Wait() error {
	var aggErr error
	for {
		g.mu.Lock()
		pending := make([]*future.Task[struct{}], len(g.tasks))
		copy(pending, g.tasks)
		g.mu.Unlock()

		_, aggErr = future.AllOf(pending...).WaitAggregate(context.Background())

		g.mu.Lock()
		stable := len(pending) == len(g.tasks)
		g.mu.Unlock()
		if stable {
			break
		}
	}
	g.cancel()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err == nil && aggErr != nil {
		// a task that never ran, start refused by a closed scheduler
		var agg *future.AggregateError
		if errors.As(aggErr, &agg) && len(agg.Errors) > 0 {
			g.err = agg.Errors[0]
		}
	}
	return g.err
}
