package future

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Option configures a Scheduler.
type Option func(*Options)

// Options holds scheduler configuration. Zero fields fall back to the
// defaults.
type Options struct {
	// Name labels the scheduler in logs and metrics.
	Name string
	// Workers sizes the fixed resident pool. Ignored in elastic mode.
	Workers int
	// MaxWorkers switches to the elastic pool: workers are spawned on
	// demand up to this bound and exit when the queue empties.
	MaxWorkers int
	// PanicAsError converts body panics into task failures. Disabled, a
	// panic propagates on the body goroutine and crashes the process.
	PanicAsError bool
	Observer     Observer
	Clock        Clock
	// Unobserved replaces the default zerolog sink for unobserved-failure
	// reports.
	Unobserved func(id TaskID, errs []error)
}

func defaultOptions() Options {
	return Options{Name: "future", Workers: runtime.NumCPU(), PanicAsError: true, Clock: time.Now}
}

func WithName(name string) Option { return func(o *Options) { o.Name = name } }

func WithWorkers(n int) Option { return func(o *Options) { o.Workers = n } }

func WithMaxWorkers(n int) Option { return func(o *Options) { o.MaxWorkers = n } }

func WithPanicAsError(v bool) Option { return func(o *Options) { o.PanicAsError = v } }

func WithObserver(obs Observer) Option { return func(o *Options) { o.Observer = obs } }

func WithClock(c Clock) Option { return func(o *Options) { o.Clock = c } }

func WithUnobservedHandler(fn func(id TaskID, errs []error)) Option {
	return func(o *Options) { o.Unobserved = fn }
}

// item is one entry of the ready queue. Posted functions carry fn and run
// on the worker directly. Task bodies and their resumptions use the
// grant/release handshake instead, so a body goroutine can park without
// pinning a worker: the worker sends its id on grant and is pinned only
// until the body hands the slot back on release.
type item struct {
	fn      func(WorkerID)
	grant   chan WorkerID
	release chan struct{}
}

// Scheduler owns a FIFO ready queue and the workers consuming it. Items are
// dispatched in enqueue order, each exactly once; nothing beyond
// FIFO-per-queue is guaranteed across workers.
type Scheduler struct {
	opts  Options
	obs   Observer
	clock Clock

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []*item
	closed     bool
	swept      bool
	admitted   int
	parked     int
	busy       int
	unobserved map[*handle]struct{}

	sem        *semaphore.Weighted
	wg         sync.WaitGroup
	nextWorker atomic.Int64
}

// NewScheduler creates a scheduler and, in fixed mode, starts its resident
// workers. WithWorkers(1) gives the single cooperative context where FIFO
// order is total.
func NewScheduler(opts ...Option) *Scheduler {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.Name == "" {
		o.Name = "future"
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		opts:       o,
		obs:        o.Observer,
		clock:      o.Clock,
		ctx:        ctx,
		cancel:     cancel,
		unobserved: make(map[*handle]struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	if o.MaxWorkers > 0 {
		s.sem = semaphore.NewWeighted(int64(o.MaxWorkers))
	} else {
		s.wg.Add(o.Workers)
		for i := 0; i < o.Workers; i++ {
			go s.worker(WorkerID(i))
		}
	}
	return s
}

// Name returns the diagnostic label.
func (s *Scheduler) Name() string { return s.opts.Name }

// Post enqueues fn as a standalone work item. fn runs on a worker and must
// not suspend; task bodies that need Await or Yield go through Start. A
// panicking fn follows the scheduler's panic policy: converted panics are
// reported through the unobserved channel under task id 0.
func (s *Scheduler) Post(fn func()) error {
	if fn == nil {
		panic("future: nil post function")
	}
	it := &item{fn: func(WorkerID) { fn() }}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	depth, spawn := s.appendLocked(it)
	s.mu.Unlock()
	s.afterEnqueue(depth, spawn)
	return nil
}

// admit reserves an admission slot for a body about to be enqueued, keeping
// Close from draining in the gap between the reservation and the enqueue.
func (s *Scheduler) admit() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.admitted++
	return s.ctx, nil
}

func (s *Scheduler) unadmit() {
	s.mu.Lock()
	s.admitted--
	s.mu.Unlock()
	s.cond.Broadcast()
}

// dispatch launches the body goroutine for h and turns the admission into a
// queued handshake item. The goroutine parks on grant until a worker picks
// the item up.
func (s *Scheduler) dispatch(h *handle, run func(*Exec)) {
	it := &item{grant: make(chan WorkerID, 1), release: make(chan struct{}, 1)}
	go func() {
		wid := <-it.grant
		ex := &Exec{h: h, s: s, wid: wid, it: it}
		run(ex)
		// ex.it is the latest handshake item; parks swap it out
		ex.it.release <- struct{}{}
	}()
	s.mu.Lock()
	s.admitted--
	depth, spawn := s.appendLocked(it)
	s.mu.Unlock()
	s.afterEnqueue(depth, spawn)
}

// enqueue appends unconditionally. Internal paths (resumes, yields) use it
// so parked bodies always drain, even during Close. Safe only for the
// scheduler holding the body's parked or busy count; anything else could
// append after the final drain, onto a queue no worker reads again.
func (s *Scheduler) enqueue(it *item) {
	s.mu.Lock()
	depth, spawn := s.appendLocked(it)
	s.mu.Unlock()
	s.afterEnqueue(depth, spawn)
}

// tryEnqueue appends like enqueue but refuses once Close has begun.
// Cross-scheduler resumes use it: success means the item was appended
// before the closed flag, so the drain is still ahead and must serve it.
func (s *Scheduler) tryEnqueue(it *item) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	depth, spawn := s.appendLocked(it)
	s.mu.Unlock()
	s.afterEnqueue(depth, spawn)
	return true
}

// appendLocked adds it to the queue and, in elastic mode, claims a worker
// slot when one is free. The wg.Add stays under mu so the counter is bumped
// before Close's quiesce loop can exit and reach wg.Wait.
func (s *Scheduler) appendLocked(it *item) (depth int, spawn bool) {
	s.queue = append(s.queue, it)
	if s.sem != nil && s.sem.TryAcquire(1) {
		s.wg.Add(1)
		spawn = true
	}
	return len(s.queue), spawn
}

func (s *Scheduler) afterEnqueue(depth int, spawn bool) {
	s.cond.Broadcast()
	if spawn {
		go s.elasticWorker()
	}
	if s.obs != nil {
		s.obs.QueueDepth(depth)
	}
}

func (s *Scheduler) worker(id WorkerID) {
	defer s.wg.Done()
	for {
		it, ok := s.next()
		if !ok {
			return
		}
		s.serve(it, id)
	}
}

// next blocks until an item is available or the scheduler has fully
// drained: closed with nothing queued, admitted, parked or busy.
func (s *Scheduler) next() (*item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if len(s.queue) > 0 {
			it := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.busy++
			return it, true
		}
		if s.closed && s.admitted == 0 && s.parked == 0 && s.busy == 0 {
			return nil, false
		}
		s.cond.Wait()
	}
}

func (s *Scheduler) serve(it *item, id WorkerID) {
	if it.fn != nil {
		s.runPosted(it.fn, id)
	} else {
		it.grant <- id
		<-it.release
	}
	s.mu.Lock()
	s.busy--
	s.mu.Unlock()
	s.cond.Broadcast()
}

// runPosted applies the scheduler's panic policy to a posted closure. A
// converted panic has no task to fault, so it goes to the unobserved
// channel under task id 0, which no real task carries.
func (s *Scheduler) runPosted(fn func(WorkerID), id WorkerID) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if !s.opts.PanicAsError {
			panic(r)
		}
		errs := []error{fmt.Errorf("panic: %v", r)}
		if s.obs != nil {
			s.obs.UnobservedFailure(0, errs)
		}
		sink := s.opts.Unobserved
		if sink == nil {
			sink = defaultUnobserved
		}
		sink(0, errs)
	}()
	fn(id)
}

// elasticWorker serves the queue until it empties, then returns its
// semaphore slot. A new enqueue re-acquires and spawns a fresh worker, so
// capacity always follows demand up to MaxWorkers.
func (s *Scheduler) elasticWorker() {
	defer s.wg.Done()
	id := WorkerID(s.nextWorker.Add(1))
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.sem.Release(1)
			s.mu.Unlock()
			return
		}
		it := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.busy++
		s.mu.Unlock()
		s.serve(it, id)
	}
}

// trackFaulted registers h for the Close sweep. A fault settling after the
// sweep already ran has no later reporting moment, so it reports inline on
// the settling goroutine instead of being dropped.
func (s *Scheduler) trackFaulted(h *handle) {
	if h.observed.Load() {
		return
	}
	s.mu.Lock()
	if s.swept {
		s.mu.Unlock()
		s.reportUnobserved(h)
		return
	}
	s.unobserved[h] = struct{}{}
	s.mu.Unlock()
}

func (s *Scheduler) dropUnobserved(h *handle) {
	s.mu.Lock()
	delete(s.unobserved, h)
	s.mu.Unlock()
}

func (s *Scheduler) notifySettled(id TaskID, st State, began time.Time, failures int) {
	if s.obs == nil {
		return
	}
	var dur time.Duration
	if !began.IsZero() {
		dur = s.clock().Sub(began)
	}
	s.obs.TaskSettled(id, st, dur, failures)
}

// Close stops intake, cancels every task context derived from the
// scheduler, drains all queued and suspended work, joins the workers and
// reports faulted tasks whose failures nobody read. Idempotent; safe to
// call from multiple goroutines.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.cond.Broadcast()

	// quiesce before joining: elastic resumes may still wg.Add until the
	// last parked body drains
	s.mu.Lock()
	for len(s.queue) > 0 || s.admitted > 0 || s.parked > 0 || s.busy > 0 {
		s.cond.Wait()
	}
	leftovers := make([]*handle, 0, len(s.unobserved))
	for h := range s.unobserved {
		leftovers = append(leftovers, h)
		delete(s.unobserved, h)
	}
	// faults settling from here on report inline; see trackFaulted
	s.swept = true
	s.mu.Unlock()
	s.wg.Wait()

	sort.Slice(leftovers, func(i, j int) bool { return leftovers[i].id < leftovers[j].id })
	for _, h := range leftovers {
		s.reportUnobserved(h)
	}
	return nil
}

// Shutdown is Close bounded by ctx: it starts the same drain and returns
// ctx.Err() if the grace elapses first. The drain keeps running in the
// background; a later Close or Shutdown call joins it.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Close()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) reportUnobserved(h *handle) {
	if h.observed.Swap(true) {
		return
	}
	h.mu.Lock()
	errs := make([]error, len(h.failures))
	copy(errs, h.failures)
	h.mu.Unlock()
	if s.obs != nil {
		s.obs.UnobservedFailure(h.id, errs)
	}
	fn := s.opts.Unobserved
	if fn == nil {
		fn = defaultUnobserved
	}
	fn(h.id, errs)
}

func defaultUnobserved(id TaskID, errs []error) {
	log.Error().Uint64("task", uint64(id)).Errs("failures", errs).Msg("future: unobserved task failure")
}
