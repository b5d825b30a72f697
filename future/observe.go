package future

import "time"

// Clock supplies the timestamps used for durations in observer hooks.
type Clock func() time.Time

// Observer receives scheduler and task lifecycle notifications. Hooks run
// outside scheduler locks, on whichever goroutine drove the transition, and
// must not block or call back into the scheduler. They never influence
// control flow.
type Observer interface {
	// TaskStarted fires when a body begins executing on a worker.
	TaskStarted(id TaskID, worker WorkerID)
	// TaskSettled fires after the terminal transition. dur covers body
	// execution for started tasks and is zero otherwise.
	TaskSettled(id TaskID, state State, dur time.Duration, failures int)
	// TaskYielded fires when a body reposts itself to the queue.
	TaskYielded(id TaskID, worker WorkerID)
	// TaskResumed fires when a suspended body is granted a worker again.
	TaskResumed(id TaskID, worker WorkerID, waited time.Duration)
	// QueueDepth reports the ready-queue length after an enqueue.
	QueueDepth(depth int)
	// UnobservedFailure reports a faulted task whose failures no caller ever
	// read, during scheduler Close.
	UnobservedFailure(id TaskID, errs []error)
}
