// Package future is a cooperative task-scheduling and error-aggregation
// runtime: tasks are created idle, started explicitly on a scheduler, and
// composed through awaits, continuations and combinators.
//
// A Scheduler owns a FIFO ready queue served by a fixed pool of workers or,
// with WithMaxWorkers, an elastic pool that grows with demand. Task bodies
// run on their own goroutines but hold a worker slot only while executing;
// Await and Yield release the slot, so a suspended task never blocks a
// worker and a single-worker scheduler still makes progress through
// arbitrary await chains.
//
// Failures are values. A faulted task carries an ordered failure list;
// the default bridge (Await, Wait) surfaces only the first entry, the
// aggregate bridge (AwaitAggregate, WaitAggregate) surfaces all of them as
// one *AggregateError, and ContinueWith hands the terminal task to the
// continuation for inspection without re-raising anything. AllOf gathers
// the failures of every input in input order regardless of completion
// timing.
//
// Faulted tasks whose failures no caller ever reads are reported during
// scheduler Close through Observer.UnobservedFailure and the unobserved
// handler; a fault settling after Close reports the same way, inline.
// Failures are never thrown into unrelated stacks and never silently
// dropped.
package future
