package future

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidOp marks programmer misuse of the runtime: starting a task
	// twice, settling a terminal promise, reading a result early. Every
	// misuse error wraps it, so errors.Is(err, ErrInvalidOp) holds.
	ErrInvalidOp = errors.New("future: invalid operation")

	// ErrClosed is returned when work is handed to a scheduler after Close.
	ErrClosed = errors.New("future: scheduler closed")
)

// AggregateError carries every failure of a faulted task in insertion
// order. It is the payload surfaced by the aggregate await bridge and by
// combinators over multiple inputs.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return "future: aggregate: " + e.Errors[0].Error()
	}
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("future: aggregate (%d): %s", len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap exposes the members to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error { return e.Errors }

// Flatten returns a copy with every directly nested AggregateError replaced
// by its members, depth first, preserving left-to-right order.
func (e *AggregateError) Flatten() *AggregateError {
	out := make([]error, 0, len(e.Errors))
	var walk func(errs []error)
	walk = func(errs []error) {
		for _, err := range errs {
			if agg, ok := err.(*AggregateError); ok {
				walk(agg.Errors)
				continue
			}
			out = append(out, err)
		}
	}
	walk(e.Errors)
	return &AggregateError{Errors: out}
}

// CancelError marks cooperative abandonment of a task. It satisfies
// errors.Is(err, context.Canceled) but is not an operation failure.
type CancelError struct {
	Task TaskID
}

func (e *CancelError) Error() string {
	return fmt.Sprintf("future: task %d canceled", e.Task)
}

func (e *CancelError) Is(target error) bool { return target == context.Canceled }

// Class is a coarse failure classification for callers that route errors
// without inspecting concrete types.
type Class int

const (
	ClassNone Class = iota
	ClassOperation
	ClassCancel
	ClassAggregate
	ClassInvalid
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassOperation:
		return "operation"
	case ClassCancel:
		return "cancel"
	case ClassAggregate:
		return "aggregate"
	case ClassInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Classify maps err onto its Class. Aggregates win over their members, so an
// aggregate holding only cancellations still classifies as ClassAggregate.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	var agg *AggregateError
	if errors.As(err, &agg) {
		return ClassAggregate
	}
	if errors.Is(err, ErrInvalidOp) || errors.Is(err, ErrClosed) {
		return ClassInvalid
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassCancel
	}
	return ClassOperation
}
