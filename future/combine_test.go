package future

import (
	"context"
	"errors"
	"testing"
)

func TestAllOfValuesInInputOrder(t *testing.T) {
	t.Parallel()
	pa, pb, pc := NewPromise[int](), NewPromise[int](), NewPromise[int]()
	all := AllOf(pa.Task(), pb.Task(), pc.Task())
	if err := pc.Complete(3); err != nil {
		t.Fatal(err)
	}
	if err := pb.Complete(2); err != nil {
		t.Fatal(err)
	}
	if err := pa.Complete(1); err != nil {
		t.Fatal(err)
	}
	vs, err := all.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(vs) != 3 || vs[0] != 1 || vs[1] != 2 || vs[2] != 3 {
		t.Fatalf("values = %v, want [1 2 3]", vs)
	}
}

func TestAllOfFailureOrderFollowsInput(t *testing.T) {
	t.Parallel()
	appErr := errors.New("application failure")
	sysErr := errors.New("system failure")
	pa, pb := NewPromise[int](), NewPromise[int]()
	all := AllOf(pa.Task(), pb.Task())

	// second input settles first; the aggregate must not care
	if err := pb.Fail(sysErr); err != nil {
		t.Fatal(err)
	}
	if err := pa.Fail(appErr); err != nil {
		t.Fatal(err)
	}

	fs := all.Failures()
	if len(fs) != 2 || !errors.Is(fs[0], appErr) || !errors.Is(fs[1], sysErr) {
		t.Fatalf("failures = %v, want [application system]", fs)
	}
	if _, err := all.Wait(context.Background()); !errors.Is(err, appErr) {
		t.Fatalf("default bridge error = %v, want first failure", err)
	}
	_, err := all.WaitAggregate(context.Background())
	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("aggregate bridge error = %v, want *AggregateError", err)
	}
	flat := agg.Flatten()
	if len(flat.Errors) != 2 || !errors.Is(flat.Errors[0], appErr) || !errors.Is(flat.Errors[1], sysErr) {
		t.Fatalf("flattened = %v, want [application system]", flat.Errors)
	}
}

func TestAllOfCanceledInputContributesMarker(t *testing.T) {
	t.Parallel()
	pa, pb := NewPromise[int](), NewPromise[int]()
	all := AllOf(pa.Task(), pb.Task())
	if err := pa.Complete(1); err != nil {
		t.Fatal(err)
	}
	if err := pb.Cancel(); err != nil {
		t.Fatal(err)
	}
	fs := all.Failures()
	if len(fs) != 1 {
		t.Fatalf("failures = %v, want one cancel marker", fs)
	}
	var ce *CancelError
	if !errors.As(fs[0], &ce) || ce.Task != pb.Task().ID() {
		t.Fatalf("failure = %v, want cancel marker for task %d", fs[0], pb.Task().ID())
	}
}

func TestAllOfEmptyCompletesImmediately(t *testing.T) {
	t.Parallel()
	all := AllOf[int]()
	if all.State() != Completed {
		t.Fatalf("state = %s, want completed", all.State())
	}
	vs, err := all.Wait(context.Background())
	if err != nil || len(vs) != 0 {
		t.Fatalf("Wait = (%v, %v), want empty slice", vs, err)
	}
}

func TestAllOfWaitsForStragglers(t *testing.T) {
	t.Parallel()
	pa, pb := NewPromise[int](), NewPromise[int]()
	all := AllOf(pa.Task(), pb.Task())
	if err := pa.Fail(errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	// one input down must not short-circuit the aggregate
	if st := all.State(); st.Terminal() {
		t.Fatalf("settled at %s with an input still pending", st)
	}
	if err := pb.Complete(2); err != nil {
		t.Fatal(err)
	}
	if all.State() != Faulted {
		t.Fatalf("state = %s, want faulted", all.State())
	}
}

func TestAnyOfFirstCompletionWins(t *testing.T) {
	t.Parallel()
	pa, pb := NewPromise[int](), NewPromise[int]()
	any := AnyOf(pa.Task(), pb.Task())
	if err := pa.Fail(errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	if st := any.State(); st.Terminal() {
		t.Fatalf("settled at %s before any completion", st)
	}
	if err := pb.Complete(9); err != nil {
		t.Fatal(err)
	}
	v, err := any.Wait(context.Background())
	if err != nil || v != 9 {
		t.Fatalf("Wait = (%d, %v), want (9, nil)", v, err)
	}
}

func TestAnyOfAllLostCollectsMarkers(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	pa, pb := NewPromise[int](), NewPromise[int]()
	any := AnyOf(pa.Task(), pb.Task())
	if err := pb.Fail(boom); err != nil {
		t.Fatal(err)
	}
	if err := pa.Cancel(); err != nil {
		t.Fatal(err)
	}
	fs := any.Failures()
	if len(fs) != 2 {
		t.Fatalf("failures = %v, want two markers", fs)
	}
	var ce *CancelError
	if !errors.As(fs[0], &ce) || ce.Task != pa.Task().ID() {
		t.Fatalf("first marker = %v, want cancel marker for input one", fs[0])
	}
	if !errors.Is(fs[1], boom) {
		t.Fatalf("second marker = %v, want boom", fs[1])
	}
}

func TestAnyOfEmptyFaults(t *testing.T) {
	t.Parallel()
	any := AnyOf[int]()
	if !errors.Is(any.Err(), ErrInvalidOp) {
		t.Fatalf("Err = %v, want invalid operation", any.Err())
	}
}

func TestContinueWithSeesTerminalTask(t *testing.T) {
	t.Parallel()
	s := NewScheduler(WithWorkers(1))
	defer s.Close()
	p := NewPromise[int]()
	if err := p.Complete(21); err != nil {
		t.Fatal(err)
	}
	cont := ContinueWith(s, p.Task(), func(ex *Exec, prev *Task[int]) (int, error) {
		if !prev.State().Terminal() {
			return 0, errors.New("continuation ran before its antecedent settled")
		}
		v, err := prev.Wait(ex.Context())
		if err != nil {
			return 0, err
		}
		return v * 2, nil
	})
	v, err := cont.Wait(context.Background())
	if err != nil || v != 42 {
		t.Fatalf("Wait = (%d, %v), want (42, nil)", v, err)
	}
}

func TestContinueWithInspectsAllFailures(t *testing.T) {
	t.Parallel()
	s := NewScheduler(WithWorkers(1))
	defer s.Close()
	pa, pb := NewPromise[int](), NewPromise[int]()
	all := AllOf(pa.Task(), pb.Task())
	if err := pa.Fail(errors.New("first")); err != nil {
		t.Fatal(err)
	}
	if err := pb.Fail(errors.New("second")); err != nil {
		t.Fatal(err)
	}
	cont := ContinueWith(s, all, func(_ *Exec, prev *Task[[]int]) (int, error) {
		return len(prev.Failures()), nil
	})
	n, err := cont.Wait(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("failure count = (%d, %v), want (2, nil)", n, err)
	}
}

func TestContinueWithOrderPreserved(t *testing.T) {
	t.Parallel()
	s := NewScheduler(WithWorkers(1))
	defer s.Close()
	p := NewPromise[int]()
	var order []string
	c1 := ContinueWith(s, p.Task(), func(*Exec, *Task[int]) (int, error) {
		order = append(order, "first")
		return 0, nil
	})
	c2 := ContinueWith(s, p.Task(), func(*Exec, *Task[int]) (int, error) {
		order = append(order, "second")
		return 0, nil
	})
	if err := p.Complete(0); err != nil {
		t.Fatal(err)
	}
	awaitDone(t, c1.Done())
	awaitDone(t, c2.Done())
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}

func TestContinueWithOnClosedSchedulerFaults(t *testing.T) {
	t.Parallel()
	s := NewScheduler(WithWorkers(1))
	s.Close()
	p := NewPromise[int]()
	cont := ContinueWith(s, p.Task(), func(*Exec, *Task[int]) (int, error) {
		return 1, nil
	})
	if err := p.Complete(0); err != nil {
		t.Fatal(err)
	}
	awaitDone(t, cont.Done())
	if !errors.Is(cont.Err(), ErrClosed) {
		t.Fatalf("Err = %v, want scheduler closed", cont.Err())
	}
}
