// task.go implements Task, the user-visible promise of a frame's pipeline result.

// Package task provides a promise with an explicit state machine:
// Pending -> Running -> {Resolved, Rejected, Cancelled}, consumable exactly once.
package task

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/xsync"
)

// Owner is notified when a task is consumed, so it can release whatever the
// task was holding (e.g. a slot) and admit the next one.
type Owner[P, T any] interface {
	EndTask(ctx context.Context, t *Task[P, T])
}

// DoneCallback is called once the task reached a terminal state.
type DoneCallback[P, T any] func(ctx context.Context, t *Task[P, T], success bool)

type Task[P, T any] struct {
	id     uuid.UUID
	owner  Owner[P, T]
	params P

	locker          xsync.Mutex
	state           State
	consumed        bool
	cancelRequested bool
	value     T
	err       error
	callbacks []DoneCallback[P, T]
	doneCh    chan struct{}
}

// New returns a pending task; owner may be nil.
func New[P, T any](owner Owner[P, T], params P) *Task[P, T] {
	return &Task[P, T]{
		id:     uuid.New(),
		owner:  owner,
		params: params,
		state:  StatePending,
		doneCh: make(chan struct{}),
	}
}

func (t *Task[P, T]) String() string {
	return fmt.Sprintf("Task(%s)", t.id)
}

func (t *Task[P, T]) ID() uuid.UUID {
	return t.id
}

func (t *Task[P, T]) Params() P {
	return t.params
}

func (t *Task[P, T]) State() State {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &t.locker, func() State {
		return t.state
	})
}

func (t *Task[P, T]) IsDone() bool {
	return t.State().IsTerminal()
}

func (t *Task[P, T]) IsCancelled() bool {
	return t.State() == StateCancelled
}

// IsCancelRequested returns true if Cancel was called while the task was
// running and the pipeline has not settled it yet.
func (t *Task[P, T]) IsCancelRequested() bool {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &t.locker, func() bool {
		return t.cancelRequested
	})
}

func (t *Task[P, T]) IsConsumed() bool {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &t.locker, func() bool {
		return t.consumed
	})
}

// Done returns a channel closed when the task reaches a terminal state.
func (t *Task[P, T]) Done() <-chan struct{} {
	return t.doneCh
}

// MarkRunning moves a pending task to the running state.
func (t *Task[P, T]) MarkRunning(ctx context.Context) error {
	return xsync.DoR1(ctx, &t.locker, func() error {
		if t.consumed {
			return ErrConsumed
		}
		if t.state != StatePending {
			return ErrInvalidTransition{From: t.state, To: StateRunning}
		}
		t.state = StateRunning
		return nil
	})
}

func (t *Task[P, T]) Resolve(ctx context.Context, value T) error {
	return t.finish(ctx, StateResolved, value, nil)
}

func (t *Task[P, T]) Reject(ctx context.Context, err error) error {
	var zero T
	return t.finish(ctx, StateRejected, zero, err)
}

// Cancel cancels a pending task right away. A running task still has jobs
// using the buffers of its slot, so for it only a request is recorded: the
// pipeline driving the task aborts it at its next stage boundary, and
// Consume returns ErrCancelled once that happened.
func (t *Task[P, T]) Cancel(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Cancel[%s]", t.id)
	defer func() { logger.Tracef(ctx, "/Cancel[%s]: %v", t.id, _err) }()

	for {
		isRunning, err := xsync.DoR2(ctx, &t.locker, func() (bool, error) {
			switch {
			case t.consumed:
				return false, ErrConsumed
			case t.state.IsTerminal():
				return false, ErrAlreadyDone{State: t.state}
			case t.state == StateRunning:
				t.cancelRequested = true
				return true, nil
			}
			return false, nil
		})
		if err != nil || isRunning {
			return err
		}
		var zero T
		err = t.finish(ctx, StateCancelled, zero, ErrCancelled, StatePending)
		if !errors.As(err, &ErrInvalidTransition{}) {
			return err
		}
		// admitted meanwhile
	}
}

// Abort moves a task to the cancelled state whether it is pending or
// running. It is for the pipeline driving the task: no job of the task may
// be in flight when it is called.
func (t *Task[P, T]) Abort(ctx context.Context) error {
	var zero T
	return t.finish(ctx, StateCancelled, zero, ErrCancelled)
}

func (t *Task[P, T]) finish(
	ctx context.Context,
	state State,
	value T,
	err error,
	allowedFrom ...State,
) (_err error) {
	logger.Tracef(ctx, "finish[%s](ctx, %s, %v)", t.id, state, err)
	defer func() { logger.Tracef(ctx, "/finish[%s](ctx, %s, %v): %v", t.id, state, err, _err) }()

	callbacks, _err := xsync.DoR2(ctx, &t.locker, func() ([]DoneCallback[P, T], error) {
		if t.consumed {
			return nil, ErrConsumed
		}
		if t.state.IsTerminal() {
			return nil, ErrAlreadyDone{State: t.state}
		}
		if len(allowedFrom) > 0 && !slices.Contains(allowedFrom, t.state) {
			return nil, ErrInvalidTransition{From: t.state, To: state}
		}
		t.state = state
		t.value = value
		t.err = err
		close(t.doneCh)
		return slices.Clone(t.callbacks), nil
	})
	if _err != nil {
		return _err
	}

	success := state == StateResolved
	for _, cb := range callbacks {
		cb(ctx, t, success)
	}
	return nil
}

// OnDone registers a callback for the terminal transition. If the task is
// already terminal, the callback is called immediately.
func (t *Task[P, T]) OnDone(ctx context.Context, cb DoneCallback[P, T]) error {
	state, err := xsync.DoR2(ctx, &t.locker, func() (State, error) {
		if t.consumed {
			return t.state, ErrConsumed
		}
		if !t.state.IsTerminal() {
			t.callbacks = append(t.callbacks, cb)
		}
		return t.state, nil
	})
	if err != nil {
		return err
	}
	if state.IsTerminal() {
		cb(ctx, t, state == StateResolved)
	}
	return nil
}

// Consume waits for the terminal state and returns the value or the error
// the task ended with (ErrCancelled for cancelled tasks). Only the first call
// succeeds in consuming; it always notifies the owner, whatever the outcome.
// If ctx is done before the task is, ctx.Err() is returned and the task stays
// unconsumed.
func (t *Task[P, T]) Consume(ctx context.Context) (_ret T, _err error) {
	logger.Tracef(ctx, "Consume[%s]", t.id)
	defer func() { logger.Tracef(ctx, "/Consume[%s]: %v", t.id, _err) }()

	if t.IsConsumed() {
		return _ret, ErrConsumed
	}

	select {
	case <-ctx.Done():
		return _ret, ctx.Err()
	case <-t.doneCh:
	}

	var isFirst bool
	t.locker.Do(ctx, func() {
		if t.consumed {
			_err = ErrConsumed
			return
		}
		isFirst = true
		t.consumed = true
		_ret, _err = t.value, t.err
		var zero T
		t.value = zero
	})
	if isFirst && t.owner != nil {
		t.owner.EndTask(ctx, t)
	}
	return
}
