package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaionaro-go/rawpipeline/buffermanager"
	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/xsync"
)

// ErrUnknownUserData is returned for a completed job that was not submitted
// through the JobData (or whose data was already popped).
var ErrUnknownUserData = errors.New("the job carries unknown user data")

// UserData is what a job in flight needs to be traced back to.
type UserData struct {
	Slot buffermanager.BufferManager
	Task *Task
}

// jobToken is the only value put into the user data of a job; the typed
// value stays on this side, keyed by the token.
type jobToken uint64

// JobData associates the jobs in flight with typed values.
type JobData[V any] struct {
	locker    xsync.Mutex
	nextToken jobToken
	entries   map[jobToken]V
}

func NewJobData[V any]() *JobData[V] {
	return &JobData[V]{
		entries: map[jobToken]V{},
	}
}

func (d *JobData[V]) put(ctx context.Context, v V) jobToken {
	return xsync.DoR1(ctx, &d.locker, func() jobToken {
		d.nextToken++
		d.entries[d.nextToken] = v
		return d.nextToken
	})
}

func (d *JobData[V]) pop(ctx context.Context, token jobToken) (V, bool) {
	return xsync.DoR2(ctx, &d.locker, func() (V, bool) {
		v, ok := d.entries[token]
		delete(d.entries, token)
		return v, ok
	})
}

// Submit attaches v to the job, submits it and drops the submitter's
// reference to the job. On failure v is detached.
func (d *JobData[V]) Submit(
	ctx context.Context,
	job codec.Job,
	v V,
) (_err error) {
	defer job.Release()

	token := d.put(ctx, v)
	defer func() {
		if _err != nil {
			d.pop(ctx, token)
		}
	}()
	if err := job.SetUserData(token); err != nil {
		return fmt.Errorf("unable to attach the user data to %s: %w", job, err)
	}
	if err := job.Submit(ctx); err != nil {
		return fmt.Errorf("unable to submit %s: %w", job, err)
	}
	return nil
}

// Pop returns the value attached to the completed job and forgets it.
func (d *JobData[V]) Pop(ctx context.Context, job codec.Job) (_ret V, _err error) {
	raw, err := job.PopUserData()
	if err != nil {
		return _ret, fmt.Errorf("unable to get the user data of %s: %w", job, err)
	}
	token, ok := raw.(jobToken)
	if !ok {
		return _ret, fmt.Errorf("%w: %s carries %T", ErrUnknownUserData, job, raw)
	}
	v, ok := d.pop(ctx, token)
	if !ok {
		return _ret, fmt.Errorf("%w: %s carries token %d", ErrUnknownUserData, job, token)
	}
	return v, nil
}

// Len returns the amount of jobs in flight.
func (d *JobData[V]) Len(ctx context.Context) int {
	return xsync.DoR1(ctx, &d.locker, func() int {
		return len(d.entries)
	})
}
