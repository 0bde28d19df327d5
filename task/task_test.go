package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	assertT "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dummyOwner struct {
	locker       sync.Mutex
	EndTaskCount int
}

func (o *dummyOwner) EndTask(ctx context.Context, t *Task[int, string]) {
	o.locker.Lock()
	defer o.locker.Unlock()
	o.EndTaskCount++
}

func TestResolveConsume(t *testing.T) {
	ctx := context.Background()
	owner := &dummyOwner{}
	tsk := New[int, string](owner, 42)
	require.Equal(t, StatePending, tsk.State())
	require.Equal(t, 42, tsk.Params())

	require.NoError(t, tsk.MarkRunning(ctx))
	require.Equal(t, StateRunning, tsk.State())
	require.Error(t, tsk.MarkRunning(ctx))

	go func() {
		time.Sleep(10 * time.Millisecond)
		assertT.NoError(t, tsk.Resolve(ctx, "frame"))
	}()

	v, err := tsk.Consume(ctx)
	require.NoError(t, err)
	require.Equal(t, "frame", v)
	require.True(t, tsk.IsDone())
	require.True(t, tsk.IsConsumed())
	require.Equal(t, 1, owner.EndTaskCount)

	for range 2 {
		_, err = tsk.Consume(ctx)
		require.ErrorIs(t, err, ErrConsumed)
	}
	require.Equal(t, 1, owner.EndTaskCount)

	require.ErrorIs(t, tsk.Resolve(ctx, "again"), ErrConsumed)
	require.ErrorIs(t, tsk.OnDone(ctx, func(context.Context, *Task[int, string], bool) {}), ErrConsumed)
}

func TestRejectConsumeStillEndsTask(t *testing.T) {
	ctx := context.Background()
	owner := &dummyOwner{}
	tsk := New[int, string](owner, 0)
	myErr := errors.New("read failed")

	require.NoError(t, tsk.Reject(ctx, myErr))
	require.ErrorAs(t, tsk.Resolve(ctx, "late"), &ErrAlreadyDone{})
	require.Equal(t, StateRejected, tsk.State())

	_, err := tsk.Consume(ctx)
	require.ErrorIs(t, err, myErr)
	require.Equal(t, 1, owner.EndTaskCount)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	owner := &dummyOwner{}
	tsk := New[int, string](owner, 0)

	require.NoError(t, tsk.Cancel(ctx))
	require.True(t, tsk.IsCancelled())
	require.ErrorAs(t, tsk.Cancel(ctx), &ErrAlreadyDone{})

	_, err := tsk.Consume(ctx)
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, 1, owner.EndTaskCount)
}

func TestCancelRunningIsARequest(t *testing.T) {
	ctx := context.Background()
	owner := &dummyOwner{}
	tsk := New[int, string](owner, 0)
	require.NoError(t, tsk.MarkRunning(ctx))

	require.NoError(t, tsk.Cancel(ctx))
	require.True(t, tsk.IsCancelRequested())
	require.Equal(t, StateRunning, tsk.State())

	consumeCtx, cancelFn := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancelFn()
	_, err := tsk.Consume(consumeCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, owner.EndTaskCount)

	require.NoError(t, tsk.Abort(ctx))
	require.True(t, tsk.IsCancelled())
	require.ErrorAs(t, tsk.Cancel(ctx), &ErrAlreadyDone{})

	_, err = tsk.Consume(ctx)
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, 1, owner.EndTaskCount)
	require.ErrorIs(t, tsk.Cancel(ctx), ErrConsumed)
}

func TestOnDone(t *testing.T) {
	ctx := context.Background()
	tsk := New[int, string](nil, 0)

	var results []bool
	require.NoError(t, tsk.OnDone(ctx, func(_ context.Context, _ *Task[int, string], success bool) {
		results = append(results, success)
	}))
	require.Empty(t, results)

	require.NoError(t, tsk.Resolve(ctx, "ok"))
	require.Equal(t, []bool{true}, results)

	require.NoError(t, tsk.OnDone(ctx, func(_ context.Context, _ *Task[int, string], success bool) {
		results = append(results, success)
	}))
	require.Equal(t, []bool{true, true}, results)

	failed := New[int, string](nil, 0)
	require.NoError(t, failed.Cancel(ctx))
	require.NoError(t, failed.OnDone(ctx, func(_ context.Context, _ *Task[int, string], success bool) {
		results = append(results, success)
	}))
	require.Equal(t, []bool{true, true, false}, results)
}

func TestConsumeContextDone(t *testing.T) {
	owner := &dummyOwner{}
	tsk := New[int, string](owner, 0)

	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelFn()
	_, err := tsk.Consume(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, tsk.IsConsumed())
	require.Equal(t, 0, owner.EndTaskCount)

	require.NoError(t, tsk.Resolve(context.Background(), "ok"))
	v, err := tsk.Consume(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestConcurrentConsumeOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	owner := &dummyOwner{}
	tsk := New[int, string](owner, 0)

	const consumers = 8
	errCh := make(chan error, consumers)
	var wg sync.WaitGroup
	for range consumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tsk.Consume(ctx)
			errCh <- err
		}()
	}
	require.NoError(t, tsk.Resolve(ctx, "x"))
	wg.Wait()
	close(errCh)

	var succeeded int
	for err := range errCh {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrConsumed)
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, owner.EndTaskCount)
}
