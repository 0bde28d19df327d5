package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	assertT "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/rawpipeline/task"
	"github.com/xaionaro-go/rawpipeline/types"
	"go.uber.org/atomic"
)

type testTask = task.Task[int, string]

type dummySlot struct {
	ID    int
	InUse atomic.Bool
}

type Dummy struct {
	StartTaskFn func(ctx context.Context, t *testTask, slot *dummySlot) error
	EndTaskFn   func(ctx context.Context, t *testTask, slot *dummySlot)

	StartTaskCallCount atomic.Int64
	EndTaskCallCount   atomic.Int64
}

var (
	_ Starter[int, string, *dummySlot] = (*Dummy)(nil)
	_ Ender[int, string, *dummySlot]   = (*Dummy)(nil)
)

func (d *Dummy) StartTask(ctx context.Context, t *testTask, slot *dummySlot) error {
	d.StartTaskCallCount.Inc()
	if d.StartTaskFn == nil {
		return nil
	}
	return d.StartTaskFn(ctx, t, slot)
}

func (d *Dummy) EndTask(ctx context.Context, t *testTask, slot *dummySlot) {
	d.EndTaskCallCount.Inc()
	if d.EndTaskFn == nil {
		return
	}
	d.EndTaskFn(ctx, t, slot)
}

func newSlots(n int) []*dummySlot {
	slots := make([]*dummySlot, n)
	for i := range slots {
		slots[i] = &dummySlot{ID: i}
	}
	return slots
}

func TestNewConfigurationErrors(t *testing.T) {
	_, err := New[int, string](&Dummy{}, []*dummySlot{})
	require.ErrorAs(t, err, &types.ErrConfiguration{})

	_, err = NewWithLimit[int, string](&Dummy{}, newSlots(2), 0)
	require.ErrorAs(t, err, &types.ErrConfiguration{})

	_, err = NewWithLimit[int, string](&Dummy{}, newSlots(2), 3)
	require.ErrorAs(t, err, &types.ErrConfiguration{})

	m, err := NewWithLimit[int, string](&Dummy{}, newSlots(3), 2)
	require.NoError(t, err)
	require.Equal(t, 2, m.MaxRunningTasks())
}

func TestConcurrencyBound(t *testing.T) {
	ctx := context.Background()

	for _, k := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			var (
				running    atomic.Int64
				maxRunning atomic.Int64
				m          *TaskManager[int, string, *dummySlot]
			)
			d := &Dummy{
				StartTaskFn: func(ctx context.Context, tsk *testTask, slot *dummySlot) error {
					if !slot.InUse.CompareAndSwap(false, true) {
						return fmt.Errorf("slot %d is bound twice", slot.ID)
					}
					cur := running.Inc()
					for {
						prev := maxRunning.Load()
						if cur <= prev || maxRunning.CompareAndSwap(prev, cur) {
							break
						}
					}
					go func() {
						time.Sleep(time.Duration(rand.IntN(3)) * time.Millisecond)
						running.Dec()
						_ = tsk.Resolve(ctx, fmt.Sprint(tsk.Params()))
					}()
					return nil
				},
				EndTaskFn: func(ctx context.Context, tsk *testTask, slot *dummySlot) {
					slot.InUse.Store(false)
				},
			}
			var err error
			m, err = New[int, string](d, newSlots(k))
			require.NoError(t, err)

			const n = 20
			tasks := make([]*testTask, n)
			for i := range tasks {
				tasks[i] = task.New[int, string](m, i)
				m.Enqueue(ctx, tasks[i])
				require.LessOrEqual(t, m.RunningCount(), k)
			}

			var wg sync.WaitGroup
			for i, tsk := range tasks {
				wg.Add(1)
				go func() {
					defer wg.Done()
					v, err := tsk.Consume(ctx)
					assertT.NoError(t, err)
					assertT.Equal(t, fmt.Sprint(i), v)
				}()
			}
			wg.Wait()

			require.LessOrEqual(t, maxRunning.Load(), int64(k))
			require.Equal(t, int64(n), d.StartTaskCallCount.Load())
			require.Equal(t, int64(n), d.EndTaskCallCount.Load())
			require.Zero(t, m.RunningCount())
			require.Zero(t, m.QueuedCount())
		})
	}
}

func TestAdmissionIsFIFO(t *testing.T) {
	ctx := context.Background()
	var (
		locker  sync.Mutex
		started []int
	)
	d := &Dummy{
		StartTaskFn: func(ctx context.Context, tsk *testTask, slot *dummySlot) error {
			locker.Lock()
			defer locker.Unlock()
			started = append(started, tsk.Params())
			return nil
		},
	}
	m, err := New[int, string](d, newSlots(1))
	require.NoError(t, err)

	tasks := make([]*testTask, 5)
	for i := range tasks {
		tasks[i] = task.New[int, string](m, i)
		m.Enqueue(ctx, tasks[i])
	}
	require.Equal(t, 1, m.RunningCount())
	require.Equal(t, 4, m.QueuedCount())

	for _, tsk := range tasks {
		require.NoError(t, tsk.Resolve(ctx, "ok"))
		_, err := tsk.Consume(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, started)
}

func TestClearQueueCancelsAllQueued(t *testing.T) {
	ctx := context.Background()
	m, err := New[int, string](&Dummy{}, newSlots(2))
	require.NoError(t, err)

	blockers := []*testTask{task.New[int, string](m, -1), task.New[int, string](m, -2)}
	for _, tsk := range blockers {
		m.Enqueue(ctx, tsk)
	}

	queued := make([]*testTask, 6)
	for i := range queued {
		queued[i] = task.New[int, string](m, i)
		m.Enqueue(ctx, queued[i])
	}
	require.Equal(t, 6, m.QueuedCount())

	m.ClearQueue(ctx)
	require.Zero(t, m.QueuedCount())
	require.Equal(t, 2, m.RunningCount())
	for _, tsk := range queued {
		require.Equal(t, task.StateCancelled, tsk.State())
		_, err := tsk.Consume(ctx)
		require.ErrorIs(t, err, task.ErrCancelled)
	}

	// consuming never-admitted tasks must not free the slots of the running ones
	require.Equal(t, 2, m.RunningCount())
	for _, tsk := range blockers {
		require.Equal(t, task.StateRunning, tsk.State())
	}
}

func TestStartErrorRejects(t *testing.T) {
	ctx := context.Background()
	startErr := errors.New("cannot create the read job")
	d := &Dummy{
		StartTaskFn: func(ctx context.Context, tsk *testTask, slot *dummySlot) error {
			if tsk.Params() == 0 {
				return startErr
			}
			return tsk.Resolve(ctx, "ok")
		},
	}
	m, err := New[int, string](d, newSlots(1))
	require.NoError(t, err)

	failing := task.New[int, string](m, 0)
	next := task.New[int, string](m, 1)
	m.Enqueue(ctx, failing)
	m.Enqueue(ctx, next)
	require.Equal(t, task.StateRejected, failing.State())
	require.Equal(t, task.StatePending, next.State())

	_, err = failing.Consume(ctx)
	require.ErrorIs(t, err, startErr)

	v, err := next.Consume(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestSkipsTasksCancelledWhileQueued(t *testing.T) {
	ctx := context.Background()
	d := &Dummy{}
	m, err := New[int, string](d, newSlots(1))
	require.NoError(t, err)

	first := task.New[int, string](m, 0)
	cancelled := task.New[int, string](m, 1)
	last := task.New[int, string](m, 2)
	m.Enqueue(ctx, first)
	m.Enqueue(ctx, cancelled)
	m.Enqueue(ctx, last)
	require.NoError(t, cancelled.Cancel(ctx))

	require.NoError(t, first.Resolve(ctx, "ok"))
	_, err = first.Consume(ctx)
	require.NoError(t, err)

	require.Equal(t, task.StateRunning, last.State())
	slot, ok := m.SlotOf(last)
	require.True(t, ok)
	require.Equal(t, 0, slot.ID)
	require.Equal(t, int64(2), d.StartTaskCallCount.Load())
}

func TestAsCompleted(t *testing.T) {
	ctx := context.Background()
	m, err := New[int, string](&Dummy{}, newSlots(3))
	require.NoError(t, err)

	tasks := make([]*testTask, 3)
	for i := range tasks {
		tasks[i] = task.New[int, string](m, i)
		m.Enqueue(ctx, tasks[i])
	}

	go func() {
		for _, idx := range []int{2, 0, 1} {
			time.Sleep(5 * time.Millisecond)
			_ = tasks[idx].Resolve(ctx, "ok")
		}
	}()

	var order []int
	for tsk := range m.AsCompleted().All(ctx) {
		order = append(order, tsk.Params())
		_, err := tsk.Consume(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, []int{2, 0, 1}, order)

	_, ok := m.AsCompleted().Next(ctx)
	require.False(t, ok)
}

func TestAsCompletedSkipsConsumed(t *testing.T) {
	ctx := context.Background()
	m, err := New[int, string](&Dummy{}, newSlots(2))
	require.NoError(t, err)

	consumed := task.New[int, string](m, 0)
	other := task.New[int, string](m, 1)
	m.Enqueue(ctx, consumed)
	m.Enqueue(ctx, other)

	require.NoError(t, consumed.Resolve(ctx, "ok"))
	_, err = consumed.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, other.Resolve(ctx, "ok"))

	tsk, ok := m.AsCompleted().Next(ctx)
	require.True(t, ok)
	require.Equal(t, other, tsk)
}

func TestAsCompletedAdmitsQueued(t *testing.T) {
	ctx := context.Background()
	d := &Dummy{
		StartTaskFn: func(ctx context.Context, tsk *testTask, slot *dummySlot) error {
			go func() { _ = tsk.Resolve(ctx, "ok") }()
			return nil
		},
	}
	m, err := New[int, string](d, newSlots(2))
	require.NoError(t, err)
	for i := range 7 {
		m.Enqueue(ctx, task.New[int, string](m, i))
	}

	seen := map[int]struct{}{}
	for tsk := range m.AsCompleted().All(ctx) {
		seen[tsk.Params()] = struct{}{}
		_, err := tsk.Consume(ctx)
		require.NoError(t, err)
	}
	require.Len(t, seen, 7)
}

func TestAsCompletedContextDone(t *testing.T) {
	m, err := New[int, string](&Dummy{}, newSlots(1))
	require.NoError(t, err)
	m.Enqueue(context.Background(), task.New[int, string](m, 0))

	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelFn()
	_, ok := m.AsCompleted().Next(ctx)
	require.False(t, ok)
}

func TestConsumeRemaining(t *testing.T) {
	ctx := context.Background()
	d := &Dummy{}
	m, err := New[int, string](d, newSlots(3))
	require.NoError(t, err)

	tasks := make([]*testTask, 5)
	for i := range tasks {
		tasks[i] = task.New[int, string](m, i)
		m.Enqueue(ctx, tasks[i])
	}
	m.ClearQueue(ctx)

	require.NoError(t, tasks[0].Resolve(ctx, "zero"))
	require.NoError(t, tasks[1].Reject(ctx, errors.New("decode failed")))
	require.NoError(t, tasks[2].Abort(ctx))

	values := m.ConsumeRemaining(ctx)
	require.Equal(t, []string{"zero"}, values)
	require.Zero(t, m.RunningCount())
	for _, tsk := range tasks {
		require.True(t, tsk.IsConsumed() || tsk.IsCancelled())
	}
	require.Equal(t, int64(3), d.EndTaskCallCount.Load())
}
