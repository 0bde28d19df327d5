// task_manager.go implements TaskManager, the FIFO admission scheduler binding tasks to a fixed pool of slots.

// Package taskmanager provides a scheduler that runs at most N tasks at once,
// each bound to one slot of a fixed pool for as long as it runs.
package taskmanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/experimental/errmon"
	"github.com/xaionaro-go/rawpipeline/internal"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/task"
	"github.com/xaionaro-go/rawpipeline/types"
	"github.com/xaionaro-go/xsync"
)

// Starter starts the work of an admitted task on its slot. It is called
// without the scheduler lock held; an error rejects the task.
type Starter[P, T, S any] interface {
	StartTask(ctx context.Context, t *task.Task[P, T], slot S) error
}

// Ender is optionally implemented by a Starter to observe a slot getting
// released by a consumed task.
type Ender[P, T, S any] interface {
	EndTask(ctx context.Context, t *task.Task[P, T], slot S)
}

type admission[P, T, S any] struct {
	Task *task.Task[P, T]
	Slot S
}

type TaskManager[P, T, S any] struct {
	starter         Starter[P, T, S]
	maxRunningTasks int

	locker    xsync.Mutex
	slots     []S
	freeSlots []int
	assigned  map[*task.Task[P, T]]int
	queue     []*task.Task[P, T]
	completed completionTracker[P, T]
}

var _ task.Owner[struct{}, struct{}] = (*TaskManager[struct{}, struct{}, struct{}])(nil)

// New returns a scheduler running up to len(slots) tasks at once.
func New[P, T, S any](
	starter Starter[P, T, S],
	slots []S,
) (*TaskManager[P, T, S], error) {
	return NewWithLimit(starter, slots, len(slots))
}

// NewWithLimit returns a scheduler running up to maxRunningTasks tasks at
// once; the limit must be within [1, len(slots)].
func NewWithLimit[P, T, S any](
	starter Starter[P, T, S],
	slots []S,
	maxRunningTasks int,
) (*TaskManager[P, T, S], error) {
	if len(slots) == 0 {
		return nil, types.ErrConfiguration{Reason: "the slot pool is empty"}
	}
	if maxRunningTasks < 1 || maxRunningTasks > len(slots) {
		return nil, types.ErrConfiguration{
			Reason: fmt.Sprintf("the maximal amount of running tasks must be within [1, %d], but is %d", len(slots), maxRunningTasks),
		}
	}
	if starter == nil {
		return nil, types.ErrConfiguration{Reason: "no task starter"}
	}
	m := &TaskManager[P, T, S]{
		starter:         starter,
		maxRunningTasks: maxRunningTasks,
		slots:           append([]S{}, slots...),
		freeSlots:       make([]int, 0, len(slots)),
		assigned:        map[*task.Task[P, T]]int{},
		completed:       newCompletionTracker[P, T](),
	}
	for idx := len(slots) - 1; idx >= 0; idx-- {
		m.freeSlots = append(m.freeSlots, idx)
	}
	return m, nil
}

func (m *TaskManager[P, T, S]) String() string {
	return fmt.Sprintf("TaskManager(%d/%d)", m.RunningCount(), m.maxRunningTasks)
}

func (m *TaskManager[P, T, S]) MaxRunningTasks() int {
	return m.maxRunningTasks
}

func (m *TaskManager[P, T, S]) RunningCount() int {
	return xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &m.locker, func() int {
		return len(m.assigned)
	})
}

func (m *TaskManager[P, T, S]) QueuedCount() int {
	return xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &m.locker, func() int {
		return len(m.queue)
	})
}

// SlotOf returns the slot the task is bound to, if it is running.
func (m *TaskManager[P, T, S]) SlotOf(t *task.Task[P, T]) (S, bool) {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR2(ctx, &m.locker, func() (S, bool) {
		idx, ok := m.assigned[t]
		if !ok {
			var zero S
			return zero, false
		}
		return m.slots[idx], true
	})
}

// Slots returns the whole pool, free and bound slots alike.
func (m *TaskManager[P, T, S]) Slots() []S {
	return append([]S{}, m.slots...)
}

// Enqueue appends the task to the queue and admits as many queued tasks as
// there are free slots.
func (m *TaskManager[P, T, S]) Enqueue(
	ctx context.Context,
	t *task.Task[P, T],
) {
	logger.Tracef(ctx, "Enqueue(ctx, %s)", t)
	defer func() { logger.Tracef(ctx, "/Enqueue(ctx, %s)", t) }()

	admissions := xsync.DoR1(ctx, &m.locker, func() []admission[P, T, S] {
		m.queue = append(m.queue, t)
		return m.tryStartLocked(ctx)
	})
	m.startAdmitted(ctx, admissions)
}

// tryStartLocked pops queued tasks in FIFO order while the concurrency bound
// allows and binds each of them to a free slot.
func (m *TaskManager[P, T, S]) tryStartLocked(ctx context.Context) []admission[P, T, S] {
	var admissions []admission[P, T, S]
	for len(m.assigned) < m.maxRunningTasks && len(m.queue) > 0 {
		t := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]

		if err := t.MarkRunning(ctx); err != nil {
			// cancelled by the caller while queued
			logger.Debugf(ctx, "not admitting %s: %v", t, err)
			m.completed.rotateChangeChan()
			continue
		}

		internal.Assert(ctx, len(m.freeSlots) > 0, "a free slot for every admission", len(m.assigned), m.maxRunningTasks)
		slotIdx := m.freeSlots[len(m.freeSlots)-1]
		m.freeSlots = m.freeSlots[:len(m.freeSlots)-1]
		m.assigned[t] = slotIdx
		m.completed.register(t)
		admissions = append(admissions, admission[P, T, S]{Task: t, Slot: m.slots[slotIdx]})
	}
	internal.Assert(ctx, len(m.assigned) <= m.maxRunningTasks, "running <= max", len(m.assigned), m.maxRunningTasks)
	internal.Assert(ctx, len(m.assigned)+len(m.freeSlots) == len(m.slots), "assigned + free == slots", len(m.assigned), len(m.freeSlots), len(m.slots))
	return admissions
}

func (m *TaskManager[P, T, S]) startAdmitted(
	ctx context.Context,
	admissions []admission[P, T, S],
) {
	for _, a := range admissions {
		t := a.Task
		if err := t.OnDone(ctx, m.onTaskDone); err != nil {
			logger.Errorf(ctx, "unable to watch the completion of %s: %v", t, err)
		}
		logger.Debugf(ctx, "started %s", t)
		err := m.starter.StartTask(ctx, t, a.Slot)
		if err == nil {
			continue
		}
		logger.Debugf(ctx, "unable to start %s: %v", t, err)
		if rejectErr := t.Reject(ctx, err); rejectErr != nil {
			logger.Debugf(ctx, "unable to reject %s: %v", t, rejectErr)
		}
	}
}

func (m *TaskManager[P, T, S]) onTaskDone(
	ctx context.Context,
	t *task.Task[P, T],
	success bool,
) {
	logger.Debugf(ctx, "%s is done (success: %t)", t, success)
	m.locker.Do(ctx, func() {
		m.completed.complete(t)
	})
}

// ClearQueue cancels every task that was not admitted yet. Running tasks are
// not affected.
func (m *TaskManager[P, T, S]) ClearQueue(ctx context.Context) {
	logger.Tracef(ctx, "ClearQueue")
	defer func() { logger.Tracef(ctx, "/ClearQueue") }()

	queue := xsync.DoR1(ctx, &m.locker, func() []*task.Task[P, T] {
		queue := m.queue
		m.queue = nil
		m.completed.rotateChangeChan()
		return queue
	})
	for _, t := range queue {
		if err := t.Cancel(ctx); err != nil {
			logger.Debugf(ctx, "unable to cancel %s: %v", t, err)
		}
	}
}

// EndTask releases the slot of the task and admits the next queued task.
// Tasks that were never admitted are ignored.
func (m *TaskManager[P, T, S]) EndTask(
	ctx context.Context,
	t *task.Task[P, T],
) {
	logger.Tracef(ctx, "EndTask(ctx, %s)", t)
	defer func() { logger.Tracef(ctx, "/EndTask(ctx, %s)", t) }()

	var (
		slot     S
		wasBound bool
	)
	admissions := xsync.DoR1(ctx, &m.locker, func() []admission[P, T, S] {
		var slotIdx int
		slotIdx, wasBound = m.assigned[t]
		if !wasBound {
			return nil
		}
		delete(m.assigned, t)
		m.freeSlots = append(m.freeSlots, slotIdx)
		slot = m.slots[slotIdx]
		return m.tryStartLocked(ctx)
	})
	if wasBound {
		if ender, ok := m.starter.(Ender[P, T, S]); ok {
			ender.EndTask(ctx, t, slot)
		}
	}
	m.startAdmitted(ctx, admissions)
}

// ConsumeRemaining consumes every task that was admitted but not consumed
// yet, so that every slot is released. Errors of the tasks are not returned;
// the values of the resolved tasks are.
func (m *TaskManager[P, T, S]) ConsumeRemaining(ctx context.Context) []T {
	logger.Tracef(ctx, "ConsumeRemaining")
	defer func() { logger.Tracef(ctx, "/ConsumeRemaining") }()

	running := xsync.DoR1(ctx, &m.locker, func() []*task.Task[P, T] {
		running := make([]*task.Task[P, T], 0, len(m.assigned))
		for t := range m.assigned {
			running = append(running, t)
		}
		return running
	})

	var values []T
	for _, t := range running {
		v, err := t.Consume(ctx)
		switch {
		case err == nil:
			values = append(values, v)
		case errors.Is(err, task.ErrCancelled), errors.Is(err, task.ErrConsumed):
			logger.Debugf(ctx, "%s: %v", t, err)
		default:
			errmon.ObserveErrorCtx(ctx, fmt.Errorf("%s: %w", t, err))
		}
	}
	return values
}
