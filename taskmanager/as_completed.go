package taskmanager

import (
	"context"
	"iter"

	"github.com/xaionaro-go/rawpipeline/task"
)

// completionTracker is guarded by the TaskManager lock.
type completionTracker[P, T any] struct {
	running    map[*task.Task[P, T]]struct{}
	completed  []*task.Task[P, T]
	changeChan chan struct{}
}

func newCompletionTracker[P, T any]() completionTracker[P, T] {
	return completionTracker[P, T]{
		running:    map[*task.Task[P, T]]struct{}{},
		changeChan: make(chan struct{}),
	}
}

func (c *completionTracker[P, T]) register(t *task.Task[P, T]) {
	c.running[t] = struct{}{}
	c.rotateChangeChan()
}

func (c *completionTracker[P, T]) complete(t *task.Task[P, T]) {
	if _, ok := c.running[t]; !ok {
		return
	}
	delete(c.running, t)
	c.completed = append(c.completed, t)
	c.rotateChangeChan()
}

func (c *completionTracker[P, T]) rotateChangeChan() {
	close(c.changeChan)
	c.changeChan = make(chan struct{})
}

// CompletedIterator yields admitted tasks in the order they reach a terminal
// state. All the iterators of a TaskManager share one completion queue, so
// every completed task is yielded once in total. Tasks consumed before they
// are reached are not yielded.
type CompletedIterator[P, T, S any] struct {
	m *TaskManager[P, T, S]
}

// AsCompleted returns an iterator over the admitted tasks in completion order.
func (m *TaskManager[P, T, S]) AsCompleted() *CompletedIterator[P, T, S] {
	return &CompletedIterator[P, T, S]{m: m}
}

// Next blocks until a task completes and returns it. It returns false once
// nothing is running or queued and every completed task was yielded, or if
// ctx is done.
func (it *CompletedIterator[P, T, S]) Next(ctx context.Context) (*task.Task[P, T], bool) {
	m := it.m
	for {
		var (
			next       *task.Task[P, T]
			isFinished bool
			changeChan <-chan struct{}
		)
		m.locker.Do(ctx, func() {
			c := &m.completed
			if len(c.completed) > 0 {
				next = c.completed[0]
				c.completed[0] = nil
				c.completed = c.completed[1:]
				return
			}
			if len(c.running) == 0 && len(m.queue) == 0 {
				isFinished = true
				return
			}
			changeChan = c.changeChan
		})
		switch {
		case next != nil && next.IsConsumed():
			// consumed without the iterator
			continue
		case next != nil:
			return next, true
		case isFinished:
			return nil, false
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-changeChan:
		}
	}
}

// All adapts the iterator to a range-over-func sequence.
func (it *CompletedIterator[P, T, S]) All(ctx context.Context) iter.Seq[*task.Task[P, T]] {
	return func(yield func(*task.Task[P, T]) bool) {
		for {
			t, ok := it.Next(ctx)
			if !ok {
				return
			}
			if !yield(t) {
				return
			}
		}
	}
}
