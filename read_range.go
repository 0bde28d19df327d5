package rawpipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ng/container/heap"
	"github.com/go-ng/xsort"
	"github.com/xaionaro-go/rawpipeline/flow"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/tensor"
	"github.com/xaionaro-go/rawpipeline/types"
	"github.com/xaionaro-go/xcontext"
)

var ErrFlowEnded = errors.New("the flow has no more tasks")

// ReadRange decodes the frames [from, to) keeping up to window frames
// enqueued ahead of the first undelivered one, and calls fn in frame order.
// Frames completing early are consumed right away, so their slots serve the
// next frames, and wait in a reorder buffer. The image passed to fn belongs
// to fn.
//
// On return every task enqueued by the call is consumed (cancelled first if
// still in progress), so the task manager can serve another ReadRange.
// Completed tasks not enqueued by the call are skipped and left to whoever
// enqueued them.
func ReadRange(
	ctx context.Context,
	taskManager *flow.TaskManager,
	from, to uint64,
	window int,
	fn func(ctx context.Context, frameIndex uint64, image *tensor.Tensor) error,
	opts ...flow.TaskOption,
) (_err error) {
	logger.Debugf(ctx, "ReadRange(ctx, [%d, %d), %d)", from, to, window)
	defer func() { logger.Debugf(ctx, "/ReadRange(ctx, [%d, %d), %d): %v", from, to, window, _err) }()

	if window < 1 {
		return types.ErrValue{Name: "window", Value: window, Reason: "must be positive"}
	}
	if from > to {
		return types.ErrValue{Name: "range", Value: [2]uint64{from, to}, Reason: "the start is after the end"}
	}

	var (
		ready    xsort.OrderedAsc[uint64]
		pending  = map[uint64]*tensor.Tensor{}
		own      = map[*flow.Task]struct{}{}
		next     = from
		enqueued = from
	)
	defer func() {
		releaseTasks(xcontext.DetachDone(ctx), own)
	}()
	defer func() {
		for frameIndex, img := range pending {
			if err := img.Close(ctx); err != nil {
				logger.Errorf(ctx, "unable to close the image of frame #%d: %v", frameIndex, err)
			}
		}
	}()

	fill := func() error {
		for enqueued < to && enqueued-next < uint64(window) {
			t, err := taskManager.EnqueueTask(ctx, enqueued, opts...)
			if err != nil {
				return fmt.Errorf("unable to enqueue frame #%d: %w", enqueued, err)
			}
			own[t] = struct{}{}
			enqueued++
		}
		return nil
	}
	if err := fill(); err != nil {
		return err
	}

	completed := taskManager.AsCompleted()
	for next < to {
		t, ok := completed.Next(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%w before frame #%d", ErrFlowEnded, next)
		}
		frameIndex := t.Params().FrameIndex
		if _, ok := own[t]; !ok {
			logger.Debugf(ctx, "skipping %s of frame #%d: enqueued elsewhere", t, frameIndex)
			continue
		}
		img, err := t.Consume(ctx)
		if t.IsConsumed() {
			delete(own, t)
		}
		if err != nil {
			return fmt.Errorf("unable to decode frame #%d: %w", frameIndex, err)
		}
		pending[frameIndex] = img
		heap.Push(&ready, frameIndex)

		for len(ready) > 0 && ready[0] == next {
			heap.Pop(&ready)
			img := pending[next]
			delete(pending, next)
			if err := fn(ctx, next, img); err != nil {
				return err
			}
			next++
		}
		if err := fill(); err != nil {
			return err
		}
	}
	return nil
}

// releaseTasks cancels and consumes the tasks, closing the images of the
// ones that were resolved meanwhile.
func releaseTasks(ctx context.Context, tasks map[*flow.Task]struct{}) {
	if len(tasks) == 0 {
		return
	}
	logger.Debugf(ctx, "releasing %d unconsumed tasks", len(tasks))
	for t := range tasks {
		if err := t.Cancel(ctx); err != nil {
			logger.Debugf(ctx, "unable to cancel %s: %v", t, err)
		}
	}
	for t := range tasks {
		img, err := t.Consume(ctx)
		if err != nil {
			logger.Debugf(ctx, "%s: %v", t, err)
			continue
		}
		if err := img.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the image of %s: %v", t, err)
		}
	}
}
