package rawpipeline

import (
	"context"
	"fmt"

	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/rawpipeline/internal"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

// JobCounter limits the amount of frames submitted to the codec at once.
type JobCounter struct {
	locker     xsync.Mutex
	maxJobs    int
	curJobs    int
	changeChan *chan struct{}

	started atomic.Uint64
	ended   atomic.Uint64
}

func NewJobCounter(maxJobs int) (*JobCounter, error) {
	if maxJobs < 1 {
		return nil, fmt.Errorf("the maximal amount of jobs must be positive, but is %d", maxJobs)
	}
	ch := make(chan struct{})
	return &JobCounter{
		maxJobs:    maxJobs,
		changeChan: &ch,
	}, nil
}

func (c *JobCounter) MaxJobs() int {
	return c.maxJobs
}

func (c *JobCounter) CurJobs() int {
	return xsync.DoR1(context.Background(), &c.locker, func() int {
		return c.curJobs
	})
}

// Counts returns how many jobs were started and ended so far.
func (c *JobCounter) Counts() (started, ended uint64) {
	return c.started.Load(), c.ended.Load()
}

func (c *JobCounter) waitFor(
	ctx context.Context,
	cond func() bool,
	onReady func(),
) error {
	for {
		var ch <-chan struct{}
		c.locker.Do(ctx, func() {
			if cond() {
				onReady()
				return
			}
			ch = *xatomic.LoadPointer(&c.changeChan)
		})
		if ch == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (c *JobCounter) notifyLocked() {
	newCh := make(chan struct{})
	oldCh := xatomic.SwapPointer(&c.changeChan, &newCh)
	close(*oldCh)
}

// StartJob blocks while the maximal amount of jobs is running.
func (c *JobCounter) StartJob(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "StartJob")
	defer func() { logger.Tracef(ctx, "/StartJob: %v", _err) }()
	return c.waitFor(ctx,
		func() bool { return c.curJobs < c.maxJobs },
		func() {
			c.curJobs++
			c.started.Inc()
		},
	)
}

func (c *JobCounter) EndJob(ctx context.Context) {
	logger.Tracef(ctx, "EndJob")
	defer func() { logger.Tracef(ctx, "/EndJob") }()
	c.locker.Do(ctx, func() {
		internal.Assert(ctx, c.curJobs > 0, "EndJob without StartJob", c.curJobs)
		c.curJobs--
		c.ended.Inc()
		c.notifyLocked()
	})
}

// WaitWhileJobsRunning blocks until every started job has ended.
func (c *JobCounter) WaitWhileJobsRunning(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "WaitWhileJobsRunning")
	defer func() { logger.Tracef(ctx, "/WaitWhileJobsRunning: %v", _err) }()
	return c.waitFor(ctx,
		func() bool { return c.curJobs == 0 },
		func() {},
	)
}
