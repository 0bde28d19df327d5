// closure_signaler.go provides a one-shot "closed" signal shared between an owner and its workers.

// Package closuresignaler provides a one-shot signal telling the workers of
// an object that it was closed.
package closuresignaler

import (
	"context"
	"sync"

	"github.com/xaionaro-go/rawpipeline/logger"
)

type ClosureSignaler struct {
	closeOnce sync.Once
	c         chan struct{}
	onClose   []func(context.Context) error
	locker    sync.Mutex
}

func New() *ClosureSignaler {
	return &ClosureSignaler{
		c: make(chan struct{}),
	}
}

func (c *ClosureSignaler) CloseChan() <-chan struct{} {
	return c.c
}

// OnClose registers a function to be called (in reverse order of
// registration) when the signaler gets closed.
func (c *ClosureSignaler) OnClose(fn func(context.Context) error) {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Close fires the signal; only the first call has an effect and returns the
// errors of the OnClose functions.
func (c *ClosureSignaler) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	c.closeOnce.Do(func() {
		close(c.c)
		c.locker.Lock()
		onClose := c.onClose
		c.onClose = nil
		c.locker.Unlock()
		for i := len(onClose) - 1; i >= 0; i-- {
			if err := onClose[i](ctx); err != nil {
				logger.Errorf(ctx, "unable to close: %v", err)
				if _err == nil {
					_err = err
				}
			}
		}
	})
	return
}

func (c *ClosureSignaler) IsClosed() bool {
	select {
	case <-c.c:
		return true
	default:
		return false
	}
}
