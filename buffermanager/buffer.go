package buffermanager

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/types"
)

// buffer is a resource that grows on demand and never shrinks.
type buffer struct {
	name    string
	alloc   *allocator
	resType types.ResourceType
	usage   types.ResourceUsage
	res     resource.Resource
}

type allocator struct {
	Manager       resource.Manager
	DeviceContext types.DeviceContext
	CommandQueue  types.CommandQueue
}

func newBuffer(
	name string,
	alloc *allocator,
	resType types.ResourceType,
	usage types.ResourceUsage,
) *buffer {
	return &buffer{
		name:    name,
		alloc:   alloc,
		resType: resType,
		usage:   usage,
		res:     resource.None(),
	}
}

func (b *buffer) String() string {
	return fmt.Sprintf("%s:%s", b.name, b.res)
}

func (b *buffer) Capacity() uint64 {
	if b.res.IsNone() {
		return 0
	}
	return b.res.SizeBytes
}

// Ensure makes the buffer at least sizeBytes large: a smaller buffer is
// released and then a new one allocated, a large enough one is reused.
func (b *buffer) Ensure(ctx context.Context, sizeBytes uint64) (_err error) {
	if sizeBytes <= b.Capacity() {
		return nil
	}
	logger.Debugf(ctx, "growing %s from %s to %s", b.name, humanize.IBytes(b.Capacity()), humanize.IBytes(sizeBytes))
	if err := b.Release(ctx); err != nil {
		return err
	}
	return b.allocate(ctx, sizeBytes)
}

func (b *buffer) allocate(ctx context.Context, sizeBytes uint64) error {
	res, err := b.alloc.Manager.CreateResource(ctx, b.alloc.DeviceContext, b.alloc.CommandQueue, sizeBytes, b.resType, b.usage)
	if err != nil {
		return fmt.Errorf("unable to allocate %s for the %s buffer: %w", humanize.IBytes(sizeBytes), b.name, err)
	}
	b.res = res
	return nil
}

// Release frees the resource (if any); the capacity drops to zero.
func (b *buffer) Release(ctx context.Context) error {
	if b.res.IsNone() {
		return nil
	}
	res := b.res
	b.res = resource.None()
	if err := b.alloc.Manager.ReleaseResource(ctx, b.alloc.DeviceContext, b.alloc.CommandQueue, res); err != nil {
		return fmt.Errorf("unable to release the %s buffer: %w", b.name, err)
	}
	return nil
}

// Detach replaces the resource with a new one of the same capacity and
// returns the old one; the caller becomes responsible for releasing it.
func (b *buffer) Detach(ctx context.Context) (resource.Resource, error) {
	old := b.res
	if old.IsNone() {
		return old, nil
	}
	b.res = resource.None()
	if err := b.allocate(ctx, old.SizeBytes); err != nil {
		b.res = old
		return resource.None(), err
	}
	return old, nil
}

func (b *buffer) releaser(res resource.Resource) func(context.Context) error {
	return func(ctx context.Context) error {
		return b.alloc.Manager.ReleaseResource(ctx, b.alloc.DeviceContext, b.alloc.CommandQueue, res)
	}
}
