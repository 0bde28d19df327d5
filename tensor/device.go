package tensor

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/types"
)

// DeviceAllocator allocates device memory for tensors moved off the host.
type DeviceAllocator struct {
	Manager       resource.Manager
	DeviceContext types.DeviceContext
	CommandQueue  types.CommandQueue
}

// To returns the tensor placed on the device. If it is already there, the
// tensor itself is returned (and it keeps aliasing its storage). Moving to
// the host copies into the Go heap; moving to a GPU allocates a resource
// owned by the returned tensor.
func (t *Tensor) To(
	ctx context.Context,
	device types.Device,
	alloc *DeviceAllocator,
) (_ret *Tensor, _err error) {
	logger.Tracef(ctx, "To(ctx, %s): %s", device, t)
	defer func() { logger.Tracef(ctx, "/To(ctx, %s): %s %v", device, _ret, _err) }()

	if t.Device == device {
		return t, nil
	}
	if !device.Type.IsDevice() {
		return t.Clone(), nil
	}
	if alloc == nil || alloc.Manager == nil {
		return nil, types.ErrConfiguration{Reason: fmt.Sprintf("no resource manager to allocate memory on %s", device)}
	}

	src := t.Bytes()
	sizeBytes := uint64(len(src))
	if sizeBytes == 0 {
		return nil, types.ErrValue{Name: "tensor", Value: t, Reason: "cannot move an empty tensor to a device"}
	}
	res, err := alloc.Manager.CreateResource(
		ctx,
		alloc.DeviceContext,
		alloc.CommandQueue,
		sizeBytes,
		device.Type,
		types.ResourceUsageReadGPUWriteGPU,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to allocate %s on %s: %w", humanize.IBytes(sizeBytes), device, err)
	}
	release := func(ctx context.Context) error {
		return alloc.Manager.ReleaseResource(ctx, alloc.DeviceContext, alloc.CommandQueue, res)
	}

	dst, err := resource.Map(alloc.Manager, res)
	if err != nil {
		if releaseErr := release(ctx); releaseErr != nil {
			logger.Errorf(ctx, "unable to release %s: %v", res, releaseErr)
		}
		return nil, fmt.Errorf("unable to access the memory of %s: %w", res, err)
	}
	copy(dst, src)

	out, err := New(t.DataType, device, res, dst, t.Shape...)
	if err != nil {
		if releaseErr := release(ctx); releaseErr != nil {
			logger.Errorf(ctx, "unable to release %s: %v", res, releaseErr)
		}
		return nil, err
	}
	out.TakeOwnership(release)
	return out, nil
}
