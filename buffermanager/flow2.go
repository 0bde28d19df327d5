package buffermanager

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/types"
)

// Flow2 is the slot of the GPU flow: the frame is decoded on the host into
// page-locked memory, copied to the device and processed there.
type Flow2 struct {
	*common
	decoder    codec.ManualDecoderFlow2
	decodedGPU *buffer
	working    *buffer
}

var _ BufferManager = (*Flow2)(nil)

// NewFlow2 returns a slot processing on the device; post3DLUT must already
// reside in the device memory (or be resource.None()).
func NewFlow2(
	decoder codec.ManualDecoderFlow2,
	manager resource.Manager,
	post3DLUT resource.Resource,
	format types.ResourceFormat,
	devCtx types.DeviceContext,
	queue types.CommandQueue,
	device types.Device,
) (*Flow2, error) {
	if decoder == nil {
		return nil, types.ErrConfiguration{Reason: "no manual decoder"}
	}
	if !device.Type.IsDevice() {
		return nil, types.ErrConfiguration{Reason: fmt.Sprintf("the GPU flow cannot process on %s", device)}
	}
	alloc := &allocator{Manager: manager, DeviceContext: devCtx, CommandQueue: queue}
	c, err := newCommon(decoder, alloc, format, device, post3DLUT, types.ResourceUsageReadGPUWriteCPU)
	if err != nil {
		return nil, err
	}
	m := &Flow2{
		common:     c,
		decoder:    decoder,
		decodedGPU: newBuffer("decoded (device)", alloc, device.Type, types.ResourceUsageReadGPUWriteGPU),
		working:    newBuffer("working", alloc, device.Type, types.ResourceUsageReadGPUWriteGPU),
	}
	m.closeBuffers(m.decodedGPU, m.working)
	return m, nil
}

func (m *Flow2) CreateDecodeJob(ctx context.Context) (_ret codec.Job, _err error) {
	logger.Tracef(ctx, "CreateDecodeJob")
	defer func() { logger.Tracef(ctx, "/CreateDecodeJob: %v %v", _ret, _err) }()
	size, err := m.ensureDecoded(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.decodedGPU.Ensure(ctx, size); err != nil {
		return nil, err
	}
	return m.decoder.CreateJobDecode(ctx, m.frameState.res, m.bitStream.res, m.decoded.res)
}

func (m *Flow2) CreateProcessJob(ctx context.Context) (_ret codec.Job, _err error) {
	logger.Tracef(ctx, "CreateProcessJob")
	defer func() { logger.Tracef(ctx, "/CreateProcessJob: %v %v", _ret, _err) }()
	if err := m.requireFrameState(); err != nil {
		return nil, err
	}

	workingSize, err := m.decoder.WorkingSizeBytes(ctx, m.frameState.res)
	if err != nil {
		return nil, fmt.Errorf("unable to get the working size: %w", err)
	}
	if err := m.working.Ensure(ctx, workingSize); err != nil {
		return nil, err
	}
	if err := m.ensureProcessed(ctx); err != nil {
		return nil, err
	}

	decodedSize, err := m.decoder.DecodedSizeBytes(ctx, m.frameState.res)
	if err != nil {
		return nil, fmt.Errorf("unable to get the decoded size: %w", err)
	}
	if err := m.alloc.Manager.CopyResource(
		ctx, m.alloc.DeviceContext, m.alloc.CommandQueue,
		m.decoded.res, m.decodedGPU.res, decodedSize,
	); err != nil {
		return nil, fmt.Errorf("unable to upload the decoded frame to %s: %w", m.device, err)
	}

	return m.decoder.CreateJobProcess(
		ctx,
		m.alloc.DeviceContext,
		m.alloc.CommandQueue,
		m.frameState.res,
		m.decodedGPU.res,
		m.working.res,
		m.processed.res,
		m.post3DLUT,
	)
}

func (m *Flow2) Capacities() Capacities {
	caps := m.capacities()
	caps.DecodedGPU = m.decodedGPU.Capacity()
	caps.Working = m.working.Capacity()
	return caps
}
