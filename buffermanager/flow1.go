package buffermanager

import (
	"context"

	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/types"
)

// Flow1 is the slot of the host flow: every stage runs in the host memory.
type Flow1 struct {
	*common
	decoder codec.ManualDecoderFlow1
}

var _ BufferManager = (*Flow1)(nil)

// NewFlow1 returns a slot processing into host buffers. post3DLUT is
// resource.None() if the clip has no LUT.
func NewFlow1(
	decoder codec.ManualDecoderFlow1,
	manager resource.Manager,
	post3DLUT resource.Resource,
	format types.ResourceFormat,
) (*Flow1, error) {
	if decoder == nil {
		return nil, types.ErrConfiguration{Reason: "no manual decoder"}
	}
	c, err := newCommon(
		decoder,
		&allocator{Manager: manager},
		format,
		types.DeviceCPU,
		post3DLUT,
		types.ResourceUsageReadCPUWriteCPU,
	)
	if err != nil {
		return nil, err
	}
	return &Flow1{common: c, decoder: decoder}, nil
}

func (m *Flow1) CreateDecodeJob(ctx context.Context) (_ret codec.Job, _err error) {
	logger.Tracef(ctx, "CreateDecodeJob")
	defer func() { logger.Tracef(ctx, "/CreateDecodeJob: %v %v", _ret, _err) }()
	if _, err := m.ensureDecoded(ctx); err != nil {
		return nil, err
	}
	return m.decoder.CreateJobDecode(ctx, m.frameState.res, m.bitStream.res, m.decoded.res)
}

func (m *Flow1) CreateProcessJob(ctx context.Context) (_ret codec.Job, _err error) {
	logger.Tracef(ctx, "CreateProcessJob")
	defer func() { logger.Tracef(ctx, "/CreateProcessJob: %v %v", _ret, _err) }()
	if err := m.requireFrameState(); err != nil {
		return nil, err
	}
	if err := m.ensureProcessed(ctx); err != nil {
		return nil, err
	}
	return m.decoder.CreateJobProcess(ctx, m.frameState.res, m.decoded.res, m.processed.res, m.post3DLUT)
}

func (m *Flow1) Capacities() Capacities {
	return m.capacities()
}
