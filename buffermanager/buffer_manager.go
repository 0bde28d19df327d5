// buffer_manager.go implements the buffers and the job factories shared by the manual decoding flows.

// Package buffermanager provides the pipeline slots: each BufferManager owns
// the buffers one frame needs on its way through the read, decode and
// process stages, and builds the codec jobs targeting them.
//
// A BufferManager is not safe for concurrent use: exactly one task is bound
// to a slot at a time.
package buffermanager

import (
	"context"
	"fmt"

	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/tensor"
	"github.com/xaionaro-go/rawpipeline/types"
)

type BufferManager interface {
	types.Closer

	CreateReadJob(ctx context.Context, clipEx codec.ClipEx, frameIndex uint64) (codec.Job, error)
	PopulateFrameStateBuffer(ctx context.Context, frame codec.Frame) error
	CreateDecodeJob(ctx context.Context) (codec.Job, error)
	CreateProcessJob(ctx context.Context) (codec.Job, error)

	// OutputBuffer is the buffer the process job writes the image into.
	OutputBuffer() resource.Resource

	// ReplaceOutputBuffer allocates a new output buffer of the same capacity
	// and returns the previous one, which the caller becomes the owner of.
	ReplaceOutputBuffer(ctx context.Context) (resource.Resource, error)

	Postprocess(
		ctx context.Context,
		image codec.ProcessedImage,
		scale types.ResolutionScale,
		params PostprocessParams,
	) (*tensor.Tensor, error)

	Capacities() Capacities
}

// Capacities are the sizes of the buffers of a slot, in bytes.
type Capacities struct {
	BitStream  uint64
	FrameState uint64
	Decoded    uint64
	DecodedGPU uint64
	Working    uint64
	Processed  uint64
}

type common struct {
	decoder     codec.ManualDecoder
	alloc       *allocator
	format      types.ResourceFormat
	device      types.Device
	post3DLUT   resource.Resource
	bitStream   *buffer
	frameState  *buffer
	decoded     *buffer
	processed   *buffer
	closer      *astikit.Closer
	closeCtx    context.Context
	frameLoaded bool
}

func newCommon(
	decoder codec.ManualDecoder,
	alloc *allocator,
	format types.ResourceFormat,
	device types.Device,
	post3DLUT resource.Resource,
	decodedUsage types.ResourceUsage,
) (*common, error) {
	if decoder == nil {
		return nil, types.ErrConfiguration{Reason: "no manual decoder"}
	}
	if alloc.Manager == nil {
		return nil, types.ErrConfiguration{Reason: "no resource manager"}
	}
	if format.DataType() == types.UndefinedDataType {
		return nil, types.ErrConfiguration{Reason: fmt.Sprintf("unsupported pixel format %s", format)}
	}
	m := &common{
		decoder:    decoder,
		alloc:      alloc,
		format:     format,
		device:     device,
		post3DLUT:  post3DLUT,
		bitStream:  newBuffer("bitstream", alloc, types.ResourceTypeBufferCPU, types.ResourceUsageReadCPUWriteCPU),
		frameState: newBuffer("frame state", alloc, types.ResourceTypeBufferCPU, types.ResourceUsageReadCPUWriteCPU),
		decoded:    newBuffer("decoded", alloc, types.ResourceTypeBufferCPU, decodedUsage),
		processed:  newBuffer("processed", alloc, device.Type, processedUsage(device)),
		closer:     astikit.NewCloser(),
		closeCtx:   context.Background(),
	}
	m.closeBuffers(m.bitStream, m.frameState, m.decoded, m.processed)
	return m, nil
}

func processedUsage(device types.Device) types.ResourceUsage {
	if device.Type.IsDevice() {
		return types.ResourceUsageReadGPUWriteGPU
	}
	return types.ResourceUsageReadCPUWriteCPU
}

func (m *common) closeBuffers(bufs ...*buffer) {
	for _, b := range bufs {
		m.closer.AddWithError(func() error {
			return b.Release(m.closeCtx)
		})
	}
}

func (m *common) CreateReadJob(
	ctx context.Context,
	clipEx codec.ClipEx,
	frameIndex uint64,
) (_ret codec.Job, _err error) {
	logger.Tracef(ctx, "CreateReadJob(ctx, %d)", frameIndex)
	defer func() { logger.Tracef(ctx, "/CreateReadJob(ctx, %d): %v %v", frameIndex, _ret, _err) }()

	size, err := clipEx.BitStreamSizeBytes(ctx, frameIndex)
	if err != nil {
		return nil, fmt.Errorf("unable to get the bitstream size of frame #%d: %w", frameIndex, err)
	}
	if err := m.bitStream.Ensure(ctx, size); err != nil {
		return nil, err
	}
	m.frameLoaded = false
	return clipEx.CreateJobReadFrame(ctx, frameIndex, m.bitStream.res, size)
}

func (m *common) PopulateFrameStateBuffer(ctx context.Context, frame codec.Frame) (_err error) {
	logger.Tracef(ctx, "PopulateFrameStateBuffer(ctx, #%d)", frame.FrameIndex())
	defer func() { logger.Tracef(ctx, "/PopulateFrameStateBuffer(ctx, #%d): %v", frame.FrameIndex(), _err) }()

	size, err := m.decoder.FrameStateSizeBytes(ctx)
	if err != nil {
		return fmt.Errorf("unable to get the frame state size: %w", err)
	}
	if err := m.frameState.Ensure(ctx, size); err != nil {
		return err
	}
	if err := m.decoder.PopulateFrameStateBuffer(ctx, frame, m.frameState.res, size); err != nil {
		return fmt.Errorf("unable to populate the frame state: %w", err)
	}
	m.frameLoaded = true
	return nil
}

func (m *common) requireFrameState() error {
	if !m.frameLoaded {
		return types.ErrValue{Name: "frame state", Value: m.frameState, Reason: "not populated"}
	}
	return nil
}

// ensureDecoded sizes the host decoded buffer for the current frame.
func (m *common) ensureDecoded(ctx context.Context) (uint64, error) {
	if err := m.requireFrameState(); err != nil {
		return 0, err
	}
	size, err := m.decoder.DecodedSizeBytes(ctx, m.frameState.res)
	if err != nil {
		return 0, fmt.Errorf("unable to get the decoded size: %w", err)
	}
	return size, m.decoded.Ensure(ctx, size)
}

func (m *common) ensureProcessed(ctx context.Context) error {
	size, err := m.decoder.ProcessedSizeBytes(ctx, m.frameState.res)
	if err != nil {
		return fmt.Errorf("unable to get the processed size: %w", err)
	}
	return m.processed.Ensure(ctx, size)
}

func (m *common) OutputBuffer() resource.Resource {
	return m.processed.res
}

func (m *common) ReplaceOutputBuffer(ctx context.Context) (_ret resource.Resource, _err error) {
	logger.Debugf(ctx, "ReplaceOutputBuffer")
	defer func() { logger.Debugf(ctx, "/ReplaceOutputBuffer: %s %v", _ret, _err) }()
	return m.processed.Detach(ctx)
}

func (m *common) capacities() Capacities {
	return Capacities{
		BitStream:  m.bitStream.Capacity(),
		FrameState: m.frameState.Capacity(),
		Decoded:    m.decoded.Capacity(),
		Processed:  m.processed.Capacity(),
	}
}

func (m *common) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	m.closeCtx = ctx
	return m.closer.Close()
}

func (m *common) mappedOutput() ([]byte, error) {
	data, err := resource.Map(m.alloc.Manager, m.processed.res)
	if err != nil {
		return nil, fmt.Errorf("unable to access the output buffer: %w", err)
	}
	return data, nil
}
