// reader.go implements FrameImageReader, the entry point opening a clip for decoding on a processing device.

// Package rawpipeline decodes frames of raw video clips through the manual
// decoding flows of the codec engine, with a bounded amount of frames in
// flight and the results delivered as tensors.
package rawpipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/cuda"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/types"
)

// FrameImageReader reads the frames of one clip on one processing device.
type FrameImageReader struct {
	codec         codec.Codec
	path          string
	device        types.Device
	pipeline      types.Pipeline
	deviceContext types.DeviceContext
	commandQueue  types.CommandQueue
	clip          codec.Clip

	decoderFlow1 codec.ManualDecoderFlow1
	decoderFlow2 codec.ManualDecoderFlow2
}

func NewFrameImageReader(
	ctx context.Context,
	c codec.Codec,
	path string,
	device types.Device,
	opts ...Option,
) (_ret *FrameImageReader, _err error) {
	logger.Debugf(ctx, "NewFrameImageReader(ctx, '%s', %s)", path, device)
	defer func() { logger.Debugf(ctx, "/NewFrameImageReader(ctx, '%s', %s): %v", path, device, _err) }()

	cfg := Options(opts).config()
	r := &FrameImageReader{
		codec:        c,
		path:         path,
		device:       device,
		commandQueue: cfg.CommandQueue,
	}

	switch device.Type {
	case types.ResourceTypeBufferCPU:
		r.pipeline = types.PipelineCPU
	case types.ResourceTypeBufferCUDA:
		r.pipeline = types.PipelineCUDA
	default:
		return nil, types.ErrConfiguration{Reason: fmt.Sprintf("unsupported processing device: %s", device)}
	}
	if !c.IsPipelineSupported(r.pipeline) {
		return nil, types.ErrConfiguration{Reason: fmt.Sprintf("pipeline %s is not supported by this machine", r.pipeline)}
	}

	var err error
	switch r.pipeline {
	case types.PipelineCUDA:
		if cfg.DeviceContext.IsSet() {
			r.deviceContext = cfg.DeviceContext.Get()
		} else {
			r.deviceContext, err = cuda.CurrentContext(ctx)
			if err != nil {
				return nil, fmt.Errorf("unable to get the CUDA context of %s: %w", device, err)
			}
		}
		r.decoderFlow2, err = c.ManualDecoderFlow2()
	default:
		r.decoderFlow1, err = c.ManualDecoderFlow1()
	}
	if err != nil {
		return nil, fmt.Errorf("unable to get the manual decoder: %w", err)
	}

	if err := c.SetPipeline(ctx, r.pipeline, r.deviceContext, r.commandQueue); err != nil {
		return nil, fmt.Errorf("unable to set pipeline %s: %w", r.pipeline, err)
	}
	r.clip, err = c.OpenClip(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	return r, nil
}

func (r *FrameImageReader) String() string {
	return fmt.Sprintf("FrameImageReader(%s@%s)", r.path, r.device)
}

func (r *FrameImageReader) Device() types.Device {
	return r.device
}

func (r *FrameImageReader) Clip() codec.Clip {
	return r.clip
}

func (r *FrameImageReader) FrameCount() uint64 {
	return r.clip.FrameCount()
}

func (r *FrameImageReader) FrameWidth() uint32 {
	return r.clip.Width()
}

func (r *FrameImageReader) FrameHeight() uint32 {
	return r.clip.Height()
}

func (r *FrameImageReader) FrameRate() float32 {
	return r.clip.FrameRate()
}

// FrameRateRational recovers the exact frame rate from the approximate one
// reported by the clip (e.g. 23.976 -> 24000/1001).
func (r *FrameImageReader) FrameRateRational() types.Rational {
	return types.RationalFromApproxFloat64(float64(r.clip.FrameRate()))
}

// FrameTimestamp returns the presentation time of the frame.
func (r *FrameImageReader) FrameTimestamp(frameIndex uint64) time.Duration {
	return r.FrameRateRational().Timestamp(frameIndex)
}

// post3DLUT returns the lookup table of the clip in the memory of the
// processing device, or resource.None() if the clip has none. The release
// function must be called once the slots using the table are closed.
func (r *FrameImageReader) post3DLUT(
	ctx context.Context,
) (_ret resource.Resource, _release func(context.Context) error, _err error) {
	logger.Tracef(ctx, "post3DLUT")
	defer func() { logger.Tracef(ctx, "/post3DLUT: %s %v", _ret, _err) }()

	noop := func(context.Context) error { return nil }
	lut, ok := r.clip.Post3DLUT()
	if !ok {
		return resource.None(), noop, nil
	}
	cpuRes := lut.ResourceCPU()
	if !r.device.Type.IsDevice() {
		return cpuRes, noop, nil
	}

	mgr := r.codec.ResourceManager()
	sizeBytes := lut.ResourceSizeBytes()
	devRes, err := mgr.CreateResource(ctx, r.deviceContext, r.commandQueue, sizeBytes, r.device.Type, types.ResourceUsageReadGPUWriteGPU)
	if err != nil {
		return resource.None(), nil, fmt.Errorf("unable to allocate the 3D LUT on %s: %w", r.device, err)
	}
	release := func(ctx context.Context) error {
		return mgr.ReleaseResource(ctx, r.deviceContext, r.commandQueue, devRes)
	}
	if err := mgr.CopyResource(ctx, r.deviceContext, r.commandQueue, cpuRes, devRes, sizeBytes); err != nil {
		if releaseErr := release(ctx); releaseErr != nil {
			logger.Errorf(ctx, "unable to release the 3D LUT on %s: %v", r.device, releaseErr)
		}
		return resource.None(), nil, fmt.Errorf("unable to copy the 3D LUT to %s: %w", r.device, err)
	}
	return devRes, release, nil
}
