package simcodec

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/types"
)

type manualDecoder struct {
	codec *Codec
}

func (d *manualDecoder) FrameStateSizeBytes(ctx context.Context) (uint64, error) {
	return frameStateSizeBytes, nil
}

func (d *manualDecoder) PopulateFrameStateBuffer(
	ctx context.Context,
	f codec.Frame,
	frameStateRes resource.Resource,
	sizeBytes uint64,
) error {
	fr, ok := f.(*frame)
	if !ok {
		return codec.Verify(fmt.Sprintf("PopulateFrameStateBuffer(%T)", f), types.ResultCodeNoInterface)
	}
	if sizeBytes < frameStateSizeBytes {
		return codec.Verify(fmt.Sprintf("PopulateFrameStateBuffer(size:%d)", sizeBytes), types.ResultCodeInvalidArg)
	}
	buf, err := d.codec.resources.Map(frameStateRes)
	if err != nil {
		return err
	}
	if uint64(len(buf)) < sizeBytes {
		return codec.Verify("PopulateFrameStateBuffer", types.ResultCodeInvalidArg)
	}
	frameState{
		FrameIndex:      fr.index,
		Resolution:      fr.clip.info.Resolution,
		ResolutionScale: fr.resolutionScale,
		ResourceFormat:  fr.resourceFormat,
	}.encode(buf)
	return nil
}

func (d *manualDecoder) frameState(frameStateRes resource.Resource) (frameState, error) {
	buf, err := d.codec.resources.Map(frameStateRes)
	if err != nil {
		return frameState{}, err
	}
	st, ok := decodeFrameState(buf)
	if !ok {
		return frameState{}, codec.Verify("frame state", types.ResultCodeInvalidArg)
	}
	return st, nil
}

func (d *manualDecoder) DecodedSizeBytes(ctx context.Context, frameStateRes resource.Resource) (uint64, error) {
	st, err := d.frameState(frameStateRes)
	if err != nil {
		return 0, err
	}
	return st.DecodedSizeBytes(), nil
}

func (d *manualDecoder) ProcessedSizeBytes(ctx context.Context, frameStateRes resource.Resource) (uint64, error) {
	st, err := d.frameState(frameStateRes)
	if err != nil {
		return 0, err
	}
	return st.ProcessedSizeBytes(), nil
}

func (d *manualDecoder) CreateJobDecode(
	ctx context.Context,
	frameStateRes, bitStream, decoded resource.Resource,
) (codec.Job, error) {
	if bitStream.IsNone() || decoded.IsNone() {
		return nil, codec.Verify("CreateJobDecode", types.ResultCodePointer)
	}
	st, err := d.frameState(frameStateRes)
	if err != nil {
		return nil, err
	}
	return d.codec.newJob(types.StageDecode, st.FrameIndex, &decodeWork{
		codec:     d.codec,
		state:     st,
		bitStream: bitStream,
		decoded:   decoded,
	}), nil
}

type manualDecoderFlow1 struct {
	manualDecoder
}

var _ codec.ManualDecoderFlow1 = (*manualDecoderFlow1)(nil)

func (d *manualDecoderFlow1) CreateJobProcess(
	ctx context.Context,
	frameStateRes, decoded, processed, post3DLUT resource.Resource,
) (codec.Job, error) {
	if decoded.IsNone() || processed.IsNone() {
		return nil, codec.Verify("CreateJobProcess", types.ResultCodePointer)
	}
	if processed.Type != types.ResourceTypeBufferCPU {
		return nil, codec.Verify(fmt.Sprintf("CreateJobProcess(processed:%s)", processed.Type), types.ResultCodeInvalidArg)
	}
	st, err := d.frameState(frameStateRes)
	if err != nil {
		return nil, err
	}
	return d.codec.newJob(types.StageProcess, st.FrameIndex, &processWork{
		codec:     d.codec,
		state:     st,
		decoded:   decoded,
		working:   resource.None(),
		processed: processed,
		post3DLUT: post3DLUT,
	}), nil
}

type manualDecoderFlow2 struct {
	manualDecoder
}

var _ codec.ManualDecoderFlow2 = (*manualDecoderFlow2)(nil)

func (d *manualDecoderFlow2) WorkingSizeBytes(ctx context.Context, frameStateRes resource.Resource) (uint64, error) {
	st, err := d.frameState(frameStateRes)
	if err != nil {
		return 0, err
	}
	return st.WorkingSizeBytes(), nil
}

func (d *manualDecoderFlow2) CreateJobProcess(
	ctx context.Context,
	devCtx types.DeviceContext,
	queue types.CommandQueue,
	frameStateRes, decoded, working, processed, post3DLUT resource.Resource,
) (codec.Job, error) {
	if decoded.IsNone() || working.IsNone() || processed.IsNone() {
		return nil, codec.Verify("CreateJobProcess", types.ResultCodePointer)
	}
	deviceType := d.codec.Pipeline().ResourceType()
	if !deviceType.IsDevice() {
		return nil, codec.Verify(fmt.Sprintf("CreateJobProcess(pipeline:%s)", d.codec.Pipeline()), types.ResultCodeUnexpected)
	}
	for _, res := range []resource.Resource{decoded, working, processed} {
		if res.Type != deviceType {
			return nil, codec.Verify(fmt.Sprintf("CreateJobProcess(%s, expected:%s)", res, deviceType), types.ResultCodeInvalidArg)
		}
	}
	if !post3DLUT.IsNone() && post3DLUT.Type != deviceType {
		return nil, codec.Verify(fmt.Sprintf("CreateJobProcess(LUT %s, expected:%s)", post3DLUT, deviceType), types.ResultCodeInvalidArg)
	}
	st, err := d.frameState(frameStateRes)
	if err != nil {
		return nil, err
	}
	return d.codec.newJob(types.StageProcess, st.FrameIndex, &processWork{
		codec:     d.codec,
		state:     st,
		decoded:   decoded,
		working:   working,
		processed: processed,
		post3DLUT: post3DLUT,
	}), nil
}
