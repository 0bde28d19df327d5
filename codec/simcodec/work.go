package simcodec

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/types"
)

// PatternValue is the 8-bit value the process stage writes into channel c
// of the pixel (x, y) of the given frame; wider formats scale it to their range.
func PatternValue(frameIndex uint64, x, y, c int) uint8 {
	return uint8((frameIndex*16 + uint64(x) + 2*uint64(y) + 32*uint64(c)) % 256)
}

func failing(pred func(uint64) bool, frameIndex uint64) bool {
	return pred != nil && pred(frameIndex)
}

type readWork struct {
	clip       *clip
	frameIndex uint64
	bitStream  resource.Resource
	sizeBytes  uint64
}

func (w *readWork) execute(ctx context.Context) (types.ResultCode, workOutput) {
	c := w.clip.codec
	frameIndex := w.frameIndex
	if failing(c.config.FailRead, frameIndex) {
		return types.ResultCodeFail, workOutput{}
	}
	required, err := w.clip.BitStreamSizeBytes(ctx, frameIndex)
	if err != nil {
		logger.Debugf(ctx, "unable to get the bitstream size: %v", err)
		return types.ResultCodeInvalidArg, workOutput{}
	}
	buf, err := c.resources.Map(w.bitStream)
	if err != nil || w.sizeBytes < required || uint64(len(buf)) < required {
		logger.Debugf(ctx, "the bitstream buffer does not fit %d bytes: %v", required, err)
		return types.ResultCodeInvalidArg, workOutput{}
	}
	putFrameTag(buf, frameIndex)
	return types.ResultCodeOK, workOutput{
		Frame: &frame{
			clip:            w.clip,
			index:           frameIndex,
			resolutionScale: types.ResolutionScaleFull,
			resourceFormat:  types.ResourceFormatRGBAU8,
		},
		SizeBytes: required,
	}
}

type decodeWork struct {
	codec     *Codec
	state     frameState
	bitStream resource.Resource
	decoded   resource.Resource
}

func (w *decodeWork) execute(ctx context.Context) (types.ResultCode, workOutput) {
	if failing(w.codec.config.FailDecode, w.state.FrameIndex) {
		return types.ResultCodeFail, workOutput{}
	}
	bitStream, err := w.codec.resources.Map(w.bitStream)
	if err != nil {
		logger.Debugf(ctx, "unable to map the bitstream: %v", err)
		return types.ResultCodeHandle, workOutput{}
	}
	if idx, ok := frameTag(bitStream); !ok || idx != w.state.FrameIndex {
		logger.Debugf(ctx, "the bitstream does not belong to frame #%d", w.state.FrameIndex)
		return types.ResultCodeUnexpected, workOutput{}
	}
	required := w.state.DecodedSizeBytes()
	decoded, err := w.codec.resources.Map(w.decoded)
	if err != nil || uint64(len(decoded)) < required {
		logger.Debugf(ctx, "the decoded buffer does not fit %d bytes: %v", required, err)
		return types.ResultCodeInvalidArg, workOutput{}
	}
	putFrameTag(decoded, w.state.FrameIndex)
	return types.ResultCodeOK, workOutput{SizeBytes: required}
}

type processWork struct {
	codec     *Codec
	state     frameState
	decoded   resource.Resource
	working   resource.Resource
	processed resource.Resource
	post3DLUT resource.Resource
}

func (w *processWork) execute(ctx context.Context) (types.ResultCode, workOutput) {
	st := w.state
	if failing(w.codec.config.FailProcess, st.FrameIndex) {
		return types.ResultCodeFail, workOutput{}
	}
	decoded, err := w.codec.resources.Map(w.decoded)
	if err != nil {
		return types.ResultCodeHandle, workOutput{}
	}
	if idx, ok := frameTag(decoded); !ok || idx != st.FrameIndex {
		logger.Debugf(ctx, "the decoded buffer does not belong to frame #%d", st.FrameIndex)
		return types.ResultCodeUnexpected, workOutput{}
	}
	if !w.working.IsNone() {
		working, err := w.codec.resources.Map(w.working)
		if err != nil || uint64(len(working)) < st.WorkingSizeBytes() {
			return types.ResultCodeInvalidArg, workOutput{}
		}
	}
	if !w.post3DLUT.IsNone() {
		lut, err := w.codec.resources.Map(w.post3DLUT)
		if err != nil || len(lut) != post3DLUTEdge*post3DLUTEdge*post3DLUTEdge*3*4 {
			logger.Debugf(ctx, "invalid 3D LUT %s: %v", w.post3DLUT, err)
			return types.ResultCodeInvalidArg, workOutput{}
		}
	}
	required := st.ProcessedSizeBytes()
	processed, err := w.codec.resources.Map(w.processed)
	if err != nil || uint64(len(processed)) < required {
		logger.Debugf(ctx, "the processed buffer does not fit %d bytes: %v", required, err)
		return types.ResultCodeInvalidArg, workOutput{}
	}

	res := st.ScaledResolution()
	fillPattern(processed, st.FrameIndex, st.ResourceFormat, int(res.Width), int(res.Height))
	return types.ResultCodeOK, workOutput{
		Image: &processedImage{
			res:    w.processed,
			format: st.ResourceFormat,
			width:  res.Width,
			height: res.Height,
		},
		SizeBytes: required,
	}
}

func fillPattern(buf []byte, frameIndex uint64, format types.ResourceFormat, width, height int) {
	channels := format.NumChannels()
	elemSize := format.DataType().Size()
	for c := 0; c < channels; c++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				var elem int
				if format.IsPlanar() {
					elem = (c*height+y)*width + x
				} else {
					elem = (y*width+x)*channels + c
				}
				putElement(buf[elem*elemSize:], format.DataType(), PatternValue(frameIndex, x, y, c))
			}
		}
	}
}

func putElement(buf []byte, dt types.DataType, v uint8) {
	switch dt {
	case types.DataTypeU8:
		buf[0] = v
	case types.DataTypeU16:
		binary.LittleEndian.PutUint16(buf, uint16(v)*257)
	case types.DataTypeF32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)/255))
	}
}
