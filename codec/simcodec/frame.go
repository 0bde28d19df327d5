package simcodec

import (
	"encoding/binary"
	"fmt"

	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/types"
)

const (
	frameStateMagic     = uint32(0x73667374) // 'sfst'
	frameStateSizeBytes = 64

	bitStreamHeaderSize = 16
	decodedHeaderSize   = 16
)

type frame struct {
	clip            *clip
	index           uint64
	resolutionScale types.ResolutionScale
	resourceFormat  types.ResourceFormat
}

var _ codec.Frame = (*frame)(nil)

func (f *frame) FrameIndex() uint64 {
	return f.index
}

func (f *frame) SetResolutionScale(scale types.ResolutionScale) error {
	if scale.Factor() == 0 {
		return codec.Verify(fmt.Sprintf("SetResolutionScale(%s)", scale), types.ResultCodeInvalidArg)
	}
	f.resolutionScale = scale
	return nil
}

func (f *frame) SetResourceFormat(format types.ResourceFormat) error {
	if format.DataType() == types.UndefinedDataType {
		return codec.Verify(fmt.Sprintf("SetResourceFormat(%s)", format), types.ResultCodeInvalidArg)
	}
	f.resourceFormat = format
	return nil
}

// frameState is what PopulateFrameStateBuffer serializes into the frame state buffer.
type frameState struct {
	FrameIndex      uint64
	Resolution      types.Resolution
	ResolutionScale types.ResolutionScale
	ResourceFormat  types.ResourceFormat
}

func (s frameState) ScaledResolution() types.Resolution {
	return s.Resolution.Scaled(s.ResolutionScale)
}

func (s frameState) DecodedSizeBytes() uint64 {
	r := s.ScaledResolution()
	return uint64(r.Width)*uint64(r.Height)*2 + decodedHeaderSize
}

func (s frameState) ProcessedSizeBytes() uint64 {
	r := s.ScaledResolution()
	return uint64(r.Width) * uint64(r.Height) * uint64(s.ResourceFormat.BytesPerPixel())
}

func (s frameState) WorkingSizeBytes() uint64 {
	return s.ProcessedSizeBytes()/4 + 4096
}

func (s frameState) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], frameStateMagic)
	binary.LittleEndian.PutUint32(buf[4:], uint32(s.ResourceFormat))
	binary.LittleEndian.PutUint64(buf[8:], s.FrameIndex)
	binary.LittleEndian.PutUint32(buf[16:], s.Resolution.Width)
	binary.LittleEndian.PutUint32(buf[20:], s.Resolution.Height)
	binary.LittleEndian.PutUint32(buf[24:], uint32(s.ResolutionScale))
}

func decodeFrameState(buf []byte) (frameState, bool) {
	if len(buf) < frameStateSizeBytes || binary.LittleEndian.Uint32(buf) != frameStateMagic {
		return frameState{}, false
	}
	return frameState{
		ResourceFormat: types.ResourceFormat(binary.LittleEndian.Uint32(buf[4:])),
		FrameIndex:     binary.LittleEndian.Uint64(buf[8:]),
		Resolution: types.Resolution{
			Width:  binary.LittleEndian.Uint32(buf[16:]),
			Height: binary.LittleEndian.Uint32(buf[20:]),
		},
		ResolutionScale: types.ResolutionScale(binary.LittleEndian.Uint32(buf[24:])),
	}, true
}

// putFrameTag marks a bitstream or a decoded buffer as belonging to the frame.
func putFrameTag(buf []byte, frameIndex uint64) {
	binary.LittleEndian.PutUint32(buf[0:], frameStateMagic)
	binary.LittleEndian.PutUint64(buf[8:], frameIndex)
}

func frameTag(buf []byte) (uint64, bool) {
	if len(buf) < 16 || binary.LittleEndian.Uint32(buf) != frameStateMagic {
		return 0, false
	}
	return binary.LittleEndian.Uint64(buf[8:]), true
}

type processedImage struct {
	res    resource.Resource
	format types.ResourceFormat
	width  uint32
	height uint32
}

var _ codec.ProcessedImage = (*processedImage)(nil)

func (img *processedImage) Resource() resource.Resource {
	return img.res
}

func (img *processedImage) ResourceType() types.ResourceType {
	return img.res.Type
}

func (img *processedImage) ResourceFormat() types.ResourceFormat {
	return img.format
}

func (img *processedImage) Width() uint32 {
	return img.width
}

func (img *processedImage) Height() uint32 {
	return img.height
}
