package buffermanager

import (
	"context"
	"fmt"
	"math"

	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/tensor"
	"github.com/xaionaro-go/rawpipeline/types"
	"github.com/xaionaro-go/typing"
)

// Rect is a region in the coordinates of the full resolution frame.
type Rect struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

type PostprocessParams struct {
	Crop    typing.Optional[Rect]
	OutSize typing.Optional[types.Resolution]

	// Device is where the result is placed; the processing device by default.
	Device typing.Optional[types.Device]
}

// scaleDown converts a full resolution coordinate into the coordinate of
// the decoded image, rounding half to even.
func scaleDown(v int, factor uint32) int {
	return int(math.RoundToEven(float64(v) / float64(factor)))
}

// Postprocess turns the processed image into a tensor: planar formats are
// shaped C×H×W, packed ones H×W×C. If the result still references the
// output buffer, the slot switches to a fresh output buffer and the result
// takes over the old one.
func (m *common) Postprocess(
	ctx context.Context,
	image codec.ProcessedImage,
	scale types.ResolutionScale,
	params PostprocessParams,
) (_ret *tensor.Tensor, _err error) {
	logger.Tracef(ctx, "Postprocess(ctx, %s, %#+v)", scale, params)
	defer func() { logger.Tracef(ctx, "/Postprocess(ctx, %s, %#+v): %v %v", scale, params, _ret, _err) }()

	out := m.OutputBuffer()
	if !image.Resource().SameMemory(out) {
		return nil, types.ErrConsistency{Expected: out.Handle, Actual: image.Resource().Handle}
	}
	if scale.IsFlipped() {
		return nil, types.ErrNotImplemented{Err: fmt.Errorf("flipped images (%s) are not supported", scale)}
	}
	factor := scale.Factor()
	if factor == 0 {
		return nil, types.ErrValue{Name: "resolution scale", Value: scale, Reason: "unknown"}
	}

	format := image.ResourceFormat()
	width, height, channels := int(image.Width()), int(image.Height()), format.NumChannels()
	heightAxis, widthAxis := 0, 1
	shape := []int{height, width, channels}
	if format.IsPlanar() {
		heightAxis, widthAxis = 1, 2
		shape = []int{channels, height, width}
	}

	data, err := m.mappedOutput()
	if err != nil {
		return nil, err
	}
	t, err := tensor.New(format.DataType(), m.device, out, data, shape...)
	if err != nil {
		return nil, fmt.Errorf("the processed image does not fit the output buffer: %w", err)
	}

	if params.Crop.IsSet() {
		r := params.Crop.Get()
		t, err = t.Narrow(widthAxis, scaleDown(r.X, factor), scaleDown(r.Width, factor))
		if err != nil {
			return nil, fmt.Errorf("unable to crop %s: %w", r, err)
		}
		t, err = t.Narrow(heightAxis, scaleDown(r.Y, factor), scaleDown(r.Height, factor))
		if err != nil {
			return nil, fmt.Errorf("unable to crop %s: %w", r, err)
		}
	}

	if params.OutSize.IsSet() {
		size := params.OutSize.Get()
		if int(size.Width) != t.Shape[widthAxis] || int(size.Height) != t.Shape[heightAxis] {
			t, err = t.Resize(int(size.Height), int(size.Width), heightAxis, widthAxis)
			if err != nil {
				return nil, fmt.Errorf("unable to resize to %s: %w", size, err)
			}
		}
	}

	device := m.device
	if params.Device.IsSet() {
		device = params.Device.Get()
	}
	t, err = t.To(ctx, device, &tensor.DeviceAllocator{
		Manager:       m.alloc.Manager,
		DeviceContext: m.alloc.DeviceContext,
		CommandQueue:  m.alloc.CommandQueue,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to move the image to %s: %w", device, err)
	}

	if t.SharesStorage(out) {
		old, err := m.ReplaceOutputBuffer(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to replace the output buffer: %w", err)
		}
		t.TakeOwnership(m.processed.releaser(old))
	}
	return t, nil
}
