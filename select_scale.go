package rawpipeline

import (
	"github.com/xaionaro-go/rawpipeline/buffermanager"
	"github.com/xaionaro-go/rawpipeline/types"
	"github.com/xaionaro-go/typing"
)

// SelectResolutionScale returns the strongest decoder downscale that still
// yields at least outSize pixels out of the (cropped) frame, so the decoder
// does not produce pixels the resize throws away.
func SelectResolutionScale(
	frame types.Resolution,
	crop typing.Optional[buffermanager.Rect],
	outSize typing.Optional[types.Resolution],
) types.ResolutionScale {
	inW, inH := float64(frame.Width), float64(frame.Height)
	if crop.IsSet() {
		r := crop.Get()
		inW, inH = float64(r.Width), float64(r.Height)
	}
	outW, outH := inW, inH
	if outSize.IsSet() {
		s := outSize.Get()
		outW, outH = float64(s.Width), float64(s.Height)
	}
	if outW <= 0 || outH <= 0 {
		return types.ResolutionScaleFull
	}

	minFactor := min(inW/outW, inH/outH)
	switch {
	case minFactor >= 8:
		return types.ResolutionScaleEighth
	case minFactor >= 4:
		return types.ResolutionScaleQuarter
	case minFactor >= 2:
		return types.ResolutionScaleHalf
	default:
		return types.ResolutionScaleFull
	}
}
