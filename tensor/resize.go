package tensor

import (
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/transform"
	"github.com/xaionaro-go/rawpipeline/types"
)

// Resize returns a bilinearly resized host copy of a 3-dimensional image
// tensor. heightAxis and widthAxis select the spatial dimensions; the
// remaining one holds the channels.
func (t *Tensor) Resize(height, width, heightAxis, widthAxis int) (*Tensor, error) {
	if len(t.Shape) != 3 {
		return nil, types.ErrValue{Name: "tensor", Value: t, Reason: "only 3-dimensional images can be resized"}
	}
	if heightAxis == widthAxis || heightAxis < 0 || heightAxis > 2 || widthAxis < 0 || widthAxis > 2 {
		return nil, types.ErrValue{Name: "axes", Value: [2]int{heightAxis, widthAxis}, Reason: "must be two distinct dimensions of 3"}
	}
	if height <= 0 || width <= 0 {
		return nil, types.ErrValue{Name: "size", Value: [2]int{width, height}, Reason: "must be positive"}
	}
	if t.Shape[heightAxis] == 0 || t.Shape[widthAxis] == 0 {
		return nil, types.ErrValue{Name: "tensor", Value: t, Reason: "cannot resize an empty image"}
	}
	channelAxis := 3 - heightAxis - widthAxis

	shape := append([]int{}, t.Shape...)
	shape[heightAxis] = height
	shape[widthAxis] = width
	out := Zeros(t.DataType, shape...)

	resizePlane := resizePlaneBilinear
	if t.DataType == types.DataTypeU8 {
		resizePlane = resizePlaneU8
	}

	idx := make([]int, 3)
	for c := 0; c < t.Shape[channelAxis]; c++ {
		idx[channelAxis] = c
		src := func(y, x int) float64 {
			idx[heightAxis], idx[widthAxis] = y, x
			return t.At(idx...)
		}
		dst := func(y, x int, v float64) {
			idx[heightAxis], idx[widthAxis] = y, x
			out.Set(v, idx...)
		}
		resizePlane(t.Shape[heightAxis], t.Shape[widthAxis], height, width, src, dst)
	}
	return out, nil
}

func resizePlaneU8(
	srcH, srcW, dstH, dstW int,
	src func(y, x int) float64,
	dst func(y, x int, v float64),
) {
	plane := image.NewGray(image.Rect(0, 0, srcW, srcH))
	for y := 0; y < srcH; y++ {
		for x := 0; x < srcW; x++ {
			plane.Pix[y*plane.Stride+x] = uint8(src(y, x))
		}
	}
	resized := transform.Resize(plane, dstW, dstH, transform.Linear)
	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			dst(y, x, float64(resized.Pix[y*resized.Stride+x*4]))
		}
	}
}

// resizePlaneBilinear samples with half-pixel centers (the source coordinate
// of the destination pixel d is (d+0.5)*scale-0.5, clamped to the edges).
func resizePlaneBilinear(
	srcH, srcW, dstH, dstW int,
	src func(y, x int) float64,
	dst func(y, x int, v float64),
) {
	ys := bilinearTaps(srcH, dstH)
	xs := bilinearTaps(srcW, dstW)
	for y, ty := range ys {
		for x, tx := range xs {
			top := src(ty.lo, tx.lo)*(1-tx.frac) + src(ty.lo, tx.hi)*tx.frac
			bottom := src(ty.hi, tx.lo)*(1-tx.frac) + src(ty.hi, tx.hi)*tx.frac
			dst(y, x, top*(1-ty.frac)+bottom*ty.frac)
		}
	}
}

type bilinearTap struct {
	lo, hi int
	frac   float64
}

func bilinearTaps(srcSize, dstSize int) []bilinearTap {
	if srcSize <= 0 {
		panic(fmt.Sprintf("invalid source size %d", srcSize))
	}
	scale := float64(srcSize) / float64(dstSize)
	taps := make([]bilinearTap, dstSize)
	for d := range taps {
		pos := math.Max((float64(d)+0.5)*scale-0.5, 0)
		lo := int(pos)
		if lo > srcSize-1 {
			lo = srcSize - 1
		}
		hi := lo + 1
		if hi > srcSize-1 {
			hi = srcSize - 1
		}
		taps[d] = bilinearTap{lo: lo, hi: hi, frac: pos - float64(lo)}
	}
	return taps
}
