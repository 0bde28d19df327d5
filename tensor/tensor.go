// tensor.go implements Tensor, the strided view over an image buffer returned by the pipeline.

// Package tensor provides the minimal n-dimensional view the pipeline hands
// out as a frame result: shape/stride bookkeeping over a resource (or Go
// memory), narrowing, device moves and resizing.
package tensor

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/types"
)

type Tensor struct {
	DataType types.DataType
	Device   types.Device
	Shape    []int
	Strides  []int // in elements
	Offset   int   // in elements

	// Storage is the resource the tensor views, or resource.None() if the
	// data lives in the Go heap.
	Storage resource.Resource

	data      []byte
	closeOnce sync.Once
	releaseFn func(context.Context) error
}

func contiguousStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// New returns a contiguous tensor viewing the memory of the storage resource.
// The tensor does not own the storage unless TakeOwnership is called.
func New(
	dataType types.DataType,
	device types.Device,
	storage resource.Resource,
	data []byte,
	shape ...int,
) (*Tensor, error) {
	if dataType.Size() == 0 {
		return nil, types.ErrValue{Name: "data type", Value: dataType, Reason: "unsupported"}
	}
	for _, d := range shape {
		if d < 0 {
			return nil, types.ErrValue{Name: "shape", Value: shape, Reason: "negative dimension"}
		}
	}
	needBytes := numElements(shape) * dataType.Size()
	if needBytes > len(data) {
		return nil, types.ErrValue{
			Name:   "shape",
			Value:  shape,
			Reason: fmt.Sprintf("requires %d bytes, but the buffer has only %d", needBytes, len(data)),
		}
	}
	return &Tensor{
		DataType: dataType,
		Device:   device,
		Shape:    append([]int{}, shape...),
		Strides:  contiguousStrides(shape),
		Storage:  storage,
		data:     data,
	}, nil
}

// FromBytes returns a host tensor over Go memory.
func FromBytes(dataType types.DataType, data []byte, shape ...int) (*Tensor, error) {
	return New(dataType, types.DeviceCPU, resource.None(), data, shape...)
}

// Zeros returns a host tensor over newly allocated Go memory.
func Zeros(dataType types.DataType, shape ...int) *Tensor {
	t, err := FromBytes(dataType, make([]byte, numElements(shape)*dataType.Size()), shape...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%s, %v, %s)", t.DataType, t.Shape, t.Device)
}

func (t *Tensor) NumElements() int {
	return numElements(t.Shape)
}

func (t *Tensor) IsContiguous() bool {
	expected := contiguousStrides(t.Shape)
	for i := range t.Shape {
		if t.Shape[i] > 1 && t.Strides[i] != expected[i] {
			return false
		}
	}
	return true
}

// SharesStorage returns true if the tensor references the memory of the resource.
func (t *Tensor) SharesStorage(res resource.Resource) bool {
	return t.Storage.SameMemory(res)
}

func (t *Tensor) derive(shape, strides []int, offset int) *Tensor {
	return &Tensor{
		DataType: t.DataType,
		Device:   t.Device,
		Shape:    shape,
		Strides:  strides,
		Offset:   offset,
		Storage:  t.Storage,
		data:     t.data,
	}
}

// View reinterprets a contiguous tensor with a new shape of the same number of elements.
func (t *Tensor) View(shape ...int) (*Tensor, error) {
	if !t.IsContiguous() {
		return nil, types.ErrValue{Name: "tensor", Value: t, Reason: "view of a non-contiguous tensor"}
	}
	if numElements(shape) != t.NumElements() {
		return nil, types.ErrValue{
			Name:   "shape",
			Value:  shape,
			Reason: fmt.Sprintf("has %d elements, the tensor has %d", numElements(shape), t.NumElements()),
		}
	}
	return t.derive(append([]int{}, shape...), contiguousStrides(shape), t.Offset), nil
}

// Narrow returns a view restricted to [start, start+length) along the axis.
func (t *Tensor) Narrow(axis, start, length int) (*Tensor, error) {
	if axis < 0 || axis >= len(t.Shape) {
		return nil, types.ErrValue{Name: "axis", Value: axis, Reason: fmt.Sprintf("the tensor has %d dimensions", len(t.Shape))}
	}
	if start < 0 || length < 0 || start+length > t.Shape[axis] {
		return nil, types.ErrValue{
			Name:   "range",
			Value:  [2]int{start, length},
			Reason: fmt.Sprintf("out of bounds of the dimension %d of size %d", axis, t.Shape[axis]),
		}
	}
	shape := append([]int{}, t.Shape...)
	shape[axis] = length
	return t.derive(shape, append([]int{}, t.Strides...), t.Offset+start*t.Strides[axis]), nil
}

func (t *Tensor) linearIndex(idx []int) int {
	pos := t.Offset
	for i, v := range idx {
		pos += v * t.Strides[i]
	}
	return pos
}

func (t *Tensor) load(pos int) float64 {
	switch t.DataType {
	case types.DataTypeU8:
		return float64(t.data[pos])
	case types.DataTypeU16:
		return float64(binary.LittleEndian.Uint16(t.data[pos*2:]))
	case types.DataTypeF32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(t.data[pos*4:])))
	default:
		panic(fmt.Sprintf("unsupported data type %s", t.DataType))
	}
}

func (t *Tensor) store(pos int, v float64) {
	switch t.DataType {
	case types.DataTypeU8:
		t.data[pos] = uint8(math.Max(0, math.Min(math.MaxUint8, math.Round(v))))
	case types.DataTypeU16:
		binary.LittleEndian.PutUint16(t.data[pos*2:], uint16(math.Max(0, math.Min(math.MaxUint16, math.Round(v)))))
	case types.DataTypeF32:
		binary.LittleEndian.PutUint32(t.data[pos*4:], math.Float32bits(float32(v)))
	default:
		panic(fmt.Sprintf("unsupported data type %s", t.DataType))
	}
}

// At returns the element at the index converted to float64.
func (t *Tensor) At(idx ...int) float64 {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.Shape), len(idx)))
	}
	return t.load(t.linearIndex(idx))
}

// Set stores the value (saturated for integer types) at the index.
func (t *Tensor) Set(v float64, idx ...int) {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.Shape), len(idx)))
	}
	t.store(t.linearIndex(idx), v)
}

// forEachIndex iterates all the indices in row-major order.
func (t *Tensor) forEachIndex(fn func(idx []int)) {
	if t.NumElements() == 0 {
		return
	}
	idx := make([]int, len(t.Shape))
	for {
		fn(idx)
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < t.Shape[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// Bytes returns the elements in row-major order; the slice aliases the
// tensor memory if the tensor is contiguous.
func (t *Tensor) Bytes() []byte {
	elemSize := t.DataType.Size()
	if t.IsContiguous() {
		start := t.Offset * elemSize
		return t.data[start : start+t.NumElements()*elemSize]
	}
	out := make([]byte, 0, t.NumElements()*elemSize)
	t.forEachIndex(func(idx []int) {
		pos := t.linearIndex(idx) * elemSize
		out = append(out, t.data[pos:pos+elemSize]...)
	})
	return out
}

// Clone returns a contiguous copy in the Go heap.
func (t *Tensor) Clone() *Tensor {
	data := append([]byte{}, t.Bytes()...)
	return &Tensor{
		DataType: t.DataType,
		Device:   types.DeviceCPU,
		Shape:    append([]int{}, t.Shape...),
		Strides:  contiguousStrides(t.Shape),
		Storage:  resource.None(),
		data:     data,
	}
}

func (t *Tensor) Mean() float64 {
	n := t.NumElements()
	if n == 0 {
		return math.NaN()
	}
	var sum float64
	t.forEachIndex(func(idx []int) {
		sum += t.load(t.linearIndex(idx))
	})
	return sum / float64(n)
}

// TakeOwnership makes Close release the storage with the given function.
func (t *Tensor) TakeOwnership(release func(context.Context) error) {
	t.releaseFn = release
}

// OwnsStorage returns true if closing the tensor releases its storage.
func (t *Tensor) OwnsStorage() bool {
	return t.releaseFn != nil
}

func (t *Tensor) Close(ctx context.Context) error {
	var err error
	t.closeOnce.Do(func() {
		if t.releaseFn != nil {
			err = t.releaseFn(ctx)
		}
		t.data = nil
	})
	return err
}
