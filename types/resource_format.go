// resource_format.go defines the ResourceFormat enum (the pixel layout of a processed image).

package types

import (
	"fmt"
	"strings"
)

type ResourceFormat uint32

const (
	ResourceFormatRGBAU8       = ResourceFormat(0x72676261) // 'rgba'
	ResourceFormatBGRAU8       = ResourceFormat(0x62677261) // 'bgra'
	ResourceFormatRGBU16       = ResourceFormat(0x3136696c) // '16il'
	ResourceFormatRGBAU16      = ResourceFormat(0x3136616c) // '16al'
	ResourceFormatBGRAU16      = ResourceFormat(0x31366c61) // '16la'
	ResourceFormatRGBU16Planar = ResourceFormat(0x3136706c) // '16pl'
	ResourceFormatRGBF32       = ResourceFormat(0x66333273) // 'f32s'
	ResourceFormatRGBF32Planar = ResourceFormat(0x66333270) // 'f32p'
	ResourceFormatBGRAF32      = ResourceFormat(0x66333261) // 'f32a'
)

var resourceFormats = []ResourceFormat{
	ResourceFormatRGBAU8,
	ResourceFormatBGRAU8,
	ResourceFormatRGBU16,
	ResourceFormatRGBAU16,
	ResourceFormatBGRAU16,
	ResourceFormatRGBU16Planar,
	ResourceFormatRGBF32,
	ResourceFormatRGBF32Planar,
	ResourceFormatBGRAF32,
}

func (f ResourceFormat) String() string {
	switch f {
	case ResourceFormatRGBAU8:
		return "RGBA_U8"
	case ResourceFormatBGRAU8:
		return "BGRA_U8"
	case ResourceFormatRGBU16:
		return "RGB_U16"
	case ResourceFormatRGBAU16:
		return "RGBA_U16"
	case ResourceFormatBGRAU16:
		return "BGRA_U16"
	case ResourceFormatRGBU16Planar:
		return "RGB_U16_Planar"
	case ResourceFormatRGBF32:
		return "RGB_F32"
	case ResourceFormatRGBF32Planar:
		return "RGB_F32_Planar"
	case ResourceFormatBGRAF32:
		return "BGRA_F32"
	default:
		return fmt.Sprintf("<unexpected_%s>", fourCCString(uint32(f)))
	}
}

// Channels returns the channel names in memory order.
func (f ResourceFormat) Channels() []string {
	name := f.String()
	if strings.HasPrefix(name, "<") {
		return nil
	}
	layout := name[:strings.Index(name, "_")]
	return strings.Split(layout, "")
}

func (f ResourceFormat) NumChannels() int {
	return len(f.Channels())
}

func (f ResourceFormat) DataType() DataType {
	switch f {
	case ResourceFormatRGBAU8, ResourceFormatBGRAU8:
		return DataTypeU8
	case ResourceFormatRGBU16, ResourceFormatRGBAU16, ResourceFormatBGRAU16, ResourceFormatRGBU16Planar:
		return DataTypeU16
	case ResourceFormatRGBF32, ResourceFormatRGBF32Planar, ResourceFormatBGRAF32:
		return DataTypeF32
	default:
		return UndefinedDataType
	}
}

func (f ResourceFormat) IsPlanar() bool {
	return f == ResourceFormatRGBU16Planar || f == ResourceFormatRGBF32Planar
}

// BytesPerPixel returns the size of all the channels of one pixel.
func (f ResourceFormat) BytesPerPixel() int {
	return f.NumChannels() * f.DataType().Size()
}

func (f *ResourceFormat) UnmarshalText(b []byte) error {
	v, err := ParseResourceFormat(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func (f ResourceFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// ParseResourceFormat accepts names like "RGBA_U8" or "rgb_f32_planar".
func ParseResourceFormat(s string) (ResourceFormat, error) {
	for _, f := range resourceFormats {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown resource format '%s'", s)
}
