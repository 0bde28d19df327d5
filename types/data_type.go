package types

import (
	"fmt"
)

// DataType is the scalar type of a single channel value.
type DataType int

const (
	UndefinedDataType DataType = iota
	DataTypeU8
	DataTypeU16
	DataTypeF32
	EndOfDataType
)

func (t DataType) String() string {
	switch t {
	case UndefinedDataType:
		return "<undefined>"
	case DataTypeU8:
		return "U8"
	case DataTypeU16:
		return "U16"
	case DataTypeF32:
		return "F32"
	default:
		return fmt.Sprintf("<unexpected_%d>", int(t))
	}
}

// Size returns the size of one element in bytes.
func (t DataType) Size() int {
	switch t {
	case DataTypeU8:
		return 1
	case DataTypeU16:
		return 2
	case DataTypeF32:
		return 4
	default:
		return 0
	}
}
