// result_code.go defines ResultCode, the signed 32-bit status returned by the codec engine.

package types

import (
	"fmt"
)

// ResultCode is an HRESULT-like value: it indicates success iff the high bit is clear.
type ResultCode int32

const (
	ResultCodeOK           = ResultCode(0)
	ResultCodeFalse        = ResultCode(1)
	ResultCodeUnexpected   = ResultCode(-2147418113) // 0x8000FFFF
	ResultCodeNotImpl      = ResultCode(-2147467263) // 0x80004001
	ResultCodeOutOfMemory  = ResultCode(-2147024882) // 0x8007000E
	ResultCodeInvalidArg   = ResultCode(-2147024809) // 0x80070057
	ResultCodeNoInterface  = ResultCode(-2147467262) // 0x80004002
	ResultCodePointer      = ResultCode(-2147467261) // 0x80004003
	ResultCodeHandle       = ResultCode(-2147024890) // 0x80070006
	ResultCodeAbort        = ResultCode(-2147467260) // 0x80004004
	ResultCodeFail         = ResultCode(-2147467259) // 0x80004005
	ResultCodeAccessDenied = ResultCode(-2147024891) // 0x80070005
)

func (rc ResultCode) IsSuccess() bool {
	return uint32(rc)&(1<<31) == 0
}

// Hex returns the code as it is usually printed by the vendor tooling, e.g. "0x80004005".
func (rc ResultCode) Hex() string {
	return fmt.Sprintf("0x%08X", uint32(rc))
}

func (rc ResultCode) String() string {
	switch rc {
	case ResultCodeOK:
		return "S_OK"
	case ResultCodeFalse:
		return "S_FALSE"
	case ResultCodeUnexpected:
		return "E_UNEXPECTED"
	case ResultCodeNotImpl:
		return "E_NOTIMPL"
	case ResultCodeOutOfMemory:
		return "E_OUTOFMEMORY"
	case ResultCodeInvalidArg:
		return "E_INVALIDARG"
	case ResultCodeNoInterface:
		return "E_NOINTERFACE"
	case ResultCodePointer:
		return "E_POINTER"
	case ResultCodeHandle:
		return "E_HANDLE"
	case ResultCodeAbort:
		return "E_ABORT"
	case ResultCodeFail:
		return "E_FAIL"
	case ResultCodeAccessDenied:
		return "E_ACCESSDENIED"
	default:
		return rc.Hex()
	}
}
