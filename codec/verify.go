package codec

import (
	"github.com/xaionaro-go/rawpipeline/types"
)

// Verify converts a non-success result code of the named call into types.ErrCodec.
func Verify(op string, rc types.ResultCode) error {
	if rc.IsSuccess() {
		return nil
	}
	return types.ErrCodec{Op: op, Code: rc}
}

// StageResult converts a non-success result code of a completed stage into types.ErrCodec.
func StageResult(stage types.Stage, rc types.ResultCode) error {
	if rc.IsSuccess() {
		return nil
	}
	return types.ErrCodec{Stage: stage, Code: rc}
}
