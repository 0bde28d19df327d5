package types

import (
	"fmt"
)

// Stage is one of the sequential phases a frame goes through.
type Stage int

const (
	UndefinedStage Stage = iota
	StageRead
	StageDecode
	StageProcess
	EndOfStage
)

func (s Stage) String() string {
	switch s {
	case UndefinedStage:
		return "<undefined>"
	case StageRead:
		return "read"
	case StageDecode:
		return "decode"
	case StageProcess:
		return "process"
	default:
		return fmt.Sprintf("<unexpected_%d>", int(s))
	}
}
