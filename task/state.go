package task

import (
	"fmt"
)

type State int

const (
	StateUndefined State = iota
	StatePending
	StateRunning
	StateResolved
	StateRejected
	StateCancelled
	EndOfState
)

func (s State) String() string {
	switch s {
	case StateUndefined:
		return "<undefined>"
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("<unexpected_%d>", int(s))
	}
}

func (s State) IsTerminal() bool {
	switch s {
	case StateResolved, StateRejected, StateCancelled:
		return true
	default:
		return false
	}
}
