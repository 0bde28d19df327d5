package task

import (
	"errors"
	"fmt"
)

var (
	// ErrConsumed is returned on any operation on an already consumed task.
	ErrConsumed = errors.New("the task is already consumed")

	// ErrCancelled is what consuming a cancelled task returns.
	ErrCancelled = errors.New("the task was cancelled")
)

type ErrAlreadyDone struct {
	State State
}

func (e ErrAlreadyDone) Error() string {
	return fmt.Sprintf("the task is already %s", e.State)
}

type ErrInvalidTransition struct {
	From State
	To   State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot transition the task from %s to %s", e.From, e.To)
}
