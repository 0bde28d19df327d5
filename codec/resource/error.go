package resource

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownHandle   = errors.New("unknown resource handle")
	ErrUnsupportedType = errors.New("unsupported resource type")
	ErrZeroSize        = errors.New("zero size")
	ErrLimitExceeded   = errors.New("allocation limit exceeded")
)

type errUnmappable struct {
	Manager Manager
}

func (e errUnmappable) Error() string {
	return fmt.Sprintf("%T cannot map resources into the host memory", e.Manager)
}
