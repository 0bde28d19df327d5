//go:build windows

package cuda

import (
	"github.com/xaionaro-go/rawpipeline/types"
)

func loadDriver() (*driver, error) {
	return nil, types.ErrNotImplemented{Err: ErrLibraryNotFound}
}
