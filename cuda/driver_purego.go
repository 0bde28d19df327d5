//go:build !windows

package cuda

import (
	"errors"
	"fmt"

	"github.com/ebitengine/purego"
)

var libraryNames = []string{"libcuda.so.1", "libcuda.so", "libcuda.dylib"}

func loadDriver() (*driver, error) {
	var errs []error
	for _, name := range libraryNames {
		lib, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		drv := &driver{}
		purego.RegisterLibFunc(&drv.cuCtxGetCurrent, lib, "cuCtxGetCurrent")
		return drv, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrLibraryNotFound, errors.Join(errs...))
}
