// Package cuda resolves the CUDA driver state the codec needs for its CUDA
// pipeline. The driver library is loaded at runtime, so the package builds
// and works (returning errors) on machines without CUDA.
package cuda

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/types"
)

var (
	ErrLibraryNotFound = errors.New("unable to load the CUDA driver library")
	ErrNoContext       = errors.New("no CUDA context is current on this thread")
)

// ErrDriver is a non-success CUresult.
type ErrDriver struct {
	Func   string
	Result int32
}

func (e ErrDriver) Error() string {
	return fmt.Sprintf("%s returned CUresult %d", e.Func, e.Result)
}

type driver struct {
	cuCtxGetCurrent func(pctx *uintptr) int32
}

var (
	loadOnce     sync.Once
	loadedDriver *driver
	loadErr      error
)

func getDriver() (*driver, error) {
	loadOnce.Do(func() {
		loadedDriver, loadErr = loadDriver()
	})
	return loadedDriver, loadErr
}

// CurrentContext returns the CUcontext current on the calling thread.
func CurrentContext(ctx context.Context) (_ret types.DeviceContext, _err error) {
	logger.Debugf(ctx, "CurrentContext")
	defer func() { logger.Debugf(ctx, "/CurrentContext: 0x%X %v", _ret, _err) }()

	drv, err := getDriver()
	if err != nil {
		return 0, err
	}
	var cuCtx uintptr
	if rc := drv.cuCtxGetCurrent(&cuCtx); rc != 0 {
		return 0, ErrDriver{Func: "cuCtxGetCurrent", Result: rc}
	}
	if cuCtx == 0 {
		return 0, ErrNoContext
	}
	return types.DeviceContext(cuCtx), nil
}
