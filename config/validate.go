package config

import (
	"fmt"

	"github.com/xaionaro-go/rawpipeline/types"
)

// Validate returns types.ErrConfiguration describing the first invalid value.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return types.ErrConfiguration{Reason: fmt.Sprintf(format, args...)}
	}
	if c.Clip == "" {
		return fail("clip is not set")
	}
	if c.PixelFormat.DataType() == types.UndefinedDataType {
		return fail("pixel_format %s is not supported", c.PixelFormat)
	}
	if c.AutoResolutionScale && c.ResolutionScale != 0 {
		return fail("resolution_scale %s conflicts with auto_resolution_scale", c.ResolutionScale)
	}
	if !c.AutoResolutionScale && c.ResolutionScale.Factor() == 0 {
		return fail("resolution_scale %s is not supported", c.ResolutionScale)
	}
	if c.MaxRunningTasks < 1 {
		return fail("max_running_tasks must be positive, got %d", c.MaxRunningTasks)
	}
	if c.Window < 1 {
		return fail("window must be positive, got %d", c.Window)
	}
	if r := c.Crop; r != nil && (r.X < 0 || r.Y < 0 || r.Width <= 0 || r.Height <= 0) {
		return fail("crop %s is invalid", r)
	}
	if s := c.OutSize; s != nil && (s.Width == 0 || s.Height == 0) {
		return fail("out_size %s is empty", s)
	}
	if c.SimCodec.Workers < 0 || c.SimCodec.Latency < 0 {
		return fail("simcodec workers and latency cannot be negative")
	}
	return nil
}
