package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/rawpipeline/buffermanager"
	"github.com/xaionaro-go/rawpipeline/types"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
clip: sim://4096x2160?frames=100
device: cuda:1
pixel_format: RGB_F32_PLANAR
auto_resolution_scale: true
max_running_tasks: 4
frames:
  from: 10
  count: 20
crop: {x: 100, y: 50, width: 800, height: 800}
out_size: {width: 100, height: 100}
simcodec:
  workers: 2
  latency: 5ms
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, types.DeviceCUDA(1), cfg.Device)
	require.Equal(t, types.ResourceFormatRGBF32Planar, cfg.PixelFormat)
	require.Equal(t, 4, cfg.MaxRunningTasks)
	require.Equal(t, 8, cfg.Window)
	require.Equal(t, &buffermanager.Rect{X: 100, Y: 50, Width: 800, Height: 800}, cfg.Crop)
	require.Equal(t, 5*time.Millisecond, cfg.SimCodec.Latency)

	frame := types.Resolution{Width: 4096, Height: 2160}
	require.Equal(t, types.ResolutionScaleEighth, cfg.EffectiveResolutionScale(frame))
	require.Len(t, cfg.TaskOptions(frame), 4)

	from, to := cfg.FrameRange(100)
	require.Equal(t, uint64(10), from)
	require.Equal(t, uint64(30), to)
	from, to = cfg.FrameRange(15)
	require.Equal(t, uint64(10), from)
	require.Equal(t, uint64(15), to)
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte("clip: sim://64x64\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, types.DeviceCPU, cfg.Device)
	require.Equal(t, types.ResourceFormatRGBAU8, cfg.PixelFormat)
	require.Equal(t, types.ResolutionScaleFull, cfg.ResolutionScale)
	require.Equal(t, DefaultMaxRunningTasks, cfg.MaxRunningTasks)

	from, to := cfg.FrameRange(7)
	require.Zero(t, from)
	require.Equal(t, uint64(7), to)
}

func TestParseErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown field":  "clip: a\nbogus: 1\n",
		"unknown format": "clip: a\npixel_format: YUV\n",
		"unknown device": "clip: a\ndevice: tpu\n",
		"unknown scale":  "clip: a\nresolution_scale: third\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	for name, doc := range map[string]string{
		"no clip":        "device: cpu\n",
		"both scales":    "clip: a\nresolution_scale: half\nauto_resolution_scale: true\n",
		"negative tasks": "clip: a\nmax_running_tasks: -1\n",
		"empty crop":     "clip: a\ncrop: {x: 0, y: 0, width: 0, height: 10}\n",
		"empty out size": "clip: a\nout_size: {width: 10, height: 0}\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Parse([]byte(doc))
			require.NoError(t, err)
			require.ErrorAs(t, cfg.Validate(), &types.ErrConfiguration{})
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rawdecode.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clip: sim://64x64\nmax_running_tasks: 2\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.MaxRunningTasks)

	b, err := cfg.Bytes()
	require.NoError(t, err)
	again, err := Parse(b)
	require.NoError(t, err)
	require.Equal(t, cfg, again)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorAs(t, err, &types.ErrIO{})
}
