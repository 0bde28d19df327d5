package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/rawpipeline"
	"github.com/xaionaro-go/rawpipeline/codec/simcodec"
	"github.com/xaionaro-go/rawpipeline/config"
	"github.com/xaionaro-go/rawpipeline/flow"
	"github.com/xaionaro-go/rawpipeline/tensor"
	"github.com/xaionaro-go/rawpipeline/types"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags] [<clip>]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	configPath := pflag.String("config", "", "path to a YAML config")
	deviceFlag := pflag.String("device", "", "processing device: cpu, cuda or cuda:N")
	pixelFormatFlag := pflag.String("pixel-format", "", "pixel format, e.g. RGBA_U8 or RGB_F32_Planar")
	scaleFlag := pflag.String("resolution-scale", "", "Full, Half, Quarter or Eighth")
	maxRunningTasks := pflag.Int("max-running-tasks", 0, "amount of frames decoded at once")
	manual := pflag.Bool("manual", false, "drive the manual flow directly, delivering frames in completion order")
	statsInterval := pflag.Duration("stats-interval", time.Second, "how often to print the codec statistics; zero disables")
	pflag.Parse()
	if len(pflag.Args()) > 1 {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := signal.NotifyContext(ctx, stopSignals...)
	defer cancelFn()
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			l.Fatal(err)
		}
	}
	if pflag.NArg() == 1 {
		cfg.Clip = pflag.Arg(0)
	}
	if err := applyFlags(cfg, *deviceFlag, *pixelFormatFlag, *scaleFlag, *maxRunningTasks); err != nil {
		l.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		l.Fatal(err)
	}
	l.Debugf("config: %#+v", cfg)

	c := simcodec.New(
		simcodec.OptionWorkers(cfg.SimCodec.Workers),
		simcodec.OptionLatency(cfg.SimCodec.Latency),
		simcodec.OptionAllocationLimit(cfg.SimCodec.AllocationLimit),
	)
	defer func() {
		if err := c.Close(ctx); err != nil {
			l.Error(err)
		}
	}()

	reader, err := rawpipeline.NewFrameImageReader(ctx, c, cfg.Clip, cfg.Device)
	if err != nil {
		l.Fatal(err)
	}
	frameRes := types.Resolution{Width: reader.FrameWidth(), Height: reader.FrameHeight()}
	l.Infof("%s: %d frames of %s at %s fps", cfg.Clip, reader.FrameCount(), frameRes, reader.FrameRateRational())

	if *statsInterval > 0 {
		observability.Go(ctx, func(ctx context.Context) {
			printStats(ctx, c, *statsInterval)
		})
	}

	meter := newFPSMeter()
	onFrame := func(ctx context.Context, frameIndex uint64, img *tensor.Tensor) error {
		defer img.Close(ctx)
		fps := meter.Tick()
		fmt.Printf("frame %6d @%v: %v mean %.4f (%.2f fps)\n", frameIndex, reader.FrameTimestamp(frameIndex), img.Shape, img.Mean(), fps)
		return nil
	}

	started := time.Now()
	if *manual {
		err = reader.DecodeAll(ctx, cfg.PixelFormat, cfg.EffectiveResolutionScale(frameRes), cfg.MaxRunningTasks,
			func(ctx context.Context, frameIndex uint64, img *tensor.Tensor, err error) error {
				if err != nil {
					l.Errorf("frame %d: %v", frameIndex, err)
					return nil
				}
				return onFrame(ctx, frameIndex, img)
			},
		)
	} else {
		from, to := cfg.FrameRange(reader.FrameCount())
		err = reader.RunFlow(ctx, cfg.PixelFormat, cfg.MaxRunningTasks, func(ctx context.Context, tm *flow.TaskManager) error {
			defer func() {
				statsJSON, err := json.Marshal(tm.Handler().Statistics())
				if err == nil {
					fmt.Printf("flow: %s\n", statsJSON)
				}
			}()
			return rawpipeline.ReadRange(ctx, tm, from, to, cfg.Window, onFrame, cfg.TaskOptions(frameRes)...)
		})
	}
	if err != nil {
		l.Fatal(err)
	}

	stats := c.Statistics()
	fmt.Printf("processed %d frames (%s) in %v\n",
		stats.Process.Succeeded.Count,
		humanize.IBytes(stats.Process.Succeeded.Bytes),
		time.Since(started).Round(time.Millisecond),
	)
}

func applyFlags(
	cfg *config.Config,
	device, pixelFormat, scale string,
	maxRunningTasks int,
) error {
	var err error
	if device != "" {
		if cfg.Device, err = types.ParseDevice(device); err != nil {
			return err
		}
	}
	if pixelFormat != "" {
		if cfg.PixelFormat, err = types.ParseResourceFormat(pixelFormat); err != nil {
			return err
		}
	}
	if scale != "" {
		if cfg.ResolutionScale, err = types.ParseResolutionScale(scale); err != nil {
			return err
		}
		cfg.AutoResolutionScale = false
	}
	if maxRunningTasks != 0 {
		cfg.MaxRunningTasks = maxRunningTasks
	}
	return nil
}

func printStats(ctx context.Context, c *simcodec.Codec, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			resStats := c.HostResources().Stats()
			statsJSON, err := json.Marshal(c.Statistics())
			if err != nil {
				logger.Error(ctx, err)
				return
			}
			fmt.Printf("codec:%s live:%d (%s)\n", statsJSON, resStats.Live, humanize.IBytes(resStats.LiveBytes))
		}
	}
}
