// Package config is the YAML configuration of a decoding run: which clip,
// where to process it and what to make of every frame.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/xaionaro-go/rawpipeline/buffermanager"
	"github.com/xaionaro-go/rawpipeline/types"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxRunningTasks = 3
)

type Config struct {
	Clip            string                `yaml:"clip"`
	Device          types.Device          `yaml:"device"`
	PixelFormat     types.ResourceFormat  `yaml:"pixel_format"`
	ResolutionScale types.ResolutionScale `yaml:"resolution_scale,omitempty"`

	// AutoResolutionScale picks the scale from the crop and the output size;
	// it conflicts with an explicit ResolutionScale.
	AutoResolutionScale bool `yaml:"auto_resolution_scale,omitempty"`

	MaxRunningTasks int                 `yaml:"max_running_tasks"`
	Window          int                 `yaml:"window"`
	Frames          FramesConfig        `yaml:"frames,omitempty"`
	Crop            *buffermanager.Rect `yaml:"crop,omitempty"`
	OutSize         *types.Resolution   `yaml:"out_size,omitempty"`
	SimCodec        SimCodecConfig      `yaml:"simcodec,omitempty"`
}

// FramesConfig is the range of frames to decode; zero Count means up to the
// end of the clip.
type FramesConfig struct {
	From  uint64 `yaml:"from"`
	Count uint64 `yaml:"count"`
}

// SimCodecConfig tunes the in-process codec engine.
type SimCodecConfig struct {
	Workers         int           `yaml:"workers"`
	Latency         time.Duration `yaml:"latency"`
	AllocationLimit uint64        `yaml:"allocation_limit"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.ErrIO{Path: path, Err: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, types.ErrFormat{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse decodes the YAML document, rejecting unknown fields, and applies the defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode the config: %w", err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (c *Config) setDefaults() {
	if c.Device.Type == types.ResourceTypeNone {
		c.Device = types.DeviceCPU
	}
	if c.PixelFormat == 0 {
		c.PixelFormat = types.ResourceFormatRGBAU8
	}
	if c.ResolutionScale == 0 && !c.AutoResolutionScale {
		c.ResolutionScale = types.ResolutionScaleFull
	}
	if c.MaxRunningTasks == 0 {
		c.MaxRunningTasks = DefaultMaxRunningTasks
	}
	if c.Window == 0 {
		c.Window = 2 * c.MaxRunningTasks
	}
}

// Bytes renders the config back to YAML.
func (c *Config) Bytes() ([]byte, error) {
	return yaml.Marshal(c)
}
