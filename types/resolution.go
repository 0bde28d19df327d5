package types

import (
	"fmt"
)

type Resolution struct {
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

func (r *Resolution) Parse(s string) error {
	_, err := fmt.Sscanf(s, "%dx%d", &r.Width, &r.Height)
	if err != nil {
		return fmt.Errorf("unable to parse resolution '%s': %w", s, err)
	}
	return nil
}

// Scaled returns the resolution the decoder produces at the given scale:
// each dimension is divided by the scale factor, rounding up.
func (r Resolution) Scaled(scale ResolutionScale) Resolution {
	f := scale.Factor()
	if f == 0 {
		return Resolution{}
	}
	return Resolution{
		Width:  (r.Width + f - 1) / f,
		Height: (r.Height + f - 1) / f,
	}
}
