package types

import (
	"fmt"
	"strings"
)

// ResolutionScale is the power-of-two downscale the decoder applies before processing.
type ResolutionScale uint32

const (
	ResolutionScaleFull              = ResolutionScale(0x66756c6c) // 'full'
	ResolutionScaleHalf              = ResolutionScale(0x68616c66) // 'half'
	ResolutionScaleQuarter           = ResolutionScale(0x71727472) // 'qrtr'
	ResolutionScaleEighth            = ResolutionScale(0x65697468) // 'eith'
	ResolutionScaleFullUpsideDown    = ResolutionScale(0x666c7566) // 'fluf'
	ResolutionScaleHalfUpsideDown    = ResolutionScale(0x686c7566) // 'hluf'
	ResolutionScaleQuarterUpsideDown = ResolutionScale(0x716c7566) // 'qluf'
	ResolutionScaleEighthUpsideDown  = ResolutionScale(0x656c7566) // 'eluf'
)

var resolutionScales = []ResolutionScale{
	ResolutionScaleFull,
	ResolutionScaleHalf,
	ResolutionScaleQuarter,
	ResolutionScaleEighth,
	ResolutionScaleFullUpsideDown,
	ResolutionScaleHalfUpsideDown,
	ResolutionScaleQuarterUpsideDown,
	ResolutionScaleEighthUpsideDown,
}

func (s ResolutionScale) String() string {
	switch s {
	case ResolutionScaleFull:
		return "Full"
	case ResolutionScaleHalf:
		return "Half"
	case ResolutionScaleQuarter:
		return "Quarter"
	case ResolutionScaleEighth:
		return "Eighth"
	case ResolutionScaleFullUpsideDown:
		return "FullUpsideDown"
	case ResolutionScaleHalfUpsideDown:
		return "HalfUpsideDown"
	case ResolutionScaleQuarterUpsideDown:
		return "QuarterUpsideDown"
	case ResolutionScaleEighthUpsideDown:
		return "EighthUpsideDown"
	default:
		return fmt.Sprintf("<unexpected_%s>", fourCCString(uint32(s)))
	}
}

// Factor returns the divisor applied to both frame dimensions (0 for unknown values).
func (s ResolutionScale) Factor() uint32 {
	switch s {
	case ResolutionScaleFull, ResolutionScaleFullUpsideDown:
		return 1
	case ResolutionScaleHalf, ResolutionScaleHalfUpsideDown:
		return 2
	case ResolutionScaleQuarter, ResolutionScaleQuarterUpsideDown:
		return 4
	case ResolutionScaleEighth, ResolutionScaleEighthUpsideDown:
		return 8
	default:
		return 0
	}
}

func (s ResolutionScale) IsFlipped() bool {
	switch s {
	case ResolutionScaleFullUpsideDown,
		ResolutionScaleHalfUpsideDown,
		ResolutionScaleQuarterUpsideDown,
		ResolutionScaleEighthUpsideDown:
		return true
	default:
		return false
	}
}

func (s *ResolutionScale) UnmarshalText(b []byte) error {
	v, err := ParseResolutionScale(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s ResolutionScale) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func ParseResolutionScale(str string) (ResolutionScale, error) {
	for _, s := range resolutionScales {
		if strings.EqualFold(str, s.String()) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown resolution scale '%s'", str)
}
