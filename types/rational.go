package types

import (
	"fmt"
	"math"
	"math/big"
	"time"
)

// Rational is used for frame rates, which cameras report as (approximate) floats.
type Rational struct {
	Num int
	Den int
}

func newNTSCRationalFromFloat64(f float64) *big.Rat {
	den := 1001 // common denominator for NTSC frame rates
	num := math.Ceil(f) * 1000
	r := big.NewRat(int64(num), int64(den))
	confirmValue, _ := r.Float64()
	if math.Abs(f-confirmValue) < 1e-2 {
		return r
	}
	return nil
}

// RationalFromApproxFloat64 recovers the exact rate from a float as reported
// by a clip (e.g. 23.976 -> 24000/1001).
func RationalFromApproxFloat64(fps float64) (r Rational) {
	if float64(int(fps)) == fps {
		r.Num = int(fps)
		r.Den = 1
		return
	}

	rat := newNTSCRationalFromFloat64(fps)
	if rat != nil {
		r.Num = int(rat.Num().Int64())
		r.Den = int(rat.Denom().Int64())
		return
	}

	r.Num = int(math.Round(fps * 1000000))
	r.Den = 1000000

	gcd := big.NewInt(0).GCD(nil, nil, big.NewInt(int64(r.Num)), big.NewInt(int64(r.Den))).Int64()
	if gcd > 1 {
		r.Num /= int(gcd)
		r.Den /= int(gcd)
	}
	return
}

func (r Rational) Float64() float64 {
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Timestamp returns the presentation time of the frame with the given index
// if this rational is a frame rate.
func (r Rational) Timestamp(frameIndex uint64) time.Duration {
	if r.Num == 0 {
		return 0
	}
	ns := new(big.Int).Mul(big.NewInt(int64(frameIndex)), big.NewInt(int64(r.Den)*int64(time.Second)))
	ns.Quo(ns, big.NewInt(int64(r.Num)))
	return time.Duration(ns.Int64())
}
