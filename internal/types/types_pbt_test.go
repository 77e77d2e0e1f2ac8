package types

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFundingRateMagnitudeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("magnitude ignores sign", prop.ForAll(
		func(long, short float64) bool {
			a := FundingRate{LongRate: long, ShortRate: short}
			b := FundingRate{LongRate: -long, ShortRate: -short}
			return a.Magnitude() == b.Magnitude()
		},
		gen.Float64Range(-1000, 1000),
		gen.Float64Range(-1000, 1000),
	))

	properties.Property("magnitude is the larger absolute rate", prop.ForAll(
		func(long, short float64) bool {
			m := FundingRate{LongRate: long, ShortRate: short}.Magnitude()
			return m == math.Max(math.Abs(long), math.Abs(short))
		},
		gen.Float64Range(-1000, 1000),
		gen.Float64Range(-1000, 1000),
	))

	properties.TestingRun(t)
}
