package stats

import (
	"errors"
	"math"
)

// ErrZeroVariance is returned when the pooled proportion is 0 or 1, so the
// z-statistic has no spread to divide by.
var ErrZeroVariance = errors.New("pooled proportion has zero variance")

// ZTest is the outcome of a pooled two-proportion z-test.
type ZTest struct {
	Z      float64
	PValue float64
}

// ZTestGreater tests whether the treatment rate exceeds the control rate.
// It uses the pooled proportion under the null hypothesis and returns the
// one-tailed p-value P(Z >= z).
func ZTestGreater(controlConv, controlN, treatConv, treatN int) (ZTest, error) {
	if controlN <= 0 || treatN <= 0 {
		return ZTest{}, ErrNoTrials
	}

	// Calculate proportions
	pC := float64(controlConv) / float64(controlN)
	pT := float64(treatConv) / float64(treatN)

	// Pooled proportion under null hypothesis (pC = pT)
	pooledP := float64(controlConv+treatConv) / float64(controlN+treatN)

	// Standard error of the difference
	se := math.Sqrt(pooledP * (1 - pooledP) * (1/float64(controlN) + 1/float64(treatN)))
	if se == 0 {
		return ZTest{}, ErrZeroVariance
	}

	z := (pT - pC) / se
	return ZTest{Z: z, PValue: UpperTail(z)}, nil
}

// NormalCDF is the cumulative distribution function of the standard normal
// distribution.
func NormalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// UpperTail returns P(Z >= x) for a standard normal Z. Computing it with
// Erfc directly keeps precision for large x.
func UpperTail(x float64) float64 {
	return 0.5 * math.Erfc(x/math.Sqrt2)
}
