package stats

import "math"

// RelativeLift returns (pT - pC) / pC. It is undefined when either arm has
// no trials or the control rate is zero.
func RelativeLift(controlConv, controlN, treatConv, treatN int) Value {
	if controlN <= 0 || treatN <= 0 || controlConv <= 0 {
		return Undefined
	}
	pC := float64(controlConv) / float64(controlN)
	pT := float64(treatConv) / float64(treatN)
	return Defined((pT - pC) / pC)
}

// LiftInterval is a confidence interval for the relative lift, built on the
// log of the rate ratio with the delta-method standard error
//
//	se = sqrt(1/kT - 1/nT + 1/kC - 1/nC)
//
// and shifted back to lift scale. It is undefined when either arm has no
// conversions, since the log ratio is then unbounded.
func LiftInterval(controlConv, controlN, treatConv, treatN int, confidence float64) Interval {
	if controlN <= 0 || treatN <= 0 || controlConv <= 0 || treatConv <= 0 {
		return Interval{}
	}

	kC, nC := float64(controlConv), float64(controlN)
	kT, nT := float64(treatConv), float64(treatN)

	logRatio := math.Log((kT / nT) / (kC / nC))
	se := math.Sqrt(1/kT - 1/nT + 1/kC - 1/nC)
	margin := ZScore(confidence) * se

	return Interval{
		Lower: Defined(math.Exp(logRatio-margin) - 1),
		Upper: Defined(math.Exp(logRatio+margin) - 1),
	}
}
