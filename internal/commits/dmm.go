package commits

// RiskProfile sums NLOC of methods in the low- and high-risk buckets for prop
func RiskProfile(methods []Method, prop Property) (low, high int) {
	for _, m := range methods {
		if m.IsLowRisk(prop) {
			low += m.NLOC
		} else {
			high += m.NLOC
		}
	}
	return low, high
}

// DeltaRiskProfile is the change of each bucket from before to after
func DeltaRiskProfile(before, after []Method, prop Property) (deltaLow, deltaHigh int) {
	lowBefore, highBefore := RiskProfile(before, prop)
	lowAfter, highAfter := RiskProfile(after, prop)
	return lowAfter - lowBefore, highAfter - highBefore
}

// GoodChangeProportion splits a delta profile into risk-reducing and
// risk-increasing volume
func GoodChangeProportion(deltaLow, deltaHigh int) (good, bad int) {
	if deltaLow >= 0 {
		good = deltaLow
	} else {
		bad = -deltaLow
	}
	if deltaHigh >= 0 {
		bad += deltaHigh
	} else {
		good += -deltaHigh
	}
	return good, bad
}

// DeltaMaintainability scores a delta profile in [0, 1]; 1 means the change
// only moved code towards low risk. Removing low-risk code without touching
// high-risk code scores 1.
func DeltaMaintainability(deltaLow, deltaHigh int) float64 {
	if deltaLow < 0 && deltaHigh == 0 {
		return 1.0
	}

	good, bad := GoodChangeProportion(deltaLow, deltaHigh)
	if good+bad == 0 {
		return 1.0
	}

	proportion := float64(good) / float64(good+bad)
	if proportion < 0 || proportion > 1 {
		panic("delta maintainability out of range")
	}
	return proportion
}
