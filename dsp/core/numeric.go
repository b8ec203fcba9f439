package core

import "math"

const defaultEpsilon = 1e-12

// Clamp limits value to the inclusive range [min, max].
func Clamp(value, min, max float64) float64 {
	if min > max {
		min, max = max, min
	}

	if value < min {
		return min
	}

	if value > max {
		return max
	}

	return value
}

// ClampOrDefault limits value to [min, max]. NaN and infinities yield def.
func ClampOrDefault(value, min, max, def float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return def
	}

	return Clamp(value, min, max)
}

// NearlyEqual reports whether a and b are equal within eps.
func NearlyEqual(a, b, eps float64) bool {
	if eps <= 0 {
		eps = defaultEpsilon
	}

	diff := math.Abs(a - b)
	if diff <= eps {
		return true
	}

	largest := math.Max(math.Abs(a), math.Abs(b))
	if largest == 0 {
		return diff <= eps
	}

	return diff/largest <= eps
}

// FlushDenormals converts tiny denormal-like values to exact zero.
// This can reduce denormal-related CPU slowdowns in hot DSP loops.
func FlushDenormals(x float64) float64 {
	const epsilon = 1e-30
	if x > -epsilon && x < epsilon {
		return 0
	}

	return x
}

// DBToLinear converts dB to linear amplitude (20*log10 convention).
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts linear amplitude to dB (20*log10 convention).
// Returns -Inf for zero and NaN for negative values.
func LinearToDB(linear float64) float64 {
	if linear < 0 {
		return math.NaN()
	}

	if linear == 0 {
		return math.Inf(-1)
	}

	return 20 * math.Log10(linear)
}

// GainToDB converts a linear gain to dB, returning floorDB for gains at or
// below the floor's linear equivalent.
func GainToDB(gain, floorDB float64) float64 {
	if gain <= 0 || math.IsNaN(gain) {
		return floorDB
	}

	db := LinearToDB(gain)
	if db < floorDB {
		return floorDB
	}

	return db
}

// AttackReleaseCoeff returns the one-pole smoothing step for a time constant
// in milliseconds: 1 - exp(-1 / (sampleRate * seconds)).
// Used as y += coeff * (x - y). A zero or negative time yields 1 (no smoothing).
func AttackReleaseCoeff(ms, sampleRate float64) float64 {
	if ms <= 0 || sampleRate <= 0 {
		return 1
	}

	return 1 - math.Exp(-1/(sampleRate*ms*0.001))
}

// DecayCoeff returns the one-pole pole exp(-1 / (sampleRate * seconds)) for
// a time constant in milliseconds. Used as y = c*y + (1-c)*x.
func DecayCoeff(ms, sampleRate float64) float64 {
	if ms <= 0 || sampleRate <= 0 {
		return 0
	}

	return math.Exp(-1 / (sampleRate * ms * 0.001))
}
