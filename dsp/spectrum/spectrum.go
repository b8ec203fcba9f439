package spectrum

import "github.com/cwbudde/algo-vecmath"

// SplitComplex copies the real and imaginary parts of the first len(re)
// bins of in into re and im.
func SplitComplex(re, im []float64, in []complex128) {
	for i := range re {
		re[i] = real(in[i])
		im[i] = imag(in[i])
	}
}

// MagnitudeFromParts computes |X[k]| = sqrt(re[k]^2 + im[k]^2) into dst.
// All three slices must have the same length. Zero-alloc.
func MagnitudeFromParts(dst, re, im []float64) {
	vecmath.Magnitude(dst, re, im)
}

// ParabolicPeak fits a parabola through bins k-1, k, k+1 of mag and returns
// the fractional offset of the true peak from k, in [-0.5, 0.5].
// Edge bins and flat neighbourhoods return 0.
func ParabolicPeak(mag []float64, k int) float64 {
	if k <= 0 || k >= len(mag)-1 {
		return 0
	}

	alpha, beta, gamma := mag[k-1], mag[k], mag[k+1]

	den := alpha - 2*beta + gamma
	if den == 0 {
		return 0
	}

	p := 0.5 * (alpha - gamma) / den
	if p > 0.5 {
		return 0.5
	}

	if p < -0.5 {
		return -0.5
	}

	return p
}
