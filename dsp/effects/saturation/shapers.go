package saturation

import (
	"math"

	"github.com/cwbudde/onstage-dsp/dsp/core"
)

// tapeShape drives x into an asymmetric tanh followed by an optional
// level-dependent gain reduction.
func tapeShape(x, bias, compression float64) float64 {
	asymmetry := 0.1 + bias*0.2

	if x > 0 {
		x = math.Tanh(x * (1 + asymmetry))
	} else {
		x = math.Tanh(x * (1 - asymmetry))
	}

	if compression > 0.01 {
		x *= 1 / (1 + compression*math.Abs(x)*2)
	}

	return x
}

// tubeShape blends triode and pentode transfer curves. bias below 0.5 moves
// from plain tanh toward an even/odd polynomial blend; above 0.5 it mixes in
// hard clipping and crossover distortion near zero.
func tubeShape(x, bias, oddEven float64) float64 {
	var sat float64

	if bias < 0.5 {
		triode := 1 - bias*2
		even := x + 0.25*x*x - 0.1*x*x*x
		odd := math.Tanh(x * 1.5)
		sat = even*(1-oddEven)*triode + odd*oddEven + math.Tanh(x)*(1-triode)
	} else {
		pentode := (bias - 0.5) * 2
		hard := core.Clamp(x*1.2, -1, 1)
		soft := math.Tanh(x*2) * 0.8

		crossover := 0.0
		if math.Abs(x) < 0.1 {
			crossover = x * 3 * pentode
		}

		sat = soft*(1-pentode*0.5) + hard*pentode*0.5 + crossover
	}

	return sat + sat*sat*0.15*(1-oddEven)
}

// quantStep returns the quantizer step for a bit depth.
func quantStep(bits int) float64 {
	return 2 / math.Exp2(float64(bits))
}

// quantize clips x to [-1, 1] and rounds it to the nearest multiple of step.
func quantize(x, step float64) float64 {
	x = core.Clamp(x, -1, 1)
	return math.Floor(x/step+0.5) * step
}
