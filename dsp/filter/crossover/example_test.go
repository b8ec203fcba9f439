package crossover_test

import (
	"fmt"
	"math"

	"github.com/cwbudde/onstage-dsp/dsp/filter/crossover"
)

func ExampleNew() {
	xo, _ := crossover.New(1000, 48000)

	var lo, hi float64
	for range 48000 {
		lo, hi = xo.ProcessSample(1)
	}

	fmt.Printf("freq=%.0f Hz\n", xo.Freq())
	fmt.Printf("DC: lo=%.3f |hi|=%.3f\n", lo, math.Abs(hi))
	// Output:
	// freq=1000 Hz
	// DC: lo=1.000 |hi|=0.000
}
