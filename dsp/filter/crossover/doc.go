// Package crossover provides a two-way Linkwitz-Riley crossover for
// split-band processing.
//
// Example:
//
//	xo, _ := crossover.New(4900, 48000)
//	lo, hi := xo.ProcessSample(inputSample)
//	sum := lo + hi // allpass-filtered input
package crossover
