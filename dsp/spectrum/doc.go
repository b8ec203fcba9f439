// Package spectrum provides FFT-adjacent spectrum-domain utilities.
//
// The package does not implement an FFT itself. It operates on bins produced
// by an external FFT backend: magnitude extraction and sub-bin peak
// interpolation.
package spectrum
