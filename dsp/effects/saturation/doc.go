// Package saturation implements a multimode saturation effect.
//
// Tape mode is an asymmetric tanh with optional soft compression, a high
// shelf that imitates head rolloff and a lowpass tone control. Tube mode
// blends even and odd harmonic shapers across a triode to pentode axis and
// ends in a presence peak and a second tanh stage. Digital mode quantizes
// to 2..16 bits and holds every Nth sample before a lowpass tone control.
//
// Output level is ramped over 20 ms and the dry signal is mixed back in
// when Mix is below one.
package saturation
