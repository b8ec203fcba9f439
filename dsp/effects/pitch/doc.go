// Package pitch provides monophonic pitch estimators for tuner displays.
//
// Two strategies share the [Estimator] interface:
//   - Tuner: FFT harmonic product spectrum with noise-floor suppression,
//     octave correction and a two-frame vote.
//   - Tracker: multi-threshold YIN with an online note HMM and a sticky
//     note lock.
//
// Estimators analyze channel 0 and never modify the buffer. Results are
// published through atomics and can be polled from any goroutine.
package pitch
