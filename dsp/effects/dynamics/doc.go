// Package dynamics provides level-dependent effects for live use.
//
// [Gate] is a noise gate with attack, hold and release. [DeEsser] tames
// sibilance with a bandpass sidechain and either wideband or split-band
// gain reduction. Both publish parameters through an atomic snapshot so
// SetParams is safe to call from a UI goroutine while Process runs on the
// audio goroutine.
package dynamics
