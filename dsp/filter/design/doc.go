// Package design provides RBJ-cookbook biquad coefficient designers.
//
// The functions produce coefficients consumable by dsp/filter/biquad. Invalid
// frequencies or sample rates yield identity (pass-through) coefficients
// instead of errors, so audio paths never see NaN sections.
package design
