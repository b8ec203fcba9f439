package biquad

import (
	"math"

	"github.com/cwbudde/onstage-dsp/dsp/core"
)

// Coefficients of one normalized second-order section (a0 = 1).
// Feedback terms use the sign of the difference equation
// y[n] = B0 x[n] + B1 x[n-1] + B2 x[n-2] - A1 y[n-1] - A2 y[n-2].
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Identity returns coefficients that pass the input unchanged.
func Identity() Coefficients {
	return Coefficients{B0: 1}
}

// Stable reports whether both poles lie strictly inside the unit circle.
func (c Coefficients) Stable() bool {
	return math.Abs(c.A2) < 1 && math.Abs(c.A1) < 1+c.A2
}

// Section runs one set of coefficients in transposed direct form II.
// Parameter changes swap coefficients without touching the two state
// registers, so filters can be retuned while audio is running.
type Section struct {
	Coefficients

	s1, s2 float64
}

// NewSection returns a silent section using c.
func NewSection(c Coefficients) *Section {
	return &Section{Coefficients: c}
}

// SetCoefficients swaps the coefficients and keeps the state.
func (s *Section) SetCoefficients(c Coefficients) {
	s.Coefficients = c
}

// SetStableCoefficients swaps the coefficients only when c is stable and
// reports whether it did. The state is kept either way.
func (s *Section) SetStableCoefficients(c Coefficients) bool {
	if !c.Stable() {
		return false
	}

	s.Coefficients = c

	return true
}

// ProcessSample filters x and returns the output sample.
func (s *Section) ProcessSample(x float64) float64 {
	y := s.B0*x + s.s1
	s.s1 = s.B1*x - s.A1*y + s.s2
	s.s2 = s.B2*x - s.A2*y

	return y
}

// ProcessBlock filters buf in place. State left near zero by decaying input
// is flushed at the end of the block.
func (s *Section) ProcessBlock(buf []float64) {
	c := s.Coefficients
	s1, s2 := s.s1, s.s2

	for i, x := range buf {
		y := c.B0*x + s1
		s1 = c.B1*x - c.A1*y + s2
		s2 = c.B2*x - c.A2*y
		buf[i] = y
	}

	s.s1, s.s2 = core.FlushDenormals(s1), core.FlushDenormals(s2)
}

// Reset silences the section.
func (s *Section) Reset() {
	s.s1, s.s2 = 0, 0
}

// State returns the two state registers.
func (s *Section) State() [2]float64 {
	return [2]float64{s.s1, s.s2}
}
