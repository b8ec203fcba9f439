package biquad

// Chain runs sections in series. The zero value is an empty pass-through.
type Chain struct {
	sections []Section
}

// NewChain returns a silent cascade with one section per coefficient set.
func NewChain(coeffs []Coefficients) *Chain {
	c := &Chain{}
	c.SetCoefficients(coeffs)

	return c
}

// Len returns the number of sections.
func (c *Chain) Len() int { return len(c.sections) }

// SetCoefficients retunes the cascade. State survives when the section
// count is unchanged; otherwise the cascade is rebuilt silent.
func (c *Chain) SetCoefficients(coeffs []Coefficients) {
	if len(coeffs) != len(c.sections) {
		c.sections = make([]Section, len(coeffs))
	}

	for i := range coeffs {
		c.sections[i].Coefficients = coeffs[i]
	}
}

// ProcessSample runs x through every section.
func (c *Chain) ProcessSample(x float64) float64 {
	for i := range c.sections {
		x = c.sections[i].ProcessSample(x)
	}

	return x
}

// ProcessBlock filters buf in place, one section at a time.
func (c *Chain) ProcessBlock(buf []float64) {
	for i := range c.sections {
		c.sections[i].ProcessBlock(buf)
	}
}

// Reset silences every section.
func (c *Chain) Reset() {
	for i := range c.sections {
		c.sections[i].Reset()
	}
}
