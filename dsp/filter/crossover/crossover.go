package crossover

import (
	"fmt"

	"github.com/cwbudde/onstage-dsp/dsp/filter/biquad"
	"github.com/cwbudde/onstage-dsp/dsp/filter/design"
)

// Crossover is a two-way 4th-order Linkwitz-Riley crossover that splits an
// input signal into complementary lowpass and highpass outputs.
//
// The two outputs sum to an allpass-filtered version of the input.
type Crossover struct {
	lp   *biquad.Chain
	hp   *biquad.Chain
	freq float64
	sr   float64
}

// New creates an LR4 crossover at the given frequency.
func New(freq, sampleRate float64) (*Crossover, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("crossover: sample rate must be positive, got %v", sampleRate)
	}

	if freq <= 0 || freq >= sampleRate/2 {
		return nil, fmt.Errorf("crossover: frequency must be in (0, %v), got %v", sampleRate/2, freq)
	}

	return &Crossover{
		lp:   biquad.NewChain(design.LinkwitzRiley4LP(freq, sampleRate)),
		hp:   biquad.NewChain(design.LinkwitzRiley4HP(freq, sampleRate)),
		freq: freq,
		sr:   sampleRate,
	}, nil
}

// SetFrequency moves the crossover point. Filter state is preserved.
func (c *Crossover) SetFrequency(freq float64) error {
	if freq <= 0 || freq >= c.sr/2 {
		return fmt.Errorf("crossover: frequency must be in (0, %v), got %v", c.sr/2, freq)
	}

	c.lp.SetCoefficients(design.LinkwitzRiley4LP(freq, c.sr))
	c.hp.SetCoefficients(design.LinkwitzRiley4HP(freq, c.sr))
	c.freq = freq

	return nil
}

// ProcessSample filters one input sample and returns the lowpass and
// highpass outputs.
func (c *Crossover) ProcessSample(x float64) (lo, hi float64) {
	return c.lp.ProcessSample(x), c.hp.ProcessSample(x)
}

// Freq returns the crossover frequency in Hz.
func (c *Crossover) Freq() float64 { return c.freq }

// Reset clears the internal filter states of both chains.
func (c *Crossover) Reset() {
	c.lp.Reset()
	c.hp.Reset()
}
