package dynamics

import (
	"math"

	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/dsp/effect"
	"github.com/cwbudde/onstage-dsp/dsp/filter/biquad"
	"github.com/cwbudde/onstage-dsp/dsp/filter/crossover"
	"github.com/cwbudde/onstage-dsp/dsp/filter/design"
)

// DeEsserMode selects how the computed gain is applied.
type DeEsserMode int

const (
	// DeEsserWideband multiplies the whole signal by the computed gain.
	DeEsserWideband DeEsserMode = iota
	// DeEsserSplitBand reduces only the band above the crossover and sums
	// it with the untouched low band.
	DeEsserSplitBand
)

// String returns the mode name used in persisted state.
func (m DeEsserMode) String() string {
	if m == DeEsserWideband {
		return "wideband"
	}

	return "splitband"
}

const (
	// Default de-esser parameters
	defaultDeEsserFreqHz      = 7000.0
	defaultDeEsserBandwidthQ  = 1.5
	defaultDeEsserThresholdDB = -20.0
	defaultDeEsserReductionDB = 6.0
	defaultDeEsserAttackMs    = 0.5
	defaultDeEsserReleaseMs   = 50.0
	defaultDeEsserRange       = 1.0
	defaultDeEsserMode        = DeEsserSplitBand

	// De-esser parameter ranges
	minDeEsserFreqHz      = 2000.0
	maxDeEsserFreqHz      = 16000.0
	minDeEsserBandwidthQ  = 0.5
	maxDeEsserBandwidthQ  = 4.0
	minDeEsserThresholdDB = -60.0
	maxDeEsserThresholdDB = 0.0
	minDeEsserReductionDB = 0.0
	maxDeEsserReductionDB = 20.0
	minDeEsserAttackMs    = 0.1
	maxDeEsserAttackMs    = 10.0
	minDeEsserReleaseMs   = 10.0
	maxDeEsserReleaseMs   = 200.0
	minDeEsserRange       = 0.5
	maxDeEsserRange       = 2.0

	deEsserKneeRatio      = 0.8
	deEsserCrossoverRatio = 0.7
	minDeEsserCrossoverHz = 1500.0
	maxDeEsserCrossoverHz = 12000.0
	deEsserMeterSmoothing = 0.9
	deEsserChannels       = 2
)

// DeEsserParams configures a [DeEsser].
type DeEsserParams struct {
	Mode        DeEsserMode
	FrequencyHz float64 // detection center, 2k..16k Hz
	BandwidthQ  float64 // detection Q, 0.5..4
	ThresholdDB float64 // -60..0 dB
	ReductionDB float64 // maximum reduction, 0..20 dB
	AttackMs    float64 // 0.1..10 ms
	ReleaseMs   float64 // 10..200 ms
	Range       float64 // detection width multiplier, 0.5..2
	Listen      bool    // output the detection band only
}

// DefaultDeEsserParams returns the de-esser defaults.
func DefaultDeEsserParams() DeEsserParams {
	return DeEsserParams{
		Mode:        defaultDeEsserMode,
		FrequencyHz: defaultDeEsserFreqHz,
		BandwidthQ:  defaultDeEsserBandwidthQ,
		ThresholdDB: defaultDeEsserThresholdDB,
		ReductionDB: defaultDeEsserReductionDB,
		AttackMs:    defaultDeEsserAttackMs,
		ReleaseMs:   defaultDeEsserReleaseMs,
		Range:       defaultDeEsserRange,
	}
}

// Clamped returns p with every field limited to its range.
func (p DeEsserParams) Clamped() DeEsserParams {
	mode := p.Mode
	if mode != DeEsserWideband && mode != DeEsserSplitBand {
		mode = defaultDeEsserMode
	}

	return DeEsserParams{
		Mode:        mode,
		FrequencyHz: core.ClampOrDefault(p.FrequencyHz, minDeEsserFreqHz, maxDeEsserFreqHz, defaultDeEsserFreqHz),
		BandwidthQ:  core.ClampOrDefault(p.BandwidthQ, minDeEsserBandwidthQ, maxDeEsserBandwidthQ, defaultDeEsserBandwidthQ),
		ThresholdDB: core.ClampOrDefault(p.ThresholdDB, minDeEsserThresholdDB, maxDeEsserThresholdDB, defaultDeEsserThresholdDB),
		ReductionDB: core.ClampOrDefault(p.ReductionDB, minDeEsserReductionDB, maxDeEsserReductionDB, defaultDeEsserReductionDB),
		AttackMs:    core.ClampOrDefault(p.AttackMs, minDeEsserAttackMs, maxDeEsserAttackMs, defaultDeEsserAttackMs),
		ReleaseMs:   core.ClampOrDefault(p.ReleaseMs, minDeEsserReleaseMs, maxDeEsserReleaseMs, defaultDeEsserReleaseMs),
		Range:       core.ClampOrDefault(p.Range, minDeEsserRange, maxDeEsserRange, defaultDeEsserRange),
		Listen:      p.Listen,
	}
}

// DeEsser is a sidechain-detected sibilance suppressor.
//
// Each of the first two channels has its own bandpass detector and envelope
// follower. When the envelope exceeds the threshold the reduction is
// 0.8 dB per dB over, capped at ReductionDB. Wideband mode scales the whole
// signal; split-band mode scales only the high band of a Linkwitz-Riley
// crossover placed at 0.7x the detection frequency. Further channels pass
// through untouched.
type DeEsser struct {
	effect.Bypass

	params  *effect.ParamStore[DeEsserParams]
	applied DeEsserParams
	spec    core.ProcessSpec
	valid   bool

	detectors  [deEsserChannels]biquad.Section
	crossovers [deEsserChannels]*crossover.Crossover
	envelopes  [deEsserChannels]float64

	thresholdLin float64
	attackCoeff  float64
	releaseCoeff float64

	smoothedReduction float64
	gainReductionDB   core.AtomicFloat64
	envelopeLevel     core.AtomicFloat64
}

var _ effect.Parametric[DeEsserParams] = (*DeEsser)(nil)

// NewDeEsser creates a de-esser with default parameters.
func NewDeEsser(opts ...core.ProcessorOption) *DeEsser {
	d := &DeEsser{params: effect.NewParamStore(DefaultDeEsserParams())}
	d.Prepare(core.ApplyProcessorOptions(opts...))

	return d
}

// Name returns the registry type name.
func (d *DeEsser) Name() string { return "DeEsser" }

// Prepare designs the detection and crossover filters for spec.
func (d *DeEsser) Prepare(spec core.ProcessSpec) {
	d.valid = spec.Valid()
	d.spec = spec.Normalized()
	d.applied = d.params.Load()

	xoFreq := d.crossoverFrequency(d.applied.FrequencyHz)
	for ch := range d.crossovers {
		xo, err := crossover.New(xoFreq, d.spec.SampleRate)
		if err != nil {
			// Only reachable for sample rates below the minimum crossover
			// frequency; split-band then degrades to wideband.
			d.crossovers[ch] = nil
			continue
		}

		d.crossovers[ch] = xo
	}

	d.updateFilters()
	d.updateDynamics()
	d.Reset()
}

// Reset clears filter and envelope state.
func (d *DeEsser) Reset() {
	for ch := range d.detectors {
		d.detectors[ch].Reset()
		d.envelopes[ch] = 0

		if d.crossovers[ch] != nil {
			d.crossovers[ch].Reset()
		}
	}

	d.smoothedReduction = 0
	d.gainReductionDB.Store(0)
	d.envelopeLevel.Store(0)
}

// SetParams publishes new parameters; out-of-range values are clamped.
func (d *DeEsser) SetParams(p DeEsserParams) {
	d.params.Store(p.Clamped())
}

// Params returns the most recently published parameters.
func (d *DeEsser) Params() DeEsserParams {
	return d.params.Load()
}

// GainReductionDB returns the smoothed peak gain reduction in dB (<= 0).
func (d *DeEsser) GainReductionDB() float64 {
	return d.gainReductionDB.Load()
}

// EnvelopeLevel returns the larger detection envelope at the end of the
// last block.
func (d *DeEsser) EnvelopeLevel() float64 {
	return d.envelopeLevel.Load()
}

// Process de-esses buf in place.
func (d *DeEsser) Process(buf [][]float64) {
	if d.Bypassed() {
		d.smoothedReduction = 0
		d.gainReductionDB.Store(0)

		return
	}

	if !d.valid {
		return
	}

	if p := d.params.Load(); p != d.applied {
		filtersChanged := p.FrequencyHz != d.applied.FrequencyHz ||
			p.BandwidthQ != d.applied.BandwidthQ ||
			p.Range != d.applied.Range
		d.applied = p

		if filtersChanged {
			d.updateFilters()
		}

		d.updateDynamics()
	}

	channels, frames := effect.Channels(buf)
	channels = min(channels, deEsserChannels)

	p := d.applied
	minGain := core.DBToLinear(-p.ReductionDB)
	peakReduction := 0.0

	for i := range frames {
		lowestGain := 1.0

		for ch := range channels {
			in := buf[ch][i]
			det := d.detectors[ch].ProcessSample(in)

			level := math.Abs(det)
			coeff := d.releaseCoeff

			if level > d.envelopes[ch] {
				coeff = d.attackCoeff
			}

			d.envelopes[ch] = coeff*d.envelopes[ch] + (1-coeff)*level

			gain := 1.0

			if d.envelopes[ch] > d.thresholdLin {
				overDB := 20 * math.Log10(d.envelopes[ch]/d.thresholdLin)
				reductionDB := math.Min(overDB*deEsserKneeRatio, p.ReductionDB)
				gain = math.Max(core.DBToLinear(-reductionDB), minGain)
			}

			lowestGain = math.Min(lowestGain, gain)

			xo := d.crossovers[ch]

			switch {
			case p.Listen:
				buf[ch][i] = det
			case p.Mode == DeEsserSplitBand && xo != nil:
				lo, hi := xo.ProcessSample(in)
				buf[ch][i] = lo + hi*gain
			default:
				buf[ch][i] = in * gain
			}
		}

		peakReduction = math.Max(peakReduction, 1-lowestGain)
	}

	d.smoothedReduction = deEsserMeterSmoothing*d.smoothedReduction + (1-deEsserMeterSmoothing)*peakReduction
	d.gainReductionDB.Store(core.GainToDB(1-d.smoothedReduction, meterFloorDB))
	d.envelopeLevel.Store(math.Max(d.envelopes[0], d.envelopes[1]))
}

// SaveState returns the parameters as a keyed blob.
func (d *DeEsser) SaveState() effect.State {
	p := d.Params()

	return effect.State{
		"mode":        p.Mode.String(),
		"frequency":   p.FrequencyHz,
		"bandwidth":   p.BandwidthQ,
		"thresholdDb": p.ThresholdDB,
		"reductionDb": p.ReductionDB,
		"attackMs":    p.AttackMs,
		"releaseMs":   p.ReleaseMs,
		"range":       p.Range,
		"listen":      p.Listen,
	}
}

// LoadState restores parameters from a blob; missing keys keep defaults.
func (d *DeEsser) LoadState(s effect.State) {
	def := DefaultDeEsserParams()

	mode := def.Mode
	switch s.String("mode", "") {
	case "wideband":
		mode = DeEsserWideband
	case "splitband":
		mode = DeEsserSplitBand
	}

	d.SetParams(DeEsserParams{
		Mode:        mode,
		FrequencyHz: s.Float("frequency", def.FrequencyHz),
		BandwidthQ:  s.Float("bandwidth", def.BandwidthQ),
		ThresholdDB: s.Float("thresholdDb", def.ThresholdDB),
		ReductionDB: s.Float("reductionDb", def.ReductionDB),
		AttackMs:    s.Float("attackMs", def.AttackMs),
		ReleaseMs:   s.Float("releaseMs", def.ReleaseMs),
		Range:       s.Float("range", def.Range),
		Listen:      s.Bool("listen", def.Listen),
	})
}

func (d *DeEsser) crossoverFrequency(detectHz float64) float64 {
	f := core.Clamp(detectHz*deEsserCrossoverRatio, minDeEsserCrossoverHz, maxDeEsserCrossoverHz)
	return design.ClampFrequency(f, d.spec.SampleRate)
}

func (d *DeEsser) updateFilters() {
	p := d.applied
	sr := d.spec.SampleRate
	freq := design.ClampFrequency(p.FrequencyHz, sr)
	coeffs := design.Bandpass(freq, p.BandwidthQ/p.Range, sr)
	xoFreq := d.crossoverFrequency(p.FrequencyHz)

	for ch := range d.detectors {
		// An unstable design keeps the previous detector.
		d.detectors[ch].SetStableCoefficients(coeffs)

		if xo := d.crossovers[ch]; xo != nil && xo.Freq() != xoFreq {
			// The frequency is already clamped below Nyquist.
			_ = xo.SetFrequency(xoFreq)
		}
	}
}

func (d *DeEsser) updateDynamics() {
	p := d.applied
	sr := d.spec.SampleRate

	d.thresholdLin = core.DBToLinear(p.ThresholdDB)
	d.attackCoeff = core.DecayCoeff(p.AttackMs, sr)
	d.releaseCoeff = core.DecayCoeff(p.ReleaseMs, sr)
}
