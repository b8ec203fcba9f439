package dynamics

import (
	"math"

	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/dsp/effect"
)

const (
	// Default gate parameters
	defaultGateThresholdDB = -40.0
	defaultGateAttackMs    = 1.0
	defaultGateHoldMs      = 50.0
	defaultGateReleaseMs   = 100.0
	defaultGateRangeDB     = -80.0

	// Gate parameter ranges
	minGateThresholdDB = -80.0
	maxGateThresholdDB = 0.0
	minGateAttackMs    = 0.1
	maxGateAttackMs    = 50.0
	minGateHoldMs      = 0.0
	maxGateHoldMs      = 500.0
	minGateReleaseMs   = 10.0
	maxGateReleaseMs   = 1000.0
	minGateRangeDB     = -80.0
	maxGateRangeDB     = 0.0

	meterFloorDB = -100.0
)

// GateParams configures a [Gate]. It is a plain value: copy it, change
// fields, and publish the whole struct with [Gate.SetParams].
type GateParams struct {
	ThresholdDB float64 // open threshold, -80..0 dB
	AttackMs    float64 // opening time, 0.1..50 ms
	HoldMs      float64 // time held open after the level drops, 0..500 ms
	ReleaseMs   float64 // closing time, 10..1000 ms
	RangeDB     float64 // attenuation when closed, -80..0 dB
}

// DefaultGateParams returns the gate defaults.
func DefaultGateParams() GateParams {
	return GateParams{
		ThresholdDB: defaultGateThresholdDB,
		AttackMs:    defaultGateAttackMs,
		HoldMs:      defaultGateHoldMs,
		ReleaseMs:   defaultGateReleaseMs,
		RangeDB:     defaultGateRangeDB,
	}
}

// Clamped returns p with every field limited to its range. Non-finite
// fields take their default.
func (p GateParams) Clamped() GateParams {
	return GateParams{
		ThresholdDB: core.ClampOrDefault(p.ThresholdDB, minGateThresholdDB, maxGateThresholdDB, defaultGateThresholdDB),
		AttackMs:    core.ClampOrDefault(p.AttackMs, minGateAttackMs, maxGateAttackMs, defaultGateAttackMs),
		HoldMs:      core.ClampOrDefault(p.HoldMs, minGateHoldMs, maxGateHoldMs, defaultGateHoldMs),
		ReleaseMs:   core.ClampOrDefault(p.ReleaseMs, minGateReleaseMs, maxGateReleaseMs, defaultGateReleaseMs),
		RangeDB:     core.ClampOrDefault(p.RangeDB, minGateRangeDB, maxGateRangeDB, defaultGateRangeDB),
	}
}

// Gate is a stereo-linked noise gate with hold.
//
// The peak of all channels drives one envelope follower. While the envelope
// is above the threshold the gate is open and the hold timer is re-armed;
// once it falls below, the gate stays open until the hold timer runs out and
// then closes toward the range floor. Gain moves toward its target with the
// attack coefficient when rising and the release coefficient when falling,
// so it never leaves [range floor, 1].
type Gate struct {
	effect.Bypass

	params  *effect.ParamStore[GateParams]
	applied GateParams
	spec    core.ProcessSpec
	valid   bool

	thresholdLin float64
	rangeLin     float64
	attackCoeff  float64
	releaseCoeff float64
	holdSamples  int

	envelope    float64
	gain        float64
	holdCounter int

	gateState       core.AtomicFloat64
	gainReductionDB core.AtomicFloat64
}

var _ effect.Parametric[GateParams] = (*Gate)(nil)

// NewGate creates a gate with default parameters, prepared for the spec
// described by opts.
func NewGate(opts ...core.ProcessorOption) *Gate {
	g := &Gate{params: effect.NewParamStore(DefaultGateParams())}
	g.Prepare(core.ApplyProcessorOptions(opts...))

	return g
}

// Name returns the registry type name.
func (g *Gate) Name() string { return "Gate" }

// Prepare sizes the gate for spec. An invalid sample rate leaves the gate
// in pass-through until a valid spec arrives.
func (g *Gate) Prepare(spec core.ProcessSpec) {
	g.valid = spec.Valid()
	g.spec = spec.Normalized()
	g.applied = g.params.Load()
	g.updateCoefficients()
	g.Reset()
}

// Reset clears envelope, hold timer and gain.
func (g *Gate) Reset() {
	g.envelope = 0
	g.holdCounter = 0
	g.gain = g.rangeLin
	g.gateState.Store(1)
	g.gainReductionDB.Store(0)
}

// SetParams publishes new parameters; out-of-range values are clamped.
func (g *Gate) SetParams(p GateParams) {
	g.params.Store(p.Clamped())
}

// Params returns the most recently published parameters.
func (g *Gate) Params() GateParams {
	return g.params.Load()
}

// GateState returns the current gate gain in [0, 1] (0 closed, 1 open).
func (g *Gate) GateState() float64 {
	return g.gateState.Load()
}

// GainReductionDB returns the current gain reduction in dB (<= 0).
func (g *Gate) GainReductionDB() float64 {
	return g.gainReductionDB.Load()
}

// Process gates buf in place.
func (g *Gate) Process(buf [][]float64) {
	if g.Bypassed() {
		g.gateState.Store(1)
		g.gainReductionDB.Store(0)

		return
	}

	if !g.valid {
		return
	}

	if p := g.params.Load(); p != g.applied {
		g.applied = p
		g.updateCoefficients()
	}

	channels, frames := effect.Channels(buf)
	if channels == 0 || frames == 0 {
		return
	}

	for i := range frames {
		peak := 0.0
		for ch := range channels {
			peak = math.Max(peak, math.Abs(buf[ch][i]))
		}

		if peak > g.envelope {
			g.envelope += g.attackCoeff * (peak - g.envelope)
		} else {
			g.envelope += g.releaseCoeff * (peak - g.envelope)
		}

		target := g.rangeLin

		switch {
		case g.envelope > g.thresholdLin:
			g.holdCounter = g.holdSamples
			target = 1
		case g.holdCounter > 0:
			g.holdCounter--
			target = 1
		}

		if target > g.gain {
			g.gain += g.attackCoeff * (target - g.gain)
		} else {
			g.gain += g.releaseCoeff * (target - g.gain)
		}

		for ch := range channels {
			buf[ch][i] *= g.gain
		}
	}

	g.gateState.Store(g.gain)
	g.gainReductionDB.Store(core.GainToDB(g.gain, meterFloorDB))
}

// SaveState returns the parameters as a keyed blob.
func (g *Gate) SaveState() effect.State {
	p := g.Params()

	return effect.State{
		"thresholdDb": p.ThresholdDB,
		"attackMs":    p.AttackMs,
		"holdMs":      p.HoldMs,
		"releaseMs":   p.ReleaseMs,
		"rangeDb":     p.RangeDB,
	}
}

// LoadState restores parameters from a blob; missing keys keep defaults.
func (g *Gate) LoadState(s effect.State) {
	d := DefaultGateParams()
	g.SetParams(GateParams{
		ThresholdDB: s.Float("thresholdDb", d.ThresholdDB),
		AttackMs:    s.Float("attackMs", d.AttackMs),
		HoldMs:      s.Float("holdMs", d.HoldMs),
		ReleaseMs:   s.Float("releaseMs", d.ReleaseMs),
		RangeDB:     s.Float("rangeDb", d.RangeDB),
	})
}

func (g *Gate) updateCoefficients() {
	p := g.applied
	sr := g.spec.SampleRate

	g.thresholdLin = core.DBToLinear(p.ThresholdDB)
	g.rangeLin = core.DBToLinear(p.RangeDB)
	g.attackCoeff = core.AttackReleaseCoeff(p.AttackMs, sr)
	g.releaseCoeff = core.AttackReleaseCoeff(p.ReleaseMs, sr)
	g.holdSamples = int(p.HoldMs * 0.001 * sr)
}
