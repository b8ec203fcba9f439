package saturation

import (
	"math"

	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/dsp/effect"
	"github.com/cwbudde/onstage-dsp/dsp/filter/biquad"
	"github.com/cwbudde/onstage-dsp/dsp/filter/design"
)

// Mode selects the saturation algorithm.
type Mode int

const (
	// ModeTape is asymmetric tape-style saturation with soft compression
	// and head rolloff.
	ModeTape Mode = iota
	// ModeTube blends triode and pentode tube curves.
	ModeTube
	// ModeDigital is a bit crusher with sample-and-hold rate reduction.
	ModeDigital

	numModes = 3
)

var modeNames = [numModes]string{"tape", "tube", "digital"}

// String returns the lower-case mode name used in persisted state.
func (m Mode) String() string {
	if m < 0 || m >= numModes {
		return "unknown"
	}

	return modeNames[m]
}

// ParseMode returns the mode named s.
func ParseMode(s string) (Mode, bool) {
	for i, name := range modeNames {
		if name == s {
			return Mode(i), true
		}
	}

	return ModeTape, false
}

const (
	defaultDrive           = 0.5
	defaultTone            = 0.5
	defaultMix             = 1.0
	defaultOutputDB        = 0.0
	defaultTapeCompression = 0.5
	defaultTapeBias        = 0.5
	defaultTubeOddEven     = 0.5
	defaultTubeBias        = 0.5
	defaultBitDepth        = 16
	defaultSampleRateDiv   = 1

	minOutputDB      = -12.0
	maxOutputDB      = 12.0
	minBitDepth      = 2
	maxBitDepth      = 16
	minSampleRateDiv = 1
	maxSampleRateDiv = 64

	tapeDriveRange    = 8.0
	tubeDriveRange    = 15.0
	digitalDriveRange = 4.0
	tapeOutputScale   = 0.7
	tubeOutputScale   = 0.75
	tapeShelfHz       = 8000.0
	tubePresenceDB    = 3.0
	digitalToneQ      = 0.5

	outputRampSeconds    = 0.02
	modeCrossfadeSeconds = 0.01
	wetOnlyMix           = 0.999
	maxChannels          = 2
)

// Params configures a [Saturation]. Unit-range fields are 0..1.
type Params struct {
	Mode     Mode
	Drive    float64
	Tone     float64
	Mix      float64 // wet fraction
	OutputDB float64 // -12..12 dB

	TapeCompression float64
	TapeBias        float64

	TubeOddEven float64 // 0 even, 1 odd harmonics
	TubeBias    float64 // 0 triode, 1 pentode

	BitDepth      int // 2..16
	SampleRateDiv int // hold length in samples, 1..64
}

// DefaultParams returns the saturation defaults.
func DefaultParams() Params {
	return Params{
		Mode:            ModeTape,
		Drive:           defaultDrive,
		Tone:            defaultTone,
		Mix:             defaultMix,
		OutputDB:        defaultOutputDB,
		TapeCompression: defaultTapeCompression,
		TapeBias:        defaultTapeBias,
		TubeOddEven:     defaultTubeOddEven,
		TubeBias:        defaultTubeBias,
		BitDepth:        defaultBitDepth,
		SampleRateDiv:   defaultSampleRateDiv,
	}
}

// Clamped returns p with every field limited to its range.
func (p Params) Clamped() Params {
	mode := p.Mode
	if mode < 0 || mode >= numModes {
		mode = ModeTape
	}

	return Params{
		Mode:            mode,
		Drive:           core.ClampOrDefault(p.Drive, 0, 1, defaultDrive),
		Tone:            core.ClampOrDefault(p.Tone, 0, 1, defaultTone),
		Mix:             core.ClampOrDefault(p.Mix, 0, 1, defaultMix),
		OutputDB:        core.ClampOrDefault(p.OutputDB, minOutputDB, maxOutputDB, defaultOutputDB),
		TapeCompression: core.ClampOrDefault(p.TapeCompression, 0, 1, defaultTapeCompression),
		TapeBias:        core.ClampOrDefault(p.TapeBias, 0, 1, defaultTapeBias),
		TubeOddEven:     core.ClampOrDefault(p.TubeOddEven, 0, 1, defaultTubeOddEven),
		TubeBias:        core.ClampOrDefault(p.TubeBias, 0, 1, defaultTubeBias),
		BitDepth:        min(max(p.BitDepth, minBitDepth), maxBitDepth),
		SampleRateDiv:   min(max(p.SampleRateDiv, minSampleRateDiv), maxSampleRateDiv),
	}
}

type channelFilters struct {
	shelf biquad.Section
	tone  biquad.Section
}

// modeState is the continuous state owned by one mode.
type modeState struct {
	filters     [maxChannels]channelFilters
	held        [maxChannels]float64
	holdCounter int
}

func (m *modeState) reset() {
	for ch := range m.filters {
		m.filters[ch].shelf.Reset()
		m.filters[ch].tone.Reset()
		m.held[ch] = 0
	}

	m.holdCounter = 0
}

// sampleAndHold captures a new quantized frame every hold samples and
// returns the held frame.
func (m *modeState) sampleAndHold(in [maxChannels]float64, channels, hold int, drive, step float64) [maxChannels]float64 {
	m.holdCounter++
	if m.holdCounter >= hold {
		m.holdCounter = 0

		for ch := range channels {
			m.held[ch] = quantize(in[ch]*drive, step)
		}
	}

	return m.held
}

// Saturation is a multimode saturation effect with tape, tube and digital
// algorithms, a mode-dependent tone filter, a ramped output gain and a
// dry/wet mix.
//
// Every mode keeps its own filter state. A mode change resets the incoming
// mode and crossfades from the outgoing one over 10 ms, so the switch does
// not produce a step in the output. Only the first two channels are
// processed.
type Saturation struct {
	effect.Bypass

	params  *effect.ParamStore[Params]
	applied Params
	spec    core.ProcessSpec
	valid   bool

	states        [numModes]modeState
	current       Mode
	fadeFrom      Mode
	fadeLen       int
	fadeRemaining int

	output gainRamp

	tapeDrive    float64
	tubeDrive    float64
	digitalDrive float64
	step         float64
}

var _ effect.Parametric[Params] = (*Saturation)(nil)

// New creates a saturation effect with default parameters.
func New(opts ...core.ProcessorOption) *Saturation {
	s := &Saturation{params: effect.NewParamStore(DefaultParams())}
	s.Prepare(core.ApplyProcessorOptions(opts...))

	return s
}

// Name returns the registry type name.
func (s *Saturation) Name() string { return "Saturation" }

// Prepare sizes the gain ramp and designs the tone filters for spec.
func (s *Saturation) Prepare(spec core.ProcessSpec) {
	s.valid = spec.Valid()
	s.spec = spec.Normalized()
	s.applied = s.params.Load()
	s.current = s.applied.Mode
	s.fadeFrom = s.current
	s.fadeLen = int(s.spec.SampleRate * modeCrossfadeSeconds)

	s.output.target = core.DBToLinear(s.applied.OutputDB)
	s.output.prepare(s.spec.SampleRate, outputRampSeconds)

	s.updateShaping()
	s.updateFilters()
	s.Reset()
}

// Reset clears filter, hold and ramp state.
func (s *Saturation) Reset() {
	for i := range s.states {
		s.states[i].reset()
	}

	s.output.reset()
	s.fadeRemaining = 0
}

// SetParams publishes new parameters; out-of-range values are clamped.
func (s *Saturation) SetParams(p Params) {
	s.params.Store(p.Clamped())
}

// Params returns the most recently published parameters.
func (s *Saturation) Params() Params {
	return s.params.Load()
}

// Process saturates buf in place.
func (s *Saturation) Process(buf [][]float64) {
	if s.Bypassed() || !s.valid {
		return
	}

	if p := s.params.Load(); p != s.applied {
		s.apply(p)
	}

	channels, frames := effect.Channels(buf)
	channels = min(channels, maxChannels)

	mix := s.applied.Mix
	wetOnly := mix >= wetOnlyMix

	var in [maxChannels]float64

	for i := range frames {
		for ch := range channels {
			in[ch] = buf[ch][i]
		}

		wet := s.render(s.current, in, channels)

		if s.fadeRemaining > 0 {
			old := s.render(s.fadeFrom, in, channels)
			w := 1 - float64(s.fadeRemaining)/float64(s.fadeLen)

			for ch := range channels {
				wet[ch] = w*wet[ch] + (1-w)*old[ch]
			}

			s.fadeRemaining--
		}

		gain := s.output.next()

		for ch := range channels {
			y := wet[ch] * gain
			if !wetOnly {
				y = y*mix + in[ch]*(1-mix)
			}

			buf[ch][i] = y
		}
	}
}

// SaveState returns the parameters as a keyed blob.
func (s *Saturation) SaveState() effect.State {
	p := s.Params()

	return effect.State{
		"mode":            p.Mode.String(),
		"drive":           p.Drive,
		"tone":            p.Tone,
		"mix":             p.Mix,
		"outputDb":        p.OutputDB,
		"tapeCompression": p.TapeCompression,
		"tapeBias":        p.TapeBias,
		"tubeOddEven":     p.TubeOddEven,
		"tubeBias":        p.TubeBias,
		"bitDepth":        p.BitDepth,
		"sampleRateDiv":   p.SampleRateDiv,
	}
}

// LoadState restores parameters from a blob; missing keys keep defaults.
func (s *Saturation) LoadState(st effect.State) {
	def := DefaultParams()

	mode, ok := ParseMode(st.String("mode", ""))
	if !ok {
		mode = def.Mode
	}

	s.SetParams(Params{
		Mode:            mode,
		Drive:           st.Float("drive", def.Drive),
		Tone:            st.Float("tone", def.Tone),
		Mix:             st.Float("mix", def.Mix),
		OutputDB:        st.Float("outputDb", def.OutputDB),
		TapeCompression: st.Float("tapeCompression", def.TapeCompression),
		TapeBias:        st.Float("tapeBias", def.TapeBias),
		TubeOddEven:     st.Float("tubeOddEven", def.TubeOddEven),
		TubeBias:        st.Float("tubeBias", def.TubeBias),
		BitDepth:        st.Int("bitDepth", def.BitDepth),
		SampleRateDiv:   st.Int("sampleRateDiv", def.SampleRateDiv),
	})
}

func (s *Saturation) apply(p Params) {
	prev := s.applied
	s.applied = p

	if p.Mode != prev.Mode {
		s.fadeFrom = s.current
		s.current = p.Mode
		s.states[p.Mode].reset()
		s.fadeRemaining = s.fadeLen
	}

	if p.Tone != prev.Tone || p.TapeBias != prev.TapeBias {
		s.updateFilters()
	}

	s.updateShaping()
	s.output.setTarget(core.DBToLinear(p.OutputDB))
}

func (s *Saturation) render(mode Mode, in [maxChannels]float64, channels int) [maxChannels]float64 {
	var out [maxChannels]float64

	p := &s.applied
	st := &s.states[mode]

	switch mode {
	case ModeTape:
		for ch := range channels {
			x := tapeShape(in[ch]*s.tapeDrive, p.TapeBias, p.TapeCompression)
			x = st.filters[ch].shelf.ProcessSample(x)
			x = st.filters[ch].tone.ProcessSample(x)
			out[ch] = x * tapeOutputScale
		}
	case ModeTube:
		for ch := range channels {
			x := tubeShape(in[ch]*s.tubeDrive, p.TubeBias, p.TubeOddEven)
			x = st.filters[ch].tone.ProcessSample(x)
			out[ch] = math.Tanh(x*0.9) * tubeOutputScale
		}
	case ModeDigital:
		held := st.sampleAndHold(in, channels, p.SampleRateDiv, s.digitalDrive, s.step)
		for ch := range channels {
			out[ch] = st.filters[ch].tone.ProcessSample(held[ch])
		}
	}

	return out
}

func (s *Saturation) updateShaping() {
	p := s.applied
	s.tapeDrive = 1 + p.Drive*tapeDriveRange
	s.tubeDrive = 1 + p.Drive*tubeDriveRange
	s.digitalDrive = 1 + p.Drive*digitalDriveRange
	s.step = quantStep(p.BitDepth)
}

func (s *Saturation) updateFilters() {
	p := s.applied
	sr := s.spec.SampleRate
	freq := func(f float64) float64 { return design.ClampFrequency(f, sr) }

	tapeTone := design.Lowpass(freq(2000+p.Tone*13000), design.ButterworthQ, sr)
	tapeShelf := design.HighShelf(freq(tapeShelfHz), -3-(1-p.TapeBias)*6, design.ButterworthQ, sr)
	tubeTone := design.Peak(freq(1000+p.Tone*7000), tubePresenceDB, 1+p.Tone, sr)
	digitalTone := design.Lowpass(freq(1000+p.Tone*19000), digitalToneQ, sr)

	// An unstable design keeps the previous filter.
	for ch := range maxChannels {
		s.states[ModeTape].filters[ch].tone.SetStableCoefficients(tapeTone)
		s.states[ModeTape].filters[ch].shelf.SetStableCoefficients(tapeShelf)
		s.states[ModeTube].filters[ch].tone.SetStableCoefficients(tubeTone)
		s.states[ModeDigital].filters[ch].tone.SetStableCoefficients(digitalTone)
	}
}
