package pitch

import (
	"math"
	"slices"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/dsp/effect"
)

const (
	trackerWindowSize = 2048
	trackerHopSize    = trackerWindowSize / 4
	trackerMinHz      = 80.0
	trackerMaxHz      = 1000.0
	trackerMinTau     = 2

	defaultTrackerReference = DefaultReferencePitch
	defaultTrackerGate      = 0.006
	minTrackerReference     = 400.0
	maxTrackerReference     = 480.0
	minTrackerGate          = 0.0005
	maxTrackerGate          = 0.1

	trackerMinConfidence = 0.5
	trackerHistoryLen    = 5
	trackerSmoothing     = 0.6

	trackerUnlockCents  = 35.0
	trackerFramesToLock = 4
	trackerUnlockFrames = 3
)

// trackerThresholds are tried in order; a dip found at a lower threshold is
// trusted more.
var (
	trackerThresholds = [...]float64{0.10, 0.15, 0.20, 0.30}
	trackerPriors     = [...]float64{1.0, 0.9, 0.75, 0.55}
)

// TrackerParams configures a [Tracker].
type TrackerParams struct {
	ReferencePitch float64 // A4 in Hz, 400..480
	GateThreshold  float64 // RMS below which a frame is unvoiced
}

// DefaultTrackerParams returns the tracker defaults.
func DefaultTrackerParams() TrackerParams {
	return TrackerParams{
		ReferencePitch: defaultTrackerReference,
		GateThreshold:  defaultTrackerGate,
	}
}

// Clamped returns p with every field limited to its range.
func (p TrackerParams) Clamped() TrackerParams {
	return TrackerParams{
		ReferencePitch: core.ClampOrDefault(p.ReferencePitch, minTrackerReference, maxTrackerReference, defaultTrackerReference),
		GateThreshold:  core.ClampOrDefault(p.GateThreshold, minTrackerGate, maxTrackerGate, defaultTrackerGate),
	}
}

// Tracker is a YIN pitch tracker for voice and guitar.
//
// Every 512 samples the last 2048 are analyzed. The YIN difference function
// is computed through an FFT cross-correlation and normalized; candidate
// dips between 80 Hz and 1 kHz are searched against four increasing
// thresholds. The estimate feeds a note HMM whose most likely state drives
// a lock: a note is shown after winning four frames and released once the
// input has been more than 35 cents away for three frames.
type Tracker struct {
	effect.Bypass

	params  *effect.ParamStore[TrackerParams]
	applied TrackerParams
	spec    core.ProcessSpec
	valid   bool

	minTau, maxTau int

	plan     *algofft.Plan[complex128]
	input    []float64
	frame    []float64
	energy   []float64
	lagBuf   []complex128
	frameBuf []complex128
	lagSpec  []complex128
	specBuf  []complex128
	diff     []float64
	cmnd     []float64

	writePos  int
	collected int

	history    [trackerHistoryLen]float64
	sorted     [trackerHistoryLen]float64
	historyPos int
	smoothed   float64

	hmm noteHMM

	lockedNote    int
	pendingNote   int
	lockCounter   int
	unlockCounter int

	confidence core.AtomicFloat64
	result     resultCell
}

var _ effect.Parametric[TrackerParams] = (*Tracker)(nil)

// NewTracker creates a tracker prepared for the given options.
func NewTracker(opts ...core.ProcessorOption) *Tracker {
	t := &Tracker{params: effect.NewParamStore(DefaultTrackerParams())}
	t.Prepare(core.ApplyProcessorOptions(opts...))

	return t
}

// Name returns the registry type name.
func (t *Tracker) Name() string { return "Pitch" }

// SetParams publishes new parameters; out-of-range values are clamped.
func (t *Tracker) SetParams(p TrackerParams) {
	t.params.Store(p.Clamped())
}

// Params returns the most recently published parameters.
func (t *Tracker) Params() TrackerParams {
	return t.params.Load()
}

// Confidence returns 1 minus the normalized difference at the last
// accepted period.
func (t *Tracker) Confidence() float64 {
	return t.confidence.Load()
}

// Prepare sizes the analysis buffers for spec.
func (t *Tracker) Prepare(spec core.ProcessSpec) {
	t.valid = spec.Valid()
	t.spec = spec.Normalized()
	t.applied = t.params.Load()

	half := trackerWindowSize / 2
	sr := t.spec.SampleRate
	t.minTau = max(trackerMinTau, int(sr/trackerMaxHz))
	t.maxTau = min(half-1, int(sr/trackerMinHz))

	plan, err := algofft.NewPlan64(trackerWindowSize)
	if err != nil {
		t.valid = false
		return
	}

	t.plan = plan
	t.input = make([]float64, trackerWindowSize)
	t.frame = make([]float64, trackerWindowSize)
	t.energy = make([]float64, trackerWindowSize+1)
	t.lagBuf = make([]complex128, trackerWindowSize)
	t.frameBuf = make([]complex128, trackerWindowSize)
	t.lagSpec = make([]complex128, trackerWindowSize)
	t.specBuf = make([]complex128, trackerWindowSize)
	t.diff = make([]float64, half)
	t.cmnd = make([]float64, half)
	t.hmm.init()

	t.Reset()
}

// Reset clears the input history, smoothing and note lock.
func (t *Tracker) Reset() {
	clear(t.input)
	clear(t.history[:])

	t.writePos = 0
	t.collected = 0
	t.historyPos = 0
	t.smoothed = 0
	t.lockedNote = -1
	t.pendingNote = -1
	t.lockCounter = 0
	t.unlockCounter = 0
	t.hmm.reset()
	t.confidence.Store(0)
	t.result.clear()
}

// Result returns the latest published estimate.
func (t *Tracker) Result() Result {
	return t.result.load()
}

// Process feeds channel 0 of buf into the analysis ring. buf is not
// modified.
func (t *Tracker) Process(buf [][]float64) {
	if t.Bypassed() {
		t.result.clear()
		return
	}

	if !t.valid || len(buf) == 0 {
		return
	}

	if p := t.params.Load(); p != t.applied {
		t.applied = p
	}

	for _, x := range buf[0] {
		t.input[t.writePos] = x
		t.writePos = (t.writePos + 1) % trackerWindowSize

		t.collected++
		if t.collected >= trackerHopSize {
			t.collected = 0
			t.analyse()
		}
	}
}

// SaveState returns the parameters as a keyed blob.
func (t *Tracker) SaveState() effect.State {
	p := t.Params()

	return effect.State{
		"referencePitch": p.ReferencePitch,
		"gateThreshold":  p.GateThreshold,
	}
}

// LoadState restores parameters from a blob; missing keys keep defaults.
func (t *Tracker) LoadState(s effect.State) {
	def := DefaultTrackerParams()

	t.SetParams(TrackerParams{
		ReferencePitch: s.Float("referencePitch", def.ReferencePitch),
		GateThreshold:  s.Float("gateThreshold", def.GateThreshold),
	})
}

func (t *Tracker) analyse() {
	n := trackerWindowSize

	copy(t.frame, t.input[t.writePos:])
	copy(t.frame[n-t.writePos:], t.input[:t.writePos])

	sum := 0.0
	for _, v := range t.frame {
		sum += v * v
	}

	if math.Sqrt(sum/float64(n)) < t.applied.GateThreshold {
		t.unvoiced()
		return
	}

	if !t.difference() {
		return
	}

	tau, value, prior, ok := t.pickPeriod()
	if !ok {
		t.unvoiced()
		return
	}

	freq := t.spec.SampleRate / t.refineTau(tau)
	confidence := 1 - value

	if freq < trackerMinHz || freq > trackerMaxHz || confidence < trackerMinConfidence {
		t.unvoiced()
		return
	}

	t.confidence.Store(confidence)

	freq = t.correctOctave(freq)

	if t.smoothed > 0 {
		t.smoothed = t.smoothed*trackerSmoothing + freq*(1-trackerSmoothing)
	} else {
		t.smoothed = freq
	}

	exact := FrequencyToMIDI(t.smoothed, t.applied.ReferencePitch)

	note := t.hmm.step(exact, prior*confidence)
	if note < 0 {
		t.result.deactivate()
		return
	}

	t.updateLock(note, exact)

	if t.lockedNote >= 0 {
		cents := core.Clamp((exact-float64(t.lockedNote))*100, -50, 50)
		t.result.publish(t.lockedNote, t.smoothed, cents)
	}
}

func (t *Tracker) unvoiced() {
	t.hmm.step(0, 0)
	t.smoothed = 0
	t.result.deactivate()
}

// difference fills cmnd with the cumulative mean normalized YIN difference.
//
//	d(tau) = sum x[i]^2 + sum x[i+tau]^2 - 2 sum x[i]x[i+tau],  i < n/2
//
// The cross term is a correlation of the first half of the frame against
// the whole frame. No lag wraps because i+tau < n.
func (t *Tracker) difference() bool {
	n := trackerWindowSize
	half := n / 2

	t.energy[0] = 0
	for i, v := range t.frame {
		t.energy[i+1] = t.energy[i] + v*v
	}

	for i, v := range t.frame {
		t.frameBuf[i] = complex(v, 0)

		if i < half {
			t.lagBuf[i] = complex(v, 0)
		} else {
			t.lagBuf[i] = 0
		}
	}

	if err := t.plan.Forward(t.lagSpec, t.lagBuf); err != nil {
		return false
	}

	if err := t.plan.Forward(t.specBuf, t.frameBuf); err != nil {
		return false
	}

	for k := range t.specBuf {
		a := t.lagSpec[k]
		t.specBuf[k] *= complex(real(a), -imag(a))
	}

	if err := t.plan.Inverse(t.frameBuf, t.specBuf); err != nil {
		return false
	}

	e0 := t.energy[half]
	for tau := range half {
		eTau := t.energy[tau+half] - t.energy[tau]
		t.diff[tau] = math.Max(0, e0+eTau-2*real(t.frameBuf[tau]))
	}

	t.cmnd[0] = 1
	running := 0.0

	for tau := 1; tau < half; tau++ {
		running += t.diff[tau]
		if running > 1e-10 {
			t.cmnd[tau] = t.diff[tau] * float64(tau) / running
		} else {
			t.cmnd[tau] = 1
		}
	}

	return true
}

// pickPeriod returns the first local minimum below the lowest threshold
// that has one, with that threshold's prior.
func (t *Tracker) pickPeriod() (tau int, value, prior float64, ok bool) {
	for i, threshold := range trackerThresholds {
		for k := t.minTau; k < t.maxTau; k++ {
			if t.cmnd[k] >= threshold {
				continue
			}

			for k+1 < t.maxTau && t.cmnd[k+1] < t.cmnd[k] {
				k++
			}

			return k, t.cmnd[k], trackerPriors[i], true
		}
	}

	return 0, 1, 0, false
}

func (t *Tracker) refineTau(tau int) float64 {
	if tau <= 0 || tau >= len(t.cmnd)-1 {
		return float64(tau)
	}

	s0, s1, s2 := t.cmnd[tau-1], t.cmnd[tau], t.cmnd[tau+1]

	den := 2*s1 - s2 - s0
	if math.Abs(den) < 1e-10 {
		return float64(tau)
	}

	return float64(tau) + core.Clamp((s2-s0)/(2*den), -1, 1)
}

// correctOctave folds freq back when it is an octave away from the median
// of the recent raw estimates.
func (t *Tracker) correctOctave(freq float64) float64 {
	t.history[t.historyPos] = freq
	t.historyPos = (t.historyPos + 1) % trackerHistoryLen

	t.sorted = t.history
	slices.Sort(t.sorted[:])
	median := t.sorted[trackerHistoryLen/2]

	if median <= 0 {
		return freq
	}

	switch ratio := freq / median; {
	case ratio > 1.9 && ratio < 2.1:
		return freq / 2
	case ratio > 0.48 && ratio < 0.52:
		return freq * 2
	default:
		return freq
	}
}

func (t *Tracker) updateLock(note int, exact float64) {
	if t.lockedNote < 0 {
		t.countToward(note)
		return
	}

	if math.Abs(exact-float64(t.lockedNote))*100 <= trackerUnlockCents {
		t.unlockCounter = 0
		t.lockCounter = 0
		t.pendingNote = t.lockedNote

		return
	}

	t.unlockCounter++
	if t.unlockCounter >= trackerUnlockFrames {
		t.countToward(note)
	}
}

func (t *Tracker) countToward(note int) {
	if note != t.pendingNote {
		t.pendingNote = note
		t.lockCounter = 1

		return
	}

	t.lockCounter++
	if t.lockCounter >= trackerFramesToLock {
		t.lockedNote = note
		t.lockCounter = 0
		t.unlockCounter = 0
	}
}
