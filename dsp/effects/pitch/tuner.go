package pitch

import (
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/dsp/effect"
	"github.com/cwbudde/onstage-dsp/dsp/spectrum"
	"github.com/cwbudde/onstage-dsp/dsp/window"
)

const (
	tunerMinAnalysisSize  = 2048
	tunerAnalysisSeconds  = 0.093
	tunerZeroPadFactor    = 4
	tunerHopDivisor       = 8
	tunerRMSSmoothing     = 0.15
	tunerSilenceThreshold = 0.015
	tunerHumCutoffHz      = 62.0
	tunerNoiseBands       = 16
	tunerNoiseMultiplier  = 1.0
	tunerHarmonics        = 5
	tunerHarmonicFloor    = 0.05
	tunerMinSearchHz      = 65.0
	tunerMaxSearchHz      = 2000.0
	tunerMinValidHz       = 50.0
	tunerOctaveThreshold  = 0.2
	tunerOctaveSearchBins = 3
	tunerVoteThreshold    = 2
	tunerMinPeak          = 1e-10
	tunerLogFloor         = 1e-300
)

// Tuner is a harmonic product spectrum pitch detector.
//
// Input accumulates in a ring of about 93 ms. Every eighth of that a frame
// is Hann windowed, zero padded four times and transformed. Bins below
// 62 Hz and below each of 16 band averages are cleared, the spectrum is
// multiplied with its copies decimated by 2..5, and the strongest product
// between 65 Hz and 2 kHz is refined by log-parabolic interpolation. A
// harmonic missing from the spectrum contributes a fraction of the
// candidate bin instead of zero, so pure tones are still found. A note has
// to win two consecutive frames before it is published.
type Tuner struct {
	effect.Bypass

	spec  core.ProcessSpec
	valid bool

	analysisSize int
	fftSize      int
	hopSize      int
	halfSpectrum int
	hpsLength    int
	humCutoffBin int
	minBin       int
	maxBin       int

	plan    *algofft.Plan[complex128]
	hann    []float64
	ring    []float64
	frame   []float64
	timeBuf []complex128
	freqBuf []complex128
	re, im  []float64
	mag     []float64
	hps     []float64

	writePos  int
	collected int

	rmsSmoothed float64
	lastVoted   int
	voteCount   int

	result resultCell
}

// NewTuner creates a tuner prepared for the given options.
func NewTuner(opts ...core.ProcessorOption) *Tuner {
	t := &Tuner{}
	t.Prepare(core.ApplyProcessorOptions(opts...))

	return t
}

// Name returns the registry type name.
func (t *Tuner) Name() string { return "Tuner" }

// AnalysisSize returns the analysis window length in samples.
func (t *Tuner) AnalysisSize() int { return t.analysisSize }

// HopSize returns the number of samples between analyses.
func (t *Tuner) HopSize() int { return t.hopSize }

// Prepare sizes the analysis buffers and the FFT plan for spec.
func (t *Tuner) Prepare(spec core.ProcessSpec) {
	t.valid = spec.Valid()
	t.spec = spec.Normalized()
	sr := t.spec.SampleRate

	size := nextPowerOfTwo(int(math.Round(sr * tunerAnalysisSeconds)))
	t.analysisSize = max(size, tunerMinAnalysisSize)
	t.fftSize = t.analysisSize * tunerZeroPadFactor
	t.hopSize = max(1, t.analysisSize/tunerHopDivisor)
	t.halfSpectrum = t.fftSize/2 + 1
	t.hpsLength = t.halfSpectrum / tunerHarmonics

	binHz := sr / float64(t.fftSize)
	t.humCutoffBin = min(int(math.Ceil(tunerHumCutoffHz/binHz)), t.halfSpectrum)
	t.minBin = max(1, int(math.Ceil(tunerMinSearchHz/binHz)))
	t.maxBin = min(int(math.Floor(tunerMaxSearchHz/binHz)), t.hpsLength-2)

	plan, err := algofft.NewPlan64(t.fftSize)
	if err != nil {
		t.valid = false
		return
	}

	hann, err := window.Hann(t.analysisSize, window.WithPeriodic())
	if err != nil {
		t.valid = false
		return
	}

	t.plan = plan
	t.hann = hann
	t.ring = make([]float64, t.analysisSize)
	t.frame = make([]float64, t.analysisSize)
	t.timeBuf = make([]complex128, t.fftSize)
	t.freqBuf = make([]complex128, t.fftSize)
	t.re = make([]float64, t.halfSpectrum)
	t.im = make([]float64, t.halfSpectrum)
	t.mag = make([]float64, t.halfSpectrum)
	t.hps = make([]float64, t.hpsLength)

	t.Reset()
}

// Reset clears the input history and the published result.
func (t *Tuner) Reset() {
	clear(t.ring)

	t.writePos = 0
	t.collected = 0
	t.rmsSmoothed = 0
	t.voteCount = 0
	t.lastVoted = -1
	t.result.clear()
}

// Result returns the latest published estimate.
func (t *Tuner) Result() Result {
	return t.result.load()
}

// Process feeds channel 0 of buf into the analysis ring. buf is not
// modified.
func (t *Tuner) Process(buf [][]float64) {
	if t.Bypassed() {
		t.result.clear()
		return
	}

	if !t.valid || len(buf) == 0 {
		return
	}

	for _, x := range buf[0] {
		t.ring[t.writePos] = x
		t.writePos = (t.writePos + 1) % t.analysisSize

		t.collected++
		if t.collected >= t.hopSize {
			t.collected = 0
			t.analyse()
		}
	}
}

func (t *Tuner) analyse() {
	n := t.analysisSize

	// writePos is the oldest sample.
	copy(t.frame, t.ring[t.writePos:])
	copy(t.frame[n-t.writePos:], t.ring[:t.writePos])

	if err := window.ApplyCoefficientsInPlace(t.frame, t.hann); err != nil {
		return
	}

	sum := 0.0
	for _, v := range t.frame {
		sum += v * v
	}

	rms := math.Sqrt(sum / float64(n))
	t.rmsSmoothed += (rms - t.rmsSmoothed) * tunerRMSSmoothing

	if t.rmsSmoothed < tunerSilenceThreshold {
		if t.decayVote() {
			t.result.clear()
		}

		return
	}

	for i, v := range t.frame {
		t.timeBuf[i] = complex(v, 0)
	}

	clear(t.timeBuf[n:])

	if err := t.plan.Forward(t.freqBuf, t.timeBuf); err != nil {
		return
	}

	spectrum.SplitComplex(t.re, t.im, t.freqBuf)
	spectrum.MagnitudeFromParts(t.mag, t.re, t.im)

	clear(t.mag[:t.humCutoffBin])
	t.suppressNoiseFloor()
	t.harmonicProduct()

	peakBin, peakVal := -1, 0.0
	for i := t.minBin; i <= t.maxBin; i++ {
		if t.hps[i] > peakVal {
			peakBin, peakVal = i, t.hps[i]
		}
	}

	if peakBin < 1 || peakVal < tunerMinPeak {
		if t.decayVote() {
			t.result.deactivate()
		}

		return
	}

	binHz := t.spec.SampleRate / float64(t.fftSize)
	freq := (float64(peakBin) + logParabolicOffset(t.hps, peakBin)) * binHz

	if freq < tunerMinValidHz || freq > tunerMaxSearchHz {
		return
	}

	freq = t.correctOctave(freq)

	note, cents := splitNote(FrequencyToMIDI(freq, DefaultReferencePitch))
	if note < 0 || note > 127 {
		return
	}

	if note == t.lastVoted {
		t.voteCount = min(t.voteCount+1, tunerVoteThreshold+2)
	} else {
		t.lastVoted = note
		t.voteCount = 1
	}

	if t.voteCount >= tunerVoteThreshold {
		t.result.publish(note, freq, cents)
	}
}

// decayVote lowers the vote counter and reports whether it reached zero.
func (t *Tuner) decayVote() bool {
	if t.voteCount > 0 {
		t.voteCount--
	}

	return t.voteCount == 0
}

// suppressNoiseFloor zeroes bins below their band's mean magnitude.
func (t *Tuner) suppressNoiseFloor() {
	length := len(t.mag)
	bandSize := max(1, length/tunerNoiseBands)

	for start := 0; start < length; start += bandSize {
		end := min(start+bandSize, length)

		avg := 0.0
		for _, v := range t.mag[start:end] {
			avg += v
		}

		threshold := avg / float64(end-start) * tunerNoiseMultiplier

		for i := start; i < end; i++ {
			if t.mag[i] < threshold {
				t.mag[i] = 0
			}
		}
	}
}

func (t *Tuner) harmonicProduct() {
	copy(t.hps, t.mag[:t.hpsLength])

	for h := 2; h <= tunerHarmonics; h++ {
		for i := range t.hps {
			src := i * h
			if src >= t.halfSpectrum {
				t.hps[i] = 0
				continue
			}

			t.hps[i] *= math.Max(t.mag[src], tunerHarmonicFloor*t.mag[i])
		}
	}
}

// correctOctave prefers half of freq when the magnitude spectrum holds at
// least a fifth of the detected peak's energy around the sub-octave.
func (t *Tuner) correctOctave(freq float64) float64 {
	sub := freq / 2
	if sub < tunerMinValidHz {
		return freq
	}

	binHz := t.spec.SampleRate / float64(t.fftSize)
	detBin := int(math.Round(freq / binHz))
	subBin := int(math.Round(sub / binHz))

	if detBin >= t.halfSpectrum || subBin < 1 {
		return freq
	}

	subPeak := 0.0
	for i := max(1, subBin-tunerOctaveSearchBins); i <= min(t.halfSpectrum-1, subBin+tunerOctaveSearchBins); i++ {
		subPeak = math.Max(subPeak, t.mag[i])
	}

	if detected := t.mag[detBin]; detected > 0 && subPeak/detected > tunerOctaveThreshold {
		return sub
	}

	return freq
}

// logParabolicOffset interpolates the peak at k on a log scale, where a
// Hann main lobe is close to a parabola.
func logParabolicOffset(y []float64, k int) float64 {
	if k <= 0 || k >= len(y)-1 {
		return 0
	}

	logs := [3]float64{
		math.Log(math.Max(y[k-1], tunerLogFloor)),
		math.Log(math.Max(y[k], tunerLogFloor)),
		math.Log(math.Max(y[k+1], tunerLogFloor)),
	}

	return spectrum.ParabolicPeak(logs[:], 1)
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}

	return p
}
