package loudness

import (
	"math"

	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/dsp/filter/biquad"
	"github.com/cwbudde/onstage-dsp/dsp/filter/design"
)

const (
	// K-weighting stages.
	shelfFreq   = 1500.0
	shelfGainDB = 4.0
	highpassHz  = 38.0

	// The K-weighting gain at this frequency is calibrated out, so a
	// full-scale sine there reads -3.01 LUFS.
	calibrationHz = 997.0

	momentarySeconds = 0.4
	shortTermSeconds = 3.0

	// Gating blocks are momentary windows stepped at 25 %.
	blockStepFraction = 0.25

	absoluteGateLUFS = -70.0
	relativeGateLU   = -10.0

	// FloorLUFS is reported for windows holding only silence.
	FloorLUFS = -120.0
)

type channelState struct {
	kweight  *biquad.Chain
	filtered []float64

	momentary []float64
	shortTerm []float64
	momSum    float64
	shortSum  float64
	peak      float64
}

// Meter measures loudness of planar blocks. It keeps running momentary and
// short-term windows and collects gating blocks for integrated loudness.
// A Meter is not safe for concurrent use.
type Meter struct {
	spec     core.ProcessSpec
	channels []channelState
	offset   float64

	momIdx   int
	shortIdx int
	filled   int

	step      int
	sinceStep int
	blocks    []float64
}

// New returns a meter for the given sample rate and channel count.
func New(opts ...core.ProcessorOption) *Meter {
	m := &Meter{spec: core.ApplyProcessorOptions(opts...).Normalized()}
	m.configure()

	return m
}

// SampleRate returns the rate the meter was built for.
func (m *Meter) SampleRate() float64 { return m.spec.SampleRate }

// Channels returns the number of metered channels.
func (m *Meter) Channels() int { return len(m.channels) }

func (m *Meter) configure() {
	sr := m.spec.SampleRate
	shelf := design.HighShelf(shelfFreq, shelfGainDB, design.ButterworthQ, sr)
	hp := design.Highpass(highpassHz, design.ButterworthQ, sr)
	kweight := []biquad.Coefficients{shelf, hp}
	m.offset = -biquad.NewChain(kweight).MagnitudeDB(calibrationHz, sr)

	momLen := max(int(math.Round(momentarySeconds*sr)), 1)
	shortLen := max(int(math.Round(shortTermSeconds*sr)), 1)

	m.channels = make([]channelState, m.spec.Channels)
	for i := range m.channels {
		m.channels[i] = channelState{
			kweight:   biquad.NewChain(kweight),
			momentary: make([]float64, momLen),
			shortTerm: make([]float64, shortLen),
		}
	}

	m.step = max(int(math.Round(momentarySeconds*blockStepFraction*sr)), 1)
	m.Reset()
}

// Reset clears windows, peaks and gating history.
func (m *Meter) Reset() {
	for i := range m.channels {
		ch := &m.channels[i]
		ch.kweight.Reset()
		core.Zero(ch.momentary)
		core.Zero(ch.shortTerm)
		ch.momSum = 0
		ch.shortSum = 0
		ch.peak = 0
	}

	m.momIdx = 0
	m.shortIdx = 0
	m.filled = 0
	m.sinceStep = 0
	m.blocks = m.blocks[:0]
}

// Process meters one planar block. Missing channels are treated as silence
// and extra channels are ignored. The block is not modified.
func (m *Meter) Process(buf [][]float64) {
	frames := frameCount(buf)
	if len(m.channels) == 0 || frames == 0 {
		return
	}

	for c := range m.channels {
		ch := &m.channels[c]
		ch.filtered = core.EnsureLen(ch.filtered, frames)

		copied := 0
		if c < len(buf) {
			copied = core.CopyInto(ch.filtered, buf[c])
		}

		core.Zero(ch.filtered[copied:])
		ch.peak = max(ch.peak, core.PeakAbs(ch.filtered[:copied]))
		ch.kweight.ProcessBlock(ch.filtered)
	}

	momLen := len(m.channels[0].momentary)
	shortLen := len(m.channels[0].shortTerm)

	for n := range frames {
		for c := range m.channels {
			m.channels[c].push(m.channels[c].filtered[n], m.momIdx, m.shortIdx)
		}

		m.momIdx++
		if m.momIdx == momLen {
			m.momIdx = 0
		}

		m.shortIdx++
		if m.shortIdx == shortLen {
			m.shortIdx = 0
		}

		if m.filled < momLen {
			m.filled++
		}

		m.sinceStep++
		if m.sinceStep >= m.step && m.filled == momLen {
			m.sinceStep = 0
			m.blocks = append(m.blocks, m.momentaryPower())
		}
	}
}

// push adds one K-weighted sample to the running windows.
func (ch *channelState) push(y float64, momIdx, shortIdx int) {
	sq := y * y

	ch.momSum += sq - ch.momentary[momIdx]
	ch.momentary[momIdx] = sq

	if ch.momSum < 0 {
		ch.momSum = 0
	}

	ch.shortSum += sq - ch.shortTerm[shortIdx]
	ch.shortTerm[shortIdx] = sq

	if ch.shortSum < 0 {
		ch.shortSum = 0
	}
}

func (m *Meter) momentaryPower() float64 {
	p := 0.0
	for i := range m.channels {
		p += m.channels[i].momSum / float64(len(m.channels[i].momentary))
	}

	return p
}

// Momentary returns the loudness of the last 400 ms in LUFS.
func (m *Meter) Momentary() float64 {
	return m.toLUFS(m.momentaryPower())
}

// ShortTerm returns the loudness of the last 3 s in LUFS.
func (m *Meter) ShortTerm() float64 {
	p := 0.0
	for i := range m.channels {
		p += m.channels[i].shortSum / float64(len(m.channels[i].shortTerm))
	}

	return m.toLUFS(p)
}

// Integrated returns the gated loudness of everything metered since Reset.
// It returns -Inf when no block passes the gates.
func (m *Meter) Integrated() float64 {
	var (
		sum   float64
		count int
	)

	for _, b := range m.blocks {
		if m.toLUFS(b) > absoluteGateLUFS {
			sum += b
			count++
		}
	}

	if count == 0 {
		return math.Inf(-1)
	}

	gate := m.toLUFS(sum/float64(count)) + relativeGateLU
	sum, count = 0, 0

	for _, b := range m.blocks {
		if l := m.toLUFS(b); l > absoluteGateLUFS && l > gate {
			sum += b
			count++
		}
	}

	if count == 0 {
		return math.Inf(-1)
	}

	return m.toLUFS(sum / float64(count))
}

// Peaks returns the per-channel sample peak since Reset.
func (m *Meter) Peaks() []float64 {
	out := make([]float64, len(m.channels))
	for i := range m.channels {
		out[i] = m.channels[i].peak
	}

	return out
}

// PeakDB returns the largest channel peak in dBFS, floored at FloorLUFS.
func (m *Meter) PeakDB() float64 {
	return core.GainToDB(core.PeakAbs(m.Peaks()), FloorLUFS)
}

func (m *Meter) toLUFS(power float64) float64 {
	if power <= 0 {
		return FloorLUFS
	}

	return max(m.offset+10*math.Log10(power), FloorLUFS)
}

func frameCount(buf [][]float64) int {
	frames := 0
	for _, ch := range buf {
		frames = max(frames, len(ch))
	}

	return frames
}
