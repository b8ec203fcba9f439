package pitch

import (
	"fmt"
	"sync/atomic"

	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/dsp/effect"
)

// Result is the most recent pitch estimate.
//
// MIDINote is -1 and Active is false when nothing is detected. Cents is the
// deviation of FrequencyHz from MIDINote in the range [-50, 50].
type Result struct {
	MIDINote    int
	FrequencyHz float64
	Cents       float64
	Active      bool
}

// NoteName returns the name of the detected note, or "-" when inactive.
func (r Result) NoteName() string {
	if !r.Active {
		return "-"
	}

	return NoteName(r.MIDINote)
}

// Estimator is a mono pitch detector. Process analyzes channel 0 and leaves
// the buffer untouched; Result may be called from any goroutine.
type Estimator interface {
	effect.Processor

	Result() Result
}

var (
	_ Estimator = (*Tuner)(nil)
	_ Estimator = (*Tracker)(nil)
)

// Strategy selects a pitch estimation algorithm.
type Strategy int

const (
	// StrategyHPS is the FFT harmonic product spectrum tuner.
	StrategyHPS Strategy = iota
	// StrategyYIN is the multi-threshold YIN tracker with note smoothing.
	StrategyYIN
)

// String returns the configuration name of s.
func (s Strategy) String() string {
	switch s {
	case StrategyHPS:
		return "hps"
	case StrategyYIN:
		return "yin"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy parses "hps" or "yin".
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "hps", "":
		return StrategyHPS, nil
	case "yin":
		return StrategyYIN, nil
	default:
		return 0, fmt.Errorf("pitch: unknown strategy %q", s)
	}
}

// New returns an estimator for strategy.
func New(strategy Strategy, opts ...core.ProcessorOption) (Estimator, error) {
	switch strategy {
	case StrategyHPS:
		return NewTuner(opts...), nil
	case StrategyYIN:
		return NewTracker(opts...), nil
	default:
		return nil, fmt.Errorf("pitch: unknown strategy %d", int(strategy))
	}
}

// resultCell publishes a Result through independent atomics. A reader may
// see fields from two different frames; active is stored last and loaded
// first so an inactive reading never carries a stale note.
type resultCell struct {
	note   atomic.Int32
	freq   core.AtomicFloat64
	cents  core.AtomicFloat64
	active atomic.Bool
}

func (c *resultCell) publish(note int, freq, cents float64) {
	c.note.Store(int32(note))
	c.freq.Store(freq)
	c.cents.Store(cents)
	c.active.Store(true)
}

func (c *resultCell) deactivate() {
	c.active.Store(false)
}

func (c *resultCell) clear() {
	c.active.Store(false)
	c.note.Store(-1)
	c.freq.Store(0)
	c.cents.Store(0)
}

func (c *resultCell) load() Result {
	if !c.active.Load() {
		return Result{MIDINote: -1}
	}

	return Result{
		MIDINote:    int(c.note.Load()),
		FrequencyHz: c.freq.Load(),
		Cents:       c.cents.Load(),
		Active:      true,
	}
}
