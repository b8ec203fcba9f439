package effect

import (
	"sync/atomic"

	"github.com/cwbudde/onstage-dsp/dsp/core"
)

// Processor is the lifecycle contract every effect implements.
//
// Prepare and Reset are called while the stream is stopped. Process runs on
// the audio goroutine: it must not allocate or block, and it mutates buf in
// place. buf holds one slice per channel, all of equal length, and is only
// borrowed for the duration of the call.
type Processor interface {
	Name() string
	Prepare(spec core.ProcessSpec)
	Reset()
	Process(buf [][]float64)
	SetBypassed(bypassed bool)
	Bypassed() bool
}

// Parametric is a Processor configured by a comparable Params struct.
// SetParams and Params may be called from any goroutine.
type Parametric[P comparable] interface {
	Processor
	SetParams(p P)
	Params() P
}

// Stateful processors persist their settings as a keyed State blob.
type Stateful interface {
	SaveState() State
	LoadState(s State)
}

// Bypass is an atomic bypass flag meant to be embedded in processors.
type Bypass struct {
	on atomic.Bool
}

// SetBypassed enables or disables bypass.
func (b *Bypass) SetBypassed(bypassed bool) {
	b.on.Store(bypassed)
}

// Bypassed reports whether bypass is enabled.
func (b *Bypass) Bypassed() bool {
	return b.on.Load()
}

// ParamStore publishes whole parameter structs from a control goroutine to
// the audio goroutine. Store allocates a private copy; Load is allocation
// free and never observes a partially written struct.
type ParamStore[P comparable] struct {
	p atomic.Pointer[P]
}

// NewParamStore returns a store holding initial.
func NewParamStore[P comparable](initial P) *ParamStore[P] {
	s := &ParamStore[P]{}
	s.Store(initial)

	return s
}

// Store publishes a copy of p.
func (s *ParamStore[P]) Store(p P) {
	s.p.Store(&p)
}

// Load returns a copy of the most recently published params.
func (s *ParamStore[P]) Load() P {
	if p := s.p.Load(); p != nil {
		return *p
	}

	var zero P

	return zero
}

// Channels returns the number of channels and frames in buf. Frames is the
// length of the shortest channel.
func Channels(buf [][]float64) (channels, frames int) {
	if len(buf) == 0 {
		return 0, 0
	}

	frames = len(buf[0])
	for _, ch := range buf[1:] {
		if len(ch) < frames {
			frames = len(ch)
		}
	}

	return len(buf), frames
}
