package core

import "math"

const (
	// DefaultSampleRate is used whenever a host supplies an unusable rate.
	DefaultSampleRate = 44100.0
	// DefaultBlockSize is the block size hint used when none is supplied.
	DefaultBlockSize = 512
	// DefaultChannels is the channel count used when none is supplied.
	DefaultChannels = 2
)

// ProcessSpec describes the stream a processor is prepared for.
// It is supplied once via Prepare and stays valid until the next Prepare.
type ProcessSpec struct {
	SampleRate float64
	BlockSize  int
	Channels   int
}

// ProcessorOption mutates a ProcessSpec.
type ProcessorOption func(*ProcessSpec)

// DefaultProcessSpec returns a stereo spec at the default rate and block size.
func DefaultProcessSpec() ProcessSpec {
	return ProcessSpec{
		SampleRate: DefaultSampleRate,
		BlockSize:  DefaultBlockSize,
		Channels:   DefaultChannels,
	}
}

// WithSampleRate sets the processing sample rate.
func WithSampleRate(sampleRate float64) ProcessorOption {
	return func(spec *ProcessSpec) {
		if IsFinite(sampleRate) && sampleRate > 0 {
			spec.SampleRate = sampleRate
		}
	}
}

// WithBlockSize sets the processing block size hint.
func WithBlockSize(blockSize int) ProcessorOption {
	return func(spec *ProcessSpec) {
		if blockSize > 0 {
			spec.BlockSize = blockSize
		}
	}
}

// WithChannels sets the channel count.
func WithChannels(channels int) ProcessorOption {
	return func(spec *ProcessSpec) {
		if channels > 0 {
			spec.Channels = channels
		}
	}
}

// ApplyProcessorOptions applies zero or more options to the default spec.
func ApplyProcessorOptions(opts ...ProcessorOption) ProcessSpec {
	spec := DefaultProcessSpec()
	for _, opt := range opts {
		if opt != nil {
			opt(&spec)
		}
	}

	return spec
}

// Valid reports whether the sample rate is positive and finite.
func (s ProcessSpec) Valid() bool {
	return IsFinite(s.SampleRate) && s.SampleRate > 0
}

// Normalized returns a copy with unusable fields replaced by defaults.
func (s ProcessSpec) Normalized() ProcessSpec {
	if !s.Valid() {
		s.SampleRate = DefaultSampleRate
	}

	if s.BlockSize <= 0 {
		s.BlockSize = DefaultBlockSize
	}

	if s.Channels <= 0 {
		s.Channels = DefaultChannels
	}

	return s
}

// Nyquist returns half the sample rate.
func (s ProcessSpec) Nyquist() float64 {
	return s.SampleRate / 2
}

// IsFinite reports whether x is neither NaN nor infinite.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
