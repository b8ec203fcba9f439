package effectchain

import (
	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/dsp/effect"
	"github.com/cwbudde/onstage-dsp/dsp/effects/dynamics"
	"github.com/cwbudde/onstage-dsp/dsp/effects/pitch"
	"github.com/cwbudde/onstage-dsp/dsp/effects/saturation"
	"github.com/cwbudde/onstage-dsp/recorder"
)

type registryConfig struct {
	recorders *recorder.Registry
}

// RegistryOption configures the default registry.
type RegistryOption func(*registryConfig)

// WithRecorders registers new Recorder nodes with reg so that they take
// part in synced start and stop.
func WithRecorders(reg *recorder.Registry) RegistryOption {
	return func(c *registryConfig) { c.recorders = reg }
}

// DefaultRegistry returns a Registry holding every built-in processor.
func DefaultRegistry(opts ...RegistryOption) *Registry {
	cfg := &registryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.recorders == nil {
		cfg.recorders = recorder.NewRegistry(nil)
	}

	r := NewRegistry()

	r.MustRegister("Gate", func(spec core.ProcessSpec) (effect.Processor, error) {
		return dynamics.NewGate(withSpec(spec)...), nil
	})
	r.MustRegister("DeEsser", func(spec core.ProcessSpec) (effect.Processor, error) {
		return dynamics.NewDeEsser(withSpec(spec)...), nil
	})
	r.MustRegister("Saturation", func(spec core.ProcessSpec) (effect.Processor, error) {
		return saturation.New(withSpec(spec)...), nil
	})
	r.MustRegister("Tuner", func(spec core.ProcessSpec) (effect.Processor, error) {
		return pitch.NewTuner(withSpec(spec)...), nil
	})
	r.MustRegister("Pitch", func(spec core.ProcessSpec) (effect.Processor, error) {
		return pitch.NewTracker(withSpec(spec)...), nil
	})
	r.MustRegister("Recorder", func(spec core.ProcessSpec) (effect.Processor, error) {
		return recorder.New(cfg.recorders, withSpec(spec)...), nil
	})

	return r
}

func withSpec(spec core.ProcessSpec) []core.ProcessorOption {
	return []core.ProcessorOption{
		core.WithSampleRate(spec.SampleRate),
		core.WithBlockSize(spec.BlockSize),
		core.WithChannels(spec.Channels),
	}
}
