package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/dsp/effectchain"
	"github.com/cwbudde/onstage-dsp/internal/config"
	"github.com/cwbudde/onstage-dsp/internal/logging"
	"github.com/cwbudde/onstage-dsp/recorder"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg *config.Config
	log *logrus.Logger

	// flags
	configPath string
	logLevel   string
	logJSON    bool
	chainPath  string
	folder     string
	blockSize  int
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "onstage",
		Short:         "Live effect chain, tuner and recorder",
		SilenceUsage:  true,
		SilenceErrors: false,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Name or path of the YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	flags.BoolVar(&a.logJSON, "log-json", false, "Log as JSON")
	flags.StringVar(&a.chainPath, "chain", "", "Path of a JSON chain preset")
	flags.StringVar(&a.folder, "recordings", "", "Folder for recordings")
	flags.IntVar(&a.blockSize, "block-size", 0, "Processing block size in frames")

	root.AddCommand(
		newRenderCmd(a),
		newTuneCmd(a),
		newRecordCmd(a),
		newInfoCmd(a),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()

	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}

	if flags.Changed("chain") {
		cfg.Chain = a.chainPath
	}

	if flags.Changed("recordings") {
		cfg.RecordingsFolder = a.folder
	}

	if flags.Changed("block-size") {
		if a.blockSize <= 0 {
			return fmt.Errorf("invalid --block-size %d", a.blockSize)
		}

		cfg.BlockSize = a.blockSize
	}

	log, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		JSON:   a.logJSON,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log

	return nil
}

// spec returns the processing spec for a clip at sampleRate. A clip that
// reports no rate runs at the configured sample_rate.
func (a *app) spec(sampleRate int) core.ProcessSpec {
	rate := float64(sampleRate)
	if rate <= 0 {
		rate = a.cfg.SampleRate
	}

	return core.ApplyProcessorOptions(
		core.WithSampleRate(rate),
		core.WithBlockSize(a.cfg.BlockSize),
		core.WithChannels(2),
	)
}

func (a *app) recorders() *recorder.Registry {
	reg := recorder.NewRegistry(a.log)
	reg.SetDefaultSyncMode(a.cfg.SyncEnabled())

	if a.cfg.RecordingsFolder != "" {
		reg.SetDefaultFolder(a.cfg.RecordingsFolder)
	}

	return reg
}

// buildChain creates the chain from the configured preset, or an empty
// chain when none is set.
func (a *app) buildChain(spec core.ProcessSpec, recorders *recorder.Registry) (*effectchain.Chain, error) {
	chain := effectchain.New(effectchain.DefaultRegistry(effectchain.WithRecorders(recorders)), spec, a.log)

	if a.cfg.Chain == "" {
		return chain, nil
	}

	if err := chain.LoadPresetFile(a.cfg.Chain); err != nil {
		return nil, err
	}

	a.log.WithFields(logrus.Fields{
		"function": "buildChain",
		"preset":   a.cfg.Chain,
		"nodes":    chain.Len(),
	}).Info("Loaded chain preset")

	return chain, nil
}

// chainRecorders returns the recorder nodes of chain.
func chainRecorders(chain *effectchain.Chain) []*recorder.Recorder {
	var out []*recorder.Recorder

	for _, n := range chain.Nodes() {
		if r, ok := n.Processor.(*recorder.Recorder); ok {
			out = append(out, r)
		}
	}

	return out
}
