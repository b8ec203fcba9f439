package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/dsp/effects/pitch"
)

func newTuneCmd(a *app) *cobra.Command {
	var (
		strategy string
		guitar   bool
	)

	cmd := &cobra.Command{
		Use:   "tune <in.wav>",
		Short: "Print the notes detected in a file",
		Args:  cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("strategy") {
				strategy = a.cfg.PitchStrategy
			}

			s, err := pitch.ParseStrategy(strategy)
			if err != nil {
				return err
			}

			return a.tune(cmd.OutOrStdout(), args[0], s, guitar)
		},
	}

	cmd.Flags().StringVarP(&strategy, "strategy", "s", "hps", "Pitch estimator: hps or yin")
	cmd.Flags().BoolVarP(&guitar, "guitar", "g", false, "Show the nearest guitar string")

	return cmd
}

// tune prints one line whenever the detected note changes.
func (a *app) tune(w io.Writer, in string, strategy pitch.Strategy, guitar bool) error {
	c, err := readClip(in)
	if err != nil {
		return err
	}

	spec := a.spec(c.sampleRate)

	est, err := pitch.New(strategy,
		core.WithSampleRate(spec.SampleRate),
		core.WithBlockSize(spec.BlockSize),
		core.WithChannels(spec.Channels))
	if err != nil {
		return err
	}

	last := pitch.Result{}

	c.blocks(spec.BlockSize, func(start int, block [][]float64) bool {
		est.Process(block)

		r := est.Result()
		if r.Active == last.Active && r.MIDINote == last.MIDINote {
			return true
		}

		last = r
		at := float64(start+len(block[0])) / spec.SampleRate

		if !r.Active {
			fmt.Fprintf(w, "%7.2fs  -\n", at)

			return true
		}

		fmt.Fprintf(w, "%7.2fs  %-4s %8.2f Hz %+6.1f cents", at, r.NoteName(), r.FrequencyHz, r.Cents)

		if guitar {
			if idx, cents := pitch.NearestGuitarString(r.MIDINote, r.Cents); idx >= 0 {
				fmt.Fprintf(w, "  string %s %+6.1f cents", pitch.GuitarStrings[idx].Name, cents)
			}
		}

		fmt.Fprintln(w)

		return true
	})

	return nil
}
