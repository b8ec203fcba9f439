package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/onstage-dsp/dsp/effectchain"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			recorders := a.recorders()
			defer recorders.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

			rows := [][2]string{
				{"sample_rate", fmt.Sprint(a.cfg.SampleRate)},
				{"block_size", fmt.Sprint(a.cfg.BlockSize)},
				{"recorder_name", a.cfg.RecorderName},
				{"sync_mode", fmt.Sprint(a.cfg.SyncEnabled())},
				{"pitch_strategy", a.cfg.PitchStrategy},
				{"log_level", a.cfg.LogLevel},
				{"chain", a.cfg.Chain},
				{"monitor", fmt.Sprint(a.cfg.Monitor)},
				{"recordings_folder", recorders.EffectiveDefaultFolder()},
				{"effects", strings.Join(effectchain.DefaultRegistry().Types(), ", ")},
			}

			for _, row := range rows {
				fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
			}

			return tw.Flush()
		},
	}
}
