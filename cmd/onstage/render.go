package main

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/measure/loudness"
	"github.com/cwbudde/onstage-dsp/recorder"
)

func newRenderCmd(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "render <in.wav>",
		Short: "Run a file through the chain and record the result",
		Args:  cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.render(args[0], name)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.path)
			fmt.Fprintf(cmd.ErrOrStderr(), "integrated %s, peak %.1f dBFS\n", formatLUFS(res.integrated), res.peakDB)

			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Recording name, defaults to the input name")

	return cmd
}

type renderResult struct {
	path       string
	integrated float64
	peakDB     float64
}

// render processes in through the chain as fast as possible, recording and
// metering the output.
func (a *app) render(in, name string) (renderResult, error) {
	c, err := readClip(in)
	if err != nil {
		return renderResult{}, err
	}

	spec := a.spec(c.sampleRate)
	recorders := a.recorders()
	defer recorders.Close()

	chain, err := a.buildChain(spec, recorders)
	if err != nil {
		return renderResult{}, err
	}
	defer chain.Close()

	proc, err := chain.Append("render-output", "Recorder")
	if err != nil {
		return renderResult{}, err
	}

	out := proc.(*recorder.Recorder)
	out.SetSyncMode(false)

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	}

	out.SetRecorderName(name)

	if err := out.Start(); err != nil {
		return renderResult{}, err
	}

	meter := loudness.New(core.WithSampleRate(spec.SampleRate), core.WithChannels(2))

	var flushErr error

	c.blocks(a.cfg.BlockSize, func(_ int, block [][]float64) bool {
		chain.Process(block)
		meter.Process(block)
		flushErr = out.Flush()

		return flushErr == nil
	})

	if err := out.Stop(); err != nil {
		return renderResult{}, err
	}

	if flushErr != nil {
		return renderResult{}, flushErr
	}

	res := renderResult{
		path:       out.LastRecordingFile(),
		integrated: meter.Integrated(),
		peakDB:     meter.PeakDB(),
	}

	a.log.WithFields(logrus.Fields{
		"function": "render",
		"input":    in,
		"output":   res.path,
		"seconds":  out.RecordingLengthSeconds(),
		"lufs":     res.integrated,
		"peakDb":   res.peakDB,
	}).Info("Render finished")

	return res, nil
}

func formatLUFS(v float64) string {
	if math.IsInf(v, -1) {
		return "-inf LUFS"
	}

	return fmt.Sprintf("%.1f LUFS", v)
}
