package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/internal/monitor"
	"github.com/cwbudde/onstage-dsp/recorder"
)

const (
	meterInterval  = 100 * time.Millisecond
	monitorLatency = 50 * time.Millisecond
	meterFloorDB   = -100.0
)

type recordOptions struct {
	pace    float64
	monitor bool
	quiet   bool
}

func newRecordCmd(a *app) *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record <in.wav>",
		Short: "Play a file through the chain in real time while recording",
		Args:  cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.pace < 0 {
				return fmt.Errorf("invalid --pace %v", opts.pace)
			}

			if !cmd.Flags().Changed("monitor") {
				opts.monitor = a.cfg.Monitor
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			files, err := a.record(ctx, cmd.OutOrStdout(), args[0], opts)
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}

			return err
		},
	}

	cmd.Flags().Float64Var(&opts.pace, "pace", 1, "Playback speed, 1 is real time, 0 is as fast as possible")
	cmd.Flags().BoolVarP(&opts.monitor, "monitor", "m", false, "Play the processed stream on the default output")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print meters")

	return cmd
}

// record plays in through the chain on an audio clock goroutine while a
// second goroutine polls the recorder meters. Every synced recorder runs
// for the length of the file. It returns the files written.
func (a *app) record(ctx context.Context, w io.Writer, in string, opts recordOptions) ([]string, error) {
	c, err := readClip(in)
	if err != nil {
		return nil, err
	}

	spec := a.spec(c.sampleRate)
	recorders := a.recorders()
	defer recorders.Close()

	chain, err := a.buildChain(spec, recorders)
	if err != nil {
		return nil, err
	}
	defer chain.Close()

	// fallback records the whole file even when sync mode is off.
	var fallback *recorder.Recorder

	recs := chainRecorders(chain)
	if len(recs) == 0 {
		proc, err := chain.Append("", "Recorder")
		if err != nil {
			return nil, err
		}

		fallback = proc.(*recorder.Recorder)
		fallback.SetRecorderName(a.cfg.RecorderName)
		recs = append(recs, fallback)
	}

	var mon *monitor.Monitor
	if opts.monitor {
		mon, err = monitor.Open(int(spec.SampleRate), monitorLatency)
		if err != nil {
			return nil, err
		}
		defer mon.Close()
	}

	started := recorders.StartAllSynced()
	if fallback != nil && !fallback.SyncMode() && fallback.StartRecording() {
		started++
	}

	a.log.WithFields(logrus.Fields{
		"function":  "record",
		"input":     in,
		"recorders": started,
		"pace":      opts.pace,
	}).Info("Recording session started")

	g, gctx := errgroup.WithContext(ctx)
	finished := make(chan struct{})

	g.Go(func() error {
		defer close(finished)

		return runClock(gctx, c, spec, opts.pace, func(block [][]float64) error {
			chain.Process(block)

			if mon != nil {
				mon.Write(block)
			}

			if opts.pace == 0 {
				return flushAll(recs)
			}

			return nil
		})
	})

	if !opts.quiet {
		g.Go(func() error {
			return pollMeters(gctx, finished, w, recs)
		})
	}

	err = g.Wait()
	recorders.StopAllSynced()

	if fallback != nil && fallback.IsRecording() {
		fallback.StopRecording()
	}

	if errors.Is(err, context.Canceled) {
		err = nil
	}

	files := make([]string, 0, len(recs))
	for _, r := range recs {
		if f := r.LastRecordingFile(); f != "" {
			files = append(files, f)
		}
	}

	return files, err
}

// runClock feeds the clip block by block, sleeping so that blocks are
// delivered at pace times real time. A pace of 0 never sleeps.
func runClock(ctx context.Context, c *clip, spec core.ProcessSpec, pace float64, process func([][]float64) error) error {
	var ticker *time.Ticker

	if pace > 0 {
		period := time.Duration(float64(spec.BlockSize) / spec.SampleRate / pace * float64(time.Second))
		ticker = time.NewTicker(max(period, time.Microsecond))
		defer ticker.Stop()
	}

	var err error

	c.blocks(spec.BlockSize, func(_ int, block [][]float64) bool {
		if ticker != nil {
			select {
			case <-ctx.Done():
				err = ctx.Err()

				return false
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			err = ctx.Err()

			return false
		}

		err = process(block)

		return err == nil
	})

	return err
}

func flushAll(recs []*recorder.Recorder) error {
	for _, r := range recs {
		if err := r.Flush(); err != nil {
			return err
		}
	}

	return nil
}

// pollMeters prints recorder levels until the clock finishes.
func pollMeters(ctx context.Context, finished <-chan struct{}, w io.Writer, recs []*recorder.Recorder) error {
	ticker := time.NewTicker(meterInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-finished:
			return nil
		case <-ticker.C:
			for _, r := range recs {
				left, right := r.Levels()
				fmt.Fprintf(w, "%-12s L %6.1f dB  R %6.1f dB  %7.2fs\n",
					r.RecorderName(),
					core.GainToDB(left, meterFloorDB),
					core.GainToDB(right, meterFloorDB),
					r.RecordingLengthSeconds())
			}
		}
	}
}
