//go:build !headless

package monitor

import (
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Open starts playback on the default device at sampleRate, buffering up
// to latency of audio.
func Open(sampleRate int, latency time.Duration) (*Monitor, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   latency,
	})
	if err != nil {
		return nil, fmt.Errorf("monitor: open output at %d Hz: %w", sampleRate, err)
	}
	<-ready

	m := newMonitor(capacityFor(sampleRate, latency))
	player := ctx.NewPlayer(m)
	player.Play()
	m.player = player

	return m, nil
}
