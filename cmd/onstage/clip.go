package main

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/wav"
)

// clip is a decoded stereo file.
type clip struct {
	sampleRate int
	channels   [2][]float64
}

func (c *clip) frames() int {
	return len(c.channels[0])
}

// readClip decodes a PCM WAV file into [-1, 1] floats. Mono files are
// duplicated to both channels; channels past the second are ignored.
func readClip(path string) (*clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	numChans := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	frames := len(buf.Data) / numChans
	factor := math.Pow(2, float64(bitDepth-1))

	offset := 0.0
	if bitDepth == 8 {
		offset = 128
	}

	c := &clip{sampleRate: int(dec.SampleRate)}
	c.channels[0] = make([]float64, frames)
	c.channels[1] = make([]float64, frames)

	for i := range frames {
		left := (float64(buf.Data[i*numChans]) - offset) / factor
		right := left

		if numChans > 1 {
			right = (float64(buf.Data[i*numChans+1]) - offset) / factor
		}

		c.channels[0][i] = left
		c.channels[1][i] = right
	}

	return c, nil
}

// blocks calls fn with consecutive blocks of at most size frames. The
// block is a scratch copy; fn may modify it. fn returning false stops.
func (c *clip) blocks(size int, fn func(start int, block [][]float64) bool) {
	scratch := [][]float64{make([]float64, size), make([]float64, size)}

	for start := 0; start < c.frames(); start += size {
		n := min(size, c.frames()-start)
		block := [][]float64{scratch[0][:n], scratch[1][:n]}

		copy(block[0], c.channels[0][start:start+n])
		copy(block[1], c.channels[1][start:start+n])

		if !fn(start, block) {
			return
		}
	}
}
