package testutil

import (
	"math"
	"math/rand"
)

// DeterministicSine generates a deterministic sine wave.
func DeterministicSine(freqHz, sampleRate, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}
	return out
}

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// Impulse generates a unit impulse at the given position.
func Impulse(length, pos int) []float64 {
	out := make([]float64, length)
	if pos >= 0 && pos < length {
		out[pos] = 1
	}
	return out
}

// Stereo returns a two-channel buffer holding copies of left and right.
func Stereo(left, right []float64) [][]float64 {
	return [][]float64{
		append([]float64(nil), left...),
		append([]float64(nil), right...),
	}
}

// StereoSine returns the same deterministic sine on both channels.
func StereoSine(freqHz, sampleRate, amplitude float64, length int) [][]float64 {
	s := DeterministicSine(freqHz, sampleRate, amplitude, length)
	return Stereo(s, s)
}

// RMS returns the root mean square of x.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// ProcessInBlocks feeds buf to process in consecutive blocks of blockSize
// frames, the way a host callback would.
func ProcessInBlocks(process func([][]float64), buf [][]float64, blockSize int) {
	if len(buf) == 0 || blockSize <= 0 {
		return
	}
	n := len(buf[0])
	block := make([][]float64, len(buf))
	for start := 0; start < n; start += blockSize {
		end := min(start+blockSize, n)
		for ch := range buf {
			block[ch] = buf[ch][start:end]
		}
		process(block)
	}
}
