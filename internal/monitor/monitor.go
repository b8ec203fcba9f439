// Package monitor plays the processed stream on the default output device.
//
// The audio clock writes blocks with [Monitor.Write]; the output device
// pulls float32 little-endian stereo through [Monitor.Read]. Underruns play
// silence. Building with the headless tag replaces the device with a sink
// that only counts frames.
package monitor

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const bytesPerFrame = 8

// Monitor buffers interleaved stereo frames between the audio clock and
// the output device.
type Monitor struct {
	mu    sync.Mutex
	ring  []float32
	read  int
	write int
	count int // frames buffered

	underruns atomic.Int64
	overruns  atomic.Int64

	player output
}

// output is the device side; nil when the monitor only buffers.
type output interface {
	Play()
	Close() error
}

func newMonitor(capacityFrames int) *Monitor {
	return &Monitor{ring: make([]float32, 2*max(capacityFrames, 1))}
}

func (m *Monitor) capacity() int {
	return len(m.ring) / 2
}

// Write queues one block. Mono blocks are duplicated; frames that do not
// fit are dropped.
func (m *Monitor) Write(buf [][]float64) {
	if len(buf) == 0 {
		return
	}

	left := buf[0]
	right := left

	if len(buf) > 1 {
		right = buf[1]
	}

	frames := min(len(left), len(right))

	m.mu.Lock()
	defer m.mu.Unlock()

	free := m.capacity() - m.count
	if frames > free {
		m.overruns.Add(int64(frames - free))
		frames = free
	}

	for i := range frames {
		m.ring[2*m.write] = float32(left[i])
		m.ring[2*m.write+1] = float32(right[i])
		m.write = (m.write + 1) % m.capacity()
	}

	m.count += frames
}

// Read fills p with float32 little-endian stereo frames. It never blocks
// and always returns len(p), padding with silence.
func (m *Monitor) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame

	m.mu.Lock()
	avail := min(frames, m.count)

	for i := range avail {
		binary.LittleEndian.PutUint32(p[i*bytesPerFrame:], math.Float32bits(m.ring[2*m.read]))
		binary.LittleEndian.PutUint32(p[i*bytesPerFrame+4:], math.Float32bits(m.ring[2*m.read+1]))
		m.read = (m.read + 1) % m.capacity()
	}

	m.count -= avail
	m.mu.Unlock()

	if avail < frames {
		m.underruns.Add(int64(frames - avail))
	}

	clear(p[avail*bytesPerFrame:])

	return len(p), nil
}

// Buffered returns the number of frames waiting for the device.
func (m *Monitor) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.count
}

// Underruns returns the number of silent frames handed to the device.
func (m *Monitor) Underruns() int64 {
	return m.underruns.Load()
}

// Overruns returns the number of frames dropped by Write.
func (m *Monitor) Overruns() int64 {
	return m.overruns.Load()
}

// Close stops playback.
func (m *Monitor) Close() error {
	if m.player == nil {
		return nil
	}

	err := m.player.Close()
	m.player = nil

	return err
}

// capacityFor holds four device buffers, at least one second.
func capacityFor(sampleRate int, latency time.Duration) int {
	frames := int(4 * latency.Seconds() * float64(sampleRate))

	return max(frames, sampleRate)
}
