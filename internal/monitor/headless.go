//go:build headless

package monitor

import "time"

// Open returns a monitor without an output device.
func Open(sampleRate int, latency time.Duration) (*Monitor, error) {
	return newMonitor(capacityFor(sampleRate, latency)), nil
}
