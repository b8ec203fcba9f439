package recorder

import (
	"runtime"
	"sync/atomic"
)

const (
	waveformCapacity   = 1024
	waveformDownsample = 256
)

// WaveformSample is the min/max envelope of one downsampling window.
type WaveformSample struct {
	MinLeft  float32
	MaxLeft  float32
	MinRight float32
	MaxRight float32
}

// waveformRing keeps the most recent waveform samples. Writers and readers
// share a spin lock held only for index bumps and copies.
type waveformRing struct {
	lock    atomic.Bool
	entries [waveformCapacity]WaveformSample
	next    int
	count   int

	// accumulator, audio goroutine only
	acc      WaveformSample
	accCount int
	restart  atomic.Bool
}

func (w *waveformRing) acquire() {
	for !w.lock.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (w *waveformRing) release() {
	w.lock.Store(false)
}

// add folds frames into the accumulator, publishing one entry per
// completed window.
func (w *waveformRing) add(left, right []float64) {
	if w.restart.Swap(false) {
		w.accCount = 0
	}

	n := min(len(left), len(right))

	for i := range n {
		l, r := float32(left[i]), float32(right[i])

		if w.accCount == 0 {
			w.acc = WaveformSample{MinLeft: l, MaxLeft: l, MinRight: r, MaxRight: r}
		} else {
			w.acc.MinLeft = min(w.acc.MinLeft, l)
			w.acc.MaxLeft = max(w.acc.MaxLeft, l)
			w.acc.MinRight = min(w.acc.MinRight, r)
			w.acc.MaxRight = max(w.acc.MaxRight, r)
		}

		w.accCount++
		if w.accCount == waveformDownsample {
			w.push(w.acc)
			w.accCount = 0
		}
	}
}

func (w *waveformRing) push(s WaveformSample) {
	w.acquire()
	w.entries[w.next] = s
	w.next = (w.next + 1) % waveformCapacity
	w.count = min(w.count+1, waveformCapacity)
	w.release()
}

// snapshot returns exactly n entries, most recent last. Positions older
// than anything captured since the last clear are zero.
func (w *waveformRing) snapshot(n int) []WaveformSample {
	if n <= 0 {
		return nil
	}

	out := make([]WaveformSample, n)

	w.acquire()

	filled := min(n, w.count)
	start := w.next - filled

	if start < 0 {
		start += waveformCapacity
	}

	dst := out[n-filled:]
	for i := range dst {
		dst[i] = w.entries[(start+i)%waveformCapacity]
	}

	w.release()

	return out
}

func (w *waveformRing) clear() {
	w.acquire()
	w.next = 0
	w.count = 0
	w.release()

	w.restart.Store(true)
}
