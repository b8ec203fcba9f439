package recorder

import "sync/atomic"

// sampleQueue is a single-producer single-consumer ring of interleaved
// stereo float32 frames. The audio goroutine pushes, the writer drains.
// When full, incoming frames are dropped and counted.
type sampleQueue struct {
	data []float32
	mask uint64

	head    atomic.Uint64 // frames written
	tail    atomic.Uint64 // frames read
	dropped atomic.Uint64
}

func newSampleQueue(minFrames int) *sampleQueue {
	size := uint64(1)
	for size < uint64(max(minFrames, 1)) {
		size <<= 1
	}

	return &sampleQueue{
		data: make([]float32, 2*size),
		mask: size - 1,
	}
}

func (q *sampleQueue) capacity() int {
	return int(q.mask + 1)
}

// pushFrames appends one frame per index of left and right and returns the
// number of frames stored.
func (q *sampleQueue) pushFrames(left, right []float64) int {
	n := min(len(left), len(right))
	head := q.head.Load()
	free := q.mask + 1 - (head - q.tail.Load())

	if uint64(n) > free {
		q.dropped.Add(uint64(n) - free)
		n = int(free)
	}

	for i := range n {
		idx := ((head + uint64(i)) & q.mask) * 2
		q.data[idx] = float32(left[i])
		q.data[idx+1] = float32(right[i])
	}

	q.head.Store(head + uint64(n))

	return n
}

// pop copies up to len(dst)/2 frames into dst and returns the frame count.
func (q *sampleQueue) pop(dst []float32) int {
	tail := q.tail.Load()
	avail := q.head.Load() - tail
	n := min(avail, uint64(len(dst)/2))

	for i := range n {
		idx := ((tail + i) & q.mask) * 2
		dst[2*i] = q.data[idx]
		dst[2*i+1] = q.data[idx+1]
	}

	q.tail.Store(tail + n)

	return int(n)
}

func (q *sampleQueue) buffered() int {
	return int(q.head.Load() - q.tail.Load())
}
