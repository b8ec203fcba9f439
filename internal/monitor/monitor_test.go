package monitor

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func frameAt(p []byte, i int) (float32, float32) {
	l := math.Float32frombits(binary.LittleEndian.Uint32(p[i*bytesPerFrame:]))
	r := math.Float32frombits(binary.LittleEndian.Uint32(p[i*bytesPerFrame+4:]))

	return l, r
}

func TestMonitorReadWrite(t *testing.T) {
	m := newMonitor(8)
	m.Write([][]float64{{0.5, -0.25, 1}, {0.1, 0.2, 0.3}})

	if m.Buffered() != 3 {
		t.Fatalf("Buffered() = %d, want 3", m.Buffered())
	}

	p := make([]byte, 5*bytesPerFrame)
	for i := range p {
		p[i] = 0xff
	}

	if n, err := m.Read(p); n != len(p) || err != nil {
		t.Fatalf("Read = (%d, %v), want (%d, nil)", n, err, len(p))
	}

	want := [][2]float32{{0.5, 0.1}, {-0.25, 0.2}, {1, 0.3}, {0, 0}, {0, 0}}
	for i, w := range want {
		if l, r := frameAt(p, i); l != w[0] || r != w[1] {
			t.Fatalf("frame %d = (%v, %v), want %v", i, l, r, w)
		}
	}

	if m.Underruns() != 2 || m.Buffered() != 0 {
		t.Fatalf("underruns=%d buffered=%d, want 2 and 0", m.Underruns(), m.Buffered())
	}
}

func TestMonitorMonoAndOverrun(t *testing.T) {
	m := newMonitor(4)
	m.Write([][]float64{{1, 2, 3, 4, 5, 6}})

	if m.Buffered() != 4 || m.Overruns() != 2 {
		t.Fatalf("buffered=%d overruns=%d, want 4 and 2", m.Buffered(), m.Overruns())
	}

	p := make([]byte, 2*bytesPerFrame)
	m.Read(p)
	m.Write([][]float64{{7, 8}})

	p = make([]byte, 4*bytesPerFrame)
	m.Read(p)

	for i, want := range []float32{3, 4, 7, 8} {
		if l, r := frameAt(p, i); l != want || r != want {
			t.Fatalf("frame %d = (%v, %v), want %v on both", i, l, r, want)
		}
	}
}

func TestCapacityFor(t *testing.T) {
	if got := capacityFor(48000, 50*time.Millisecond); got != 48000 {
		t.Fatalf("capacityFor(48k, 50ms) = %d, want 48000", got)
	}

	if got := capacityFor(48000, 500*time.Millisecond); got != 96000 {
		t.Fatalf("capacityFor(48k, 500ms) = %d, want 96000", got)
	}
}

func TestMonitorCloseWithoutDevice(t *testing.T) {
	if err := newMonitor(1).Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
}
