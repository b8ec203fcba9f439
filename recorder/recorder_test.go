package recorder

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/dsp/effect"
	"github.com/cwbudde/onstage-dsp/internal/testutil"
)

const (
	testSampleRate = 48000
	testBlockSize  = 256
	fullScale      = 1 << 23
)

func newTestRecorder(t *testing.T, reg *Registry) *Recorder {
	t.Helper()

	dir := t.TempDir()

	r := New(reg, core.WithSampleRate(testSampleRate), core.WithBlockSize(testBlockSize))
	r.SetFolder(dir)
	t.Cleanup(func() { _ = r.Close() })

	return r
}

// readWAV decodes path and returns the interleaved samples.
func readWAV(t *testing.T, path string) []int {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}

	if dec.NumChans != 2 || dec.BitDepth != 24 || dec.SampleRate != testSampleRate {
		t.Fatalf("format = %d ch / %d bit / %d Hz, want 2 / 24 / %d",
			dec.NumChans, dec.BitDepth, dec.SampleRate, testSampleRate)
	}

	return buf.Data
}

func processBlocks(r *Recorder, left, right []float64) {
	for start := 0; start < len(left); start += testBlockSize {
		end := min(start+testBlockSize, len(left))
		r.Process([][]float64{left[start:end], right[start:end]})
	}
}

func TestRecorderDefaults(t *testing.T) {
	r := newTestRecorder(t, nil)

	if r.Name() != "Recorder" {
		t.Fatalf("Name() = %q, want Recorder", r.Name())
	}

	if r.RecorderName() != "Untitled" || !r.SyncMode() || r.IsRecording() {
		t.Fatalf("defaults = (%q, %v, %v), want (Untitled, true, false)",
			r.RecorderName(), r.SyncMode(), r.IsRecording())
	}

	if r.HasRecording() || r.LastRecordingFile() != "" {
		t.Fatal("new recorder reports a recording")
	}
}

func TestRecorderWritesEveryQueuedFrame(t *testing.T) {
	r := newTestRecorder(t, nil)

	const frames = 100 * testBlockSize

	left := testutil.DeterministicSine(440, testSampleRate, 0.5, frames)
	right := testutil.DeterministicSine(1000, testSampleRate, 0.25, frames)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	processBlocks(r, left, right)

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := r.SamplesRecorded(); got != frames {
		t.Fatalf("SamplesRecorded() = %d, want %d", got, frames)
	}

	if got, want := r.RecordingLengthSeconds(), float64(frames)/testSampleRate; math.Abs(got-want) > 1e-12 {
		t.Fatalf("RecordingLengthSeconds() = %v, want %v", got, want)
	}

	data := readWAV(t, r.LastRecordingFile())
	if len(data) != 2*frames {
		t.Fatalf("decoded %d frames, want %d", len(data)/2, frames)
	}

	for i := range frames {
		wantL := left[i] * fullScale
		wantR := right[i] * fullScale

		if math.Abs(float64(data[2*i])-wantL) > 2 || math.Abs(float64(data[2*i+1])-wantR) > 2 {
			t.Fatalf("frame %d = (%d, %d), want about (%.0f, %.0f)", i, data[2*i], data[2*i+1], wantL, wantR)
		}
	}
}

func TestRecorderLeavesAudioUntouched(t *testing.T) {
	r := newTestRecorder(t, nil)

	buf := testutil.StereoSine(440, testSampleRate, 0.5, testBlockSize)
	want := [][]float64{append([]float64(nil), buf[0]...), append([]float64(nil), buf[1]...)}

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r.Process(buf)

	for ch := range buf {
		testutil.RequireSliceNearlyEqual(t, buf[ch], want[ch], 0)
	}
}

func TestRecorderClampsOverRange(t *testing.T) {
	r := newTestRecorder(t, nil)

	left := []float64{2, -3, 0.5, 1}
	right := []float64{-1.5, 1.5, -0.5, -1}

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r.Process([][]float64{left, right})

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	data := readWAV(t, r.LastRecordingFile())
	want := []float64{1, -1, -1, 1, 0.5, -0.5, 1, -1}

	if len(data) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(data), len(want))
	}

	for i := range want {
		if math.Abs(float64(data[i])-want[i]*fullScale) > 2 {
			t.Fatalf("sample %d = %d, want about %.0f", i, data[i], want[i]*fullScale)
		}
	}
}

func TestRecorderMonoDuplicated(t *testing.T) {
	r := newTestRecorder(t, nil)

	mono := testutil.DeterministicSine(220, testSampleRate, 0.3, testBlockSize)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r.Process([][]float64{mono})

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	data := readWAV(t, r.LastRecordingFile())
	if len(data) != 2*testBlockSize {
		t.Fatalf("decoded %d frames, want %d", len(data)/2, testBlockSize)
	}

	for i := range testBlockSize {
		if data[2*i] != data[2*i+1] {
			t.Fatalf("frame %d = (%d, %d), want equal channels", i, data[2*i], data[2*i+1])
		}
	}
}

func TestRecorderImmediateStopProducesEmptyFile(t *testing.T) {
	r := newTestRecorder(t, nil)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if !r.HasRecording() {
		t.Fatal("HasRecording() = false after stop")
	}

	if data := readWAV(t, r.LastRecordingFile()); len(data) != 0 {
		t.Fatalf("decoded %d samples, want 0", len(data))
	}
}

func TestRecorderStartTwice(t *testing.T) {
	r := newTestRecorder(t, nil)

	if !r.StartRecording() {
		t.Fatal("first StartRecording() = false")
	}

	first := r.LastRecordingFile()

	if err := r.Start(); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start() = %v, want ErrAlreadyRecording", err)
	}

	if r.StartRecording() {
		t.Fatal("second StartRecording() = true")
	}

	if r.LastRecordingFile() != first {
		t.Fatalf("LastRecordingFile changed to %q", r.LastRecordingFile())
	}

	r.StopRecording()
	r.StopRecording()

	if r.IsRecording() {
		t.Fatal("IsRecording() = true after stop")
	}
}

func TestRecorderStartFailsOnBadFolder(t *testing.T) {
	r := newTestRecorder(t, nil)

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	r.SetFolder(filepath.Join(blocker, "sub"))

	if r.StartRecording() {
		t.Fatal("StartRecording() = true with an unusable folder")
	}

	if r.IsRecording() || r.LastRecordingFile() != "" {
		t.Fatal("failed start mutated state")
	}
}

func TestRecorderFileNames(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Vocals", `^Vocals_20261018_203005\.wav$`},
		{"", `^Recording_20261018_203005\.wav$`},
		{"  ", `^Recording_20261018_203005\.wav$`},
		{"a/b:c", `^a_b_c_20261018_203005\.wav$`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRecorder(t, nil)
			r.now = func() time.Time { return time.Date(2026, 10, 18, 20, 30, 5, 0, time.Local) }
			r.SetRecorderName(tt.name)

			if err := r.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}

			r.StopRecording()

			if got := filepath.Base(r.LastRecordingFile()); !regexp.MustCompile(tt.want).MatchString(got) {
				t.Fatalf("file = %q, want match %s", got, tt.want)
			}
		})
	}
}

func TestRecorderFileNameCollision(t *testing.T) {
	r := newTestRecorder(t, nil)
	r.now = func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.Local) }
	r.SetRecorderName("Take")

	want := []string{"Take_20261018_090000.wav", "Take_20261018_090000_2.wav", "Take_20261018_090000_3.wav"}

	for i, name := range want {
		if err := r.Start(); err != nil {
			t.Fatalf("Start #%d: %v", i, err)
		}

		r.StopRecording()

		if got := filepath.Base(r.LastRecordingFile()); got != name {
			t.Fatalf("recording #%d = %q, want %q", i, got, name)
		}
	}
}

func TestRecorderConcurrentStartStop(t *testing.T) {
	r := newTestRecorder(t, nil)

	block := testutil.StereoSine(440, testSampleRate, 0.5, testBlockSize)
	stop := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()

		for {
			select {
			case <-stop:
				return
			default:
				r.Process(block)
				_, _ = r.Levels()
				_ = r.Waveform(16)
			}
		}
	}()

	go func() {
		defer wg.Done()

		for range 25 {
			r.StartRecording()
			time.Sleep(time.Millisecond)
			r.StopRecording()
		}
	}()

	time.Sleep(5 * time.Millisecond)
	close(stop)
	wg.Wait()

	if r.IsRecording() {
		t.Fatal("IsRecording() = true after the last stop")
	}

	if r.LastRecordingFile() == "" {
		t.Fatal("no recording was made")
	}

	frames := r.SamplesRecorded()
	if data := readWAV(t, r.LastRecordingFile()); int64(len(data)/2) != frames {
		t.Fatalf("last file has %d frames, counter says %d", len(data)/2, frames)
	}
}

func TestRecorderLevels(t *testing.T) {
	r := newTestRecorder(t, nil)

	left := make([]float64, testBlockSize)
	right := make([]float64, testBlockSize)
	left[10] = 0.8
	right[20] = -0.4

	r.Process([][]float64{left, right})

	if l, rr := r.Levels(); l != 0 || rr != 0 {
		t.Fatalf("idle Levels() = (%v, %v), want zero", l, rr)
	}

	r.SetWaveformActive(true)
	r.Process([][]float64{left, right})

	l, rr := r.Levels()
	if math.Abs(l-0.24) > 1e-12 || math.Abs(rr-0.12) > 1e-12 {
		t.Fatalf("Levels() = (%v, %v), want (0.24, 0.12)", l, rr)
	}

	r.Process([][]float64{left, right})

	l, _ = r.Levels()
	if want := 0.3*0.8 + 0.7*0.24; math.Abs(l-want) > 1e-12 {
		t.Fatalf("second Levels() left = %v, want %v", l, want)
	}

	silence := [][]float64{make([]float64, testBlockSize), make([]float64, testBlockSize)}
	for range 200 {
		r.Process(silence)
	}

	if l, rr := r.Levels(); l != 0 || rr != 0 {
		t.Fatalf("decayed Levels() = (%v, %v), want exactly zero", l, rr)
	}

	r.SetWaveformActive(false)
	r.SetWaveformActive(true)
	r.Process([][]float64{left, right})
	r.SetWaveformActive(false)
	r.Process([][]float64{left, right})

	if l, rr := r.Levels(); l != 0 || rr != 0 {
		t.Fatalf("Levels() after deactivation = (%v, %v), want zero", l, rr)
	}
}

func TestRecorderWaveform(t *testing.T) {
	r := newTestRecorder(t, nil)
	r.SetWaveformActive(true)

	left := make([]float64, 3*waveformDownsample+10)
	right := make([]float64, len(left))

	for i := range left {
		left[i] = float64(i%waveformDownsample) / waveformDownsample
		right[i] = -left[i]
	}

	r.Process([][]float64{left, right})

	got := r.Waveform(10)
	if len(got) != 10 {
		t.Fatalf("Waveform(10) returned %d entries, want 10", len(got))
	}

	for i, s := range got[:7] {
		if s != (WaveformSample{}) {
			t.Fatalf("padding entry %d = %+v, want zero", i, s)
		}
	}

	wantMax := float32(waveformDownsample-1) / waveformDownsample
	for i, s := range got[7:] {
		if s.MinLeft != 0 || s.MaxLeft != wantMax || s.MinRight != -wantMax || s.MaxRight != 0 {
			t.Fatalf("entry %d = %+v", 7+i, s)
		}
	}

	if got := r.Waveform(0); got != nil {
		t.Fatalf("Waveform(0) = %v, want nil", got)
	}
}

func TestWaveformRingKeepsMostRecent(t *testing.T) {
	var w waveformRing

	for i := range waveformCapacity + 5 {
		v := float32(i)
		w.push(WaveformSample{MinLeft: v, MaxLeft: v})
	}

	got := w.snapshot(waveformCapacity)
	if len(got) != waveformCapacity {
		t.Fatalf("snapshot returned %d entries, want %d", len(got), waveformCapacity)
	}

	if got[0].MinLeft != 5 || got[len(got)-1].MinLeft != waveformCapacity+4 {
		t.Fatalf("snapshot spans %v..%v, want 5..%d", got[0].MinLeft, got[len(got)-1].MinLeft, waveformCapacity+4)
	}

	wide := w.snapshot(waveformCapacity + 3)
	if len(wide) != waveformCapacity+3 || wide[2] != (WaveformSample{}) || wide[3].MinLeft != 5 {
		t.Fatalf("snapshot(capacity+3) has %d entries starting %+v", len(wide), wide[:4])
	}

	last := w.snapshot(2)
	if last[0].MinLeft != waveformCapacity+3 || last[1].MinLeft != waveformCapacity+4 {
		t.Fatalf("snapshot(2) = %+v", last)
	}

	w.clear()

	for i, s := range w.snapshot(4) {
		if s != (WaveformSample{}) {
			t.Fatalf("entry %d after clear = %+v, want zero", i, s)
		}
	}
}

func TestRecorderWaveformPartlyFilled(t *testing.T) {
	r := newTestRecorder(t, nil)
	r.SetWaveformActive(true)

	block := [][]float64{make([]float64, testBlockSize), make([]float64, testBlockSize)}
	for i := range testBlockSize {
		block[0][i] = 0.5
		block[1][i] = -0.25
	}

	for range 10 {
		r.Process(block)
	}

	got := r.Waveform(200)
	if len(got) != 200 {
		t.Fatalf("Waveform(200) returned %d entries, want 200", len(got))
	}

	windows := 10 * testBlockSize / waveformDownsample
	for i, s := range got {
		want := WaveformSample{}
		if i >= len(got)-windows {
			want = WaveformSample{MinLeft: 0.5, MaxLeft: 0.5, MinRight: -0.25, MaxRight: -0.25}
		}

		if s != want {
			t.Fatalf("entry %d = %+v, want %+v", i, s, want)
		}
	}
}

func TestRecorderBypassSkipsCapture(t *testing.T) {
	r := newTestRecorder(t, nil)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r.SetBypassed(true)
	r.Process(testutil.StereoSine(440, testSampleRate, 0.5, testBlockSize))
	r.SetBypassed(false)
	r.Process(testutil.StereoSine(440, testSampleRate, 0.5, testBlockSize))

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := r.SamplesRecorded(); got != testBlockSize {
		t.Fatalf("SamplesRecorded() = %d, want %d", got, testBlockSize)
	}
}

func TestRecorderState(t *testing.T) {
	r := newTestRecorder(t, nil)
	dir := r.Folder()

	r.LoadState(effect.State{"name": "Drums", "syncMode": false, "folder": "/tmp/takes"})

	if r.RecorderName() != "Drums" || r.SyncMode() || r.Folder() != "/tmp/takes" {
		t.Fatalf("after LoadState = (%q, %v, %q)", r.RecorderName(), r.SyncMode(), r.Folder())
	}

	saved := r.SaveState()
	if saved["name"] != "Drums" || saved["syncMode"] != false || saved["folder"] != "/tmp/takes" {
		t.Fatalf("SaveState() = %v", saved)
	}

	r.SetFolder(dir)
	r.LoadState(effect.State{"name": 12, "syncMode": "maybe", "folder": 3})

	if r.RecorderName() != "Untitled" || !r.SyncMode() || r.Folder() != dir {
		t.Fatalf("malformed LoadState = (%q, %v, %q), want (Untitled, true, %q)",
			r.RecorderName(), r.SyncMode(), r.Folder(), dir)
	}
}

func TestRecorderClose(t *testing.T) {
	reg := NewRegistry(nil)
	r := New(reg, core.WithSampleRate(testSampleRate))
	r.SetFolder(t.TempDir())

	if reg.Len() != 1 {
		t.Fatalf("registry Len() = %d, want 1", reg.Len())
	}

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r.Process(testutil.StereoSine(440, testSampleRate, 0.5, testBlockSize))

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if r.IsRecording() || reg.Len() != 0 {
		t.Fatalf("after Close: recording=%v registered=%d", r.IsRecording(), reg.Len())
	}

	if err := r.Start(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after Close = %v, want ErrClosed", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if data := readWAV(t, r.LastRecordingFile()); len(data) != 2*testBlockSize {
		t.Fatalf("decoded %d frames, want %d", len(data)/2, testBlockSize)
	}
}

func TestRecorderFlushKeepsLongRendersComplete(t *testing.T) {
	r := newTestRecorder(t, nil)

	if err := r.Flush(); err != nil {
		t.Fatalf("idle Flush: %v", err)
	}

	// longer than the queue holds
	frames := 2 * newSampleQueue(testSampleRate*queueSeconds).capacity()
	block := testutil.StereoSine(440, testSampleRate, 0.5, 4096)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for done := 0; done < frames; done += 4096 {
		r.Process(block)

		if err := r.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := r.SamplesRecorded(); got != int64(frames) {
		t.Fatalf("SamplesRecorded() = %d, want %d", got, frames)
	}

	if data := readWAV(t, r.LastRecordingFile()); len(data) != 2*frames {
		t.Fatalf("decoded %d frames, want %d", len(data)/2, frames)
	}
}
