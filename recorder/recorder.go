package recorder

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/dsp/effect"
)

const (
	defaultRecorderName = "Untitled"
	fallbackFileName    = "Recording"
	timestampLayout     = "20060102_150405"
	maxNameCollisions   = 1000

	levelAttack = 0.3
	levelFloor  = 1e-7

	writerInterval    = 10 * time.Millisecond
	writerStopTimeout = 2 * time.Second
)

var (
	// ErrAlreadyRecording is returned by Start while a recording is running.
	ErrAlreadyRecording = errors.New("recorder: already recording")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("recorder: closed")
)

// Recorder streams its stereo input to a 24-bit WAV file.
//
// Process runs on the audio goroutine and passes audio through unchanged.
// While recording it copies each block into a lock-free queue under a short
// lifecycle lock; a writer goroutine owned by the recorder drains the queue
// to disk every few milliseconds. Start publishes the new session before
// raising the recording flag and Stop lowers the flag before detaching the
// session, so no block is ever queued to a finished file. Levels and the
// waveform are published for any goroutine to poll.
//
// Mono input is recorded on both channels. A bypassed recorder neither
// meters nor captures.
type Recorder struct {
	effect.Bypass

	reg *Registry
	log logrus.FieldLogger
	now func() time.Time

	sampleRate core.AtomicFloat64

	ctl    sync.Mutex // serializes Start, Stop and Close
	closed bool

	mu     sync.Mutex // guards active; shared with the audio goroutine
	active *session

	current atomic.Pointer[session] // writer goroutine view

	recording       atomic.Bool
	samplesRecorded atomic.Int64
	waveformActive  atomic.Bool
	syncMode        atomic.Bool

	// audio goroutine only
	levelL, levelR float64

	levelLeft  core.AtomicFloat64
	levelRight core.AtomicFloat64
	waveform   waveformRing

	settingsMu sync.Mutex
	name       string
	folder     string
	lastFile   string

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ effect.Processor = (*Recorder)(nil)
	_ effect.Stateful  = (*Recorder)(nil)
)

// New creates a recorder registered with reg and starts its writer
// goroutine. The recorder starts in the registry's default sync mode. A nil
// reg gets a private registry. Call Close when done.
func New(reg *Registry, opts ...core.ProcessorOption) *Recorder {
	if reg == nil {
		reg = NewRegistry(nil)
	}

	r := &Recorder{
		reg:  reg,
		log:  reg.log,
		now:  time.Now,
		name: defaultRecorderName,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	r.syncMode.Store(reg.DefaultSyncMode())
	r.Prepare(core.ApplyProcessorOptions(opts...))

	go r.runWriter()

	reg.Register(r)

	return r
}

// Name returns the registry type name.
func (r *Recorder) Name() string { return "Recorder" }

// Prepare records the stream sample rate used for new recordings. An
// invalid rate falls back to the default.
func (r *Recorder) Prepare(spec core.ProcessSpec) {
	r.sampleRate.Store(spec.Normalized().SampleRate)
	r.Reset()
}

// Reset clears levels and the waveform.
func (r *Recorder) Reset() {
	r.levelL, r.levelR = 0, 0
	r.levelLeft.Store(0)
	r.levelRight.Store(0)
	r.waveform.clear()
}

// Process meters buf and, while recording, queues it for the writer. The
// buffer is left untouched.
func (r *Recorder) Process(buf [][]float64) {
	if r.Bypassed() {
		return
	}

	channels, frames := effect.Channels(buf)
	if channels == 0 || frames == 0 {
		return
	}

	left := buf[0][:frames]
	right := left

	if channels > 1 {
		right = buf[1][:frames]
	}

	recording := r.recording.Load()

	if recording || r.waveformActive.Load() {
		r.meter(left, right)
		r.waveform.add(left, right)
	} else if r.levelL != 0 || r.levelR != 0 {
		r.levelL, r.levelR = 0, 0
		r.levelLeft.Store(0)
		r.levelRight.Store(0)
	}

	if !recording {
		return
	}

	r.mu.Lock()
	if s := r.active; s != nil && r.recording.Load() {
		r.samplesRecorded.Add(int64(s.queue.pushFrames(left, right)))
	}
	r.mu.Unlock()
}

func (r *Recorder) meter(left, right []float64) {
	r.levelL = smoothLevel(r.levelL, core.PeakAbs(left))
	r.levelR = smoothLevel(r.levelR, core.PeakAbs(right))
	r.levelLeft.Store(r.levelL)
	r.levelRight.Store(r.levelR)
}

func smoothLevel(level, peak float64) float64 {
	level = levelAttack*peak + (1-levelAttack)*level
	if level < levelFloor {
		return 0
	}

	return level
}

// Start opens a new file and begins recording.
func (r *Recorder) Start() error {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	if r.closed {
		return ErrClosed
	}

	if r.recording.Load() {
		return ErrAlreadyRecording
	}

	folder := r.Folder()
	if folder == "" {
		folder = r.reg.EffectiveDefaultFolder()
	}

	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("recorder: create folder %s: %w", folder, err)
	}

	sampleRate := int(math.Round(r.sampleRate.Load()))

	s, err := r.createSession(folder, sampleRate)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"function": "Start",
			"folder":   folder,
			"error":    err.Error(),
		}).Error("Failed to open recording")

		return err
	}

	r.settingsMu.Lock()
	r.lastFile = s.path
	r.settingsMu.Unlock()

	r.samplesRecorded.Store(0)
	r.waveform.clear()

	r.mu.Lock()
	r.active = s
	r.mu.Unlock()

	r.current.Store(s)
	r.recording.Store(true)

	r.log.WithFields(logrus.Fields{
		"function":   "Start",
		"file":       s.path,
		"sampleRate": sampleRate,
	}).Info("Recording started")

	return nil
}

// StartRecording is Start reporting success as a bool.
func (r *Recorder) StartRecording() bool {
	return r.Start() == nil
}

// Stop ends the current recording, flushing queued audio and finalizing
// the file before it returns. Stopping an idle recorder is a no-op.
func (r *Recorder) Stop() error {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	return r.stopLocked()
}

// StopRecording is Stop with the error logged.
func (r *Recorder) StopRecording() {
	_ = r.Stop()
}

func (r *Recorder) stopLocked() error {
	if !r.recording.Swap(false) {
		return nil
	}

	r.mu.Lock()
	s := r.active
	r.active = nil
	r.mu.Unlock()

	r.current.Store(nil)

	if s == nil {
		return nil
	}

	frames, err := s.finish()

	fields := logrus.Fields{
		"function": "Stop",
		"file":     s.path,
		"frames":   frames,
		"dropped":  s.queue.dropped.Load(),
	}

	if err != nil {
		fields["error"] = err.Error()
		r.log.WithFields(fields).Error("Recording finished with errors")

		return err
	}

	r.log.WithFields(fields).Info("Recording stopped")

	return nil
}

// Flush encodes queued audio on the calling goroutine. Offline renders
// call it between blocks to keep the queue from overflowing.
func (r *Recorder) Flush() error {
	s := r.current.Load()
	if s == nil {
		return nil
	}

	if err := s.drain(); err != nil && !errors.Is(err, errSessionClosed) {
		return err
	}

	return nil
}

// Close stops any recording, unregisters the recorder and stops the writer
// goroutine. Waiting for the writer is bounded; on timeout Close logs and
// returns anyway.
func (r *Recorder) Close() error {
	var err error

	r.closeOnce.Do(func() {
		r.ctl.Lock()
		r.closed = true
		err = r.stopLocked()
		r.ctl.Unlock()

		r.reg.Unregister(r)
		close(r.stop)

		select {
		case <-r.done:
		case <-time.After(writerStopTimeout):
			r.log.WithFields(logrus.Fields{
				"function": "Close",
				"timeout":  writerStopTimeout.String(),
			}).Warn("Recorder writer did not stop in time")
		}
	})

	return err
}

func (r *Recorder) runWriter() {
	defer close(r.done)

	ticker := time.NewTicker(writerInterval)
	defer ticker.Stop()

	var failed *session

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			s := r.current.Load()
			if s == nil {
				continue
			}

			err := s.drain()
			if err != nil && !errors.Is(err, errSessionClosed) && s != failed {
				failed = s
				r.log.WithFields(logrus.Fields{
					"function": "runWriter",
					"file":     s.path,
					"error":    err.Error(),
				}).Error("Recording write failed")
			}
		}
	}
}

// createSession opens <name>_<timestamp>.wav in folder, adding _2, _3, ...
// when the name is taken.
func (r *Recorder) createSession(folder string, sampleRate int) (*session, error) {
	base := sanitizeFileName(r.RecorderName()) + "_" + r.now().Format(timestampLayout)

	for i := 1; i <= maxNameCollisions; i++ {
		name := base
		if i > 1 {
			name += "_" + strconv.Itoa(i)
		}

		s, err := openSession(filepath.Join(folder, name+".wav"), sampleRate)
		if errors.Is(err, fs.ErrExist) {
			continue
		}

		return s, err
	}

	return nil, fmt.Errorf("recorder: no free file name for %s in %s", base, folder)
}

func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallbackFileName
	}

	return strings.Map(func(c rune) rune {
		switch c {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}

		if c < 0x20 {
			return '_'
		}

		return c
	}, name)
}

// IsRecording reports whether a recording is running.
func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}

// SamplesRecorded returns the frames queued for the current or last
// recording.
func (r *Recorder) SamplesRecorded() int64 {
	return r.samplesRecorded.Load()
}

// RecordingLengthSeconds returns the length of the current or last
// recording.
func (r *Recorder) RecordingLengthSeconds() float64 {
	return float64(r.samplesRecorded.Load()) / r.sampleRate.Load()
}

// Levels returns the smoothed peak level of each channel.
func (r *Recorder) Levels() (left, right float64) {
	return r.levelLeft.Load(), r.levelRight.Load()
}

// SetWaveformActive enables metering and waveform capture while idle.
func (r *Recorder) SetWaveformActive(active bool) {
	r.waveformActive.Store(active)
}

// Waveform returns n waveform samples, most recent last. Until enough
// windows have been captured the leading entries are zero.
func (r *Recorder) Waveform(n int) []WaveformSample {
	return r.waveform.snapshot(n)
}

// SetSyncMode includes or excludes the recorder from registry-wide
// start and stop.
func (r *Recorder) SetSyncMode(on bool) {
	r.syncMode.Store(on)
}

// SyncMode reports whether the recorder follows registry-wide start and
// stop.
func (r *Recorder) SyncMode() bool {
	return r.syncMode.Load()
}

// SetRecorderName sets the file name prefix for new recordings.
func (r *Recorder) SetRecorderName(name string) {
	r.settingsMu.Lock()
	r.name = name
	r.settingsMu.Unlock()
}

// RecorderName returns the file name prefix.
func (r *Recorder) RecorderName() string {
	r.settingsMu.Lock()
	defer r.settingsMu.Unlock()

	return r.name
}

// SetFolder sets the folder for new recordings. An empty folder uses the
// registry default.
func (r *Recorder) SetFolder(folder string) {
	r.settingsMu.Lock()
	r.folder = folder
	r.settingsMu.Unlock()
}

// Folder returns the recorder's own folder, possibly empty.
func (r *Recorder) Folder() string {
	r.settingsMu.Lock()
	defer r.settingsMu.Unlock()

	return r.folder
}

// LastRecordingFile returns the path of the current or last recording.
func (r *Recorder) LastRecordingFile() string {
	r.settingsMu.Lock()
	defer r.settingsMu.Unlock()

	return r.lastFile
}

// HasRecording reports whether the last recording file exists on disk.
func (r *Recorder) HasRecording() bool {
	path := r.LastRecordingFile()
	if path == "" {
		return false
	}

	_, err := os.Stat(path)

	return err == nil
}

// SaveState returns name, sync mode and folder.
func (r *Recorder) SaveState() effect.State {
	return effect.State{
		"name":     r.RecorderName(),
		"syncMode": r.SyncMode(),
		"folder":   r.Folder(),
	}
}

// LoadState restores name, sync mode and folder. An empty folder keeps the
// current one.
func (r *Recorder) LoadState(s effect.State) {
	r.SetRecorderName(s.String("name", defaultRecorderName))
	r.SetSyncMode(s.Bool("syncMode", r.reg.DefaultSyncMode()))

	if folder := s.String("folder", ""); folder != "" {
		r.SetFolder(folder)
	}
}
