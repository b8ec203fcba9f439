package recorder

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/transforms"
	"github.com/go-audio/wav"
)

const (
	recordBitDepth  = 24
	recordChannels  = 2
	wavFormatPCM    = 1
	queueSeconds    = 4
	drainChunkFrame = 4096

	// largest sample that scales below 2^23 whichever full-scale
	// convention the PCM scaler uses
	maxSample = float32(8388607) / 8388608
)

var errSessionClosed = errors.New("recorder: session closed")

// session is one open recording: the output file, its encoder and the queue
// the audio goroutine feeds. The writer goroutine and the control goroutine
// both drain it under mu.
type session struct {
	path  string
	queue *sampleQueue

	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	scratch []float32
	fBuf    *audio.Float32Buffer
	frames  int64
	closed  bool
}

// openSession creates path exclusively and writes a WAV header so the file
// is valid even if no audio ever arrives.
func openSession(path string, sampleRate int) (*session, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recorder: create %s: %w", path, err)
	}

	enc := wav.NewEncoder(f, sampleRate, recordBitDepth, recordChannels, wavFormatPCM)
	format := &audio.Format{NumChannels: recordChannels, SampleRate: sampleRate}

	if err := enc.Write(&audio.IntBuffer{Format: format, SourceBitDepth: recordBitDepth}); err != nil {
		f.Close()
		os.Remove(path)

		return nil, fmt.Errorf("recorder: write header %s: %w", path, err)
	}

	return &session{
		path:    path,
		queue:   newSampleQueue(sampleRate * queueSeconds),
		file:    f,
		enc:     enc,
		scratch: make([]float32, drainChunkFrame*recordChannels),
		fBuf:    &audio.Float32Buffer{Format: format},
	}, nil
}

// drain encodes everything currently queued.
func (s *session) drain() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSessionClosed
	}

	return s.drainLocked()
}

func (s *session) drainLocked() error {
	for {
		n := s.queue.pop(s.scratch)
		if n == 0 {
			return nil
		}

		data := s.scratch[:n*recordChannels]
		for i, v := range data {
			data[i] = max(-1, min(maxSample, v))
		}

		s.fBuf.Data = data
		s.fBuf.SourceBitDepth = recordBitDepth

		if err := transforms.PCMScaleF32(s.fBuf, recordBitDepth); err != nil {
			return fmt.Errorf("recorder: scale %s: %w", s.path, err)
		}

		if err := s.enc.Write(s.fBuf.AsIntBuffer()); err != nil {
			return fmt.Errorf("recorder: write %s: %w", s.path, err)
		}

		s.frames += int64(n)
	}
}

// finish drains what is left, finalizes the header and closes the file.
// It returns the number of frames written.
func (s *session) finish() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.frames, errSessionClosed
	}

	s.closed = true

	err := s.drainLocked()

	if cerr := s.enc.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("recorder: finalize %s: %w", s.path, cerr)
	}

	if cerr := s.file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("recorder: close %s: %w", s.path, cerr)
	}

	return s.frames, err
}
