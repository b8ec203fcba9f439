package main

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mitchellh/go-homedir"

	"github.com/cwbudde/onstage-dsp/internal/config"
	"github.com/cwbudde/onstage-dsp/internal/logging"
	"github.com/cwbudde/onstage-dsp/recorder"
)

const testRate = 44100

// isolate points HOME and the working directory at empty temp dirs so no
// user config is picked up, and returns a recordings folder.
func isolate(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Chdir(t.TempDir())

	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	return t.TempDir()
}

// writeSine writes a 16-bit WAV of a sine in every channel.
func writeSine(t *testing.T, path string, channels int, freq, seconds float64) int {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	frames := int(seconds * testRate)
	data := make([]int, frames*channels)

	for i := range frames {
		v := int(math.Round(0.5 * 32767 * math.Sin(2*math.Pi*freq*float64(i)/testRate)))
		for ch := range channels {
			data[i*channels+ch] = v
		}
	}

	enc := wav.NewEncoder(f, testRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: testRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}

	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	return frames
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()

	return out.String(), err
}

func TestReadClipMonoAndScale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mono.wav")
	frames := writeSine(t, path, 1, 1000, 0.1)

	c, err := readClip(path)
	if err != nil {
		t.Fatalf("readClip: %v", err)
	}

	if c.sampleRate != testRate || c.frames() != frames {
		t.Fatalf("clip = %d Hz, %d frames; want %d Hz, %d frames", c.sampleRate, c.frames(), testRate, frames)
	}

	peak := 0.0
	for i := range frames {
		if c.channels[0][i] != c.channels[1][i] {
			t.Fatalf("frame %d not duplicated", i)
		}

		peak = math.Max(peak, math.Abs(c.channels[0][i]))
	}

	if math.Abs(peak-0.5) > 0.01 {
		t.Fatalf("peak = %v, want about 0.5", peak)
	}

	if _, err := readClip(filepath.Join(dir, "missing.wav")); err == nil {
		t.Fatal("readClip(missing) succeeded")
	}
}

func TestClipBlocks(t *testing.T) {
	c := &clip{sampleRate: testRate}
	c.channels[0] = []float64{1, 2, 3, 4, 5}
	c.channels[1] = []float64{-1, -2, -3, -4, -5}

	var sizes []int

	c.blocks(2, func(start int, block [][]float64) bool {
		sizes = append(sizes, len(block[0]))

		if block[0][0] != c.channels[0][start] || block[1][0] != c.channels[1][start] {
			t.Fatalf("block at %d starts with %v/%v", start, block[0][0], block[1][0])
		}

		block[0][0] = 99

		return true
	})

	if len(sizes) != 3 || sizes[0] != 2 || sizes[2] != 1 {
		t.Fatalf("block sizes = %v, want [2 2 1]", sizes)
	}

	if c.channels[0][0] != 1 {
		t.Fatal("blocks modified the clip")
	}
}

func TestRenderCommand(t *testing.T) {
	folder := isolate(t)
	in := filepath.Join(t.TempDir(), "guitar.wav")
	frames := writeSine(t, in, 2, 220, 0.5)

	out, err := run(t, "render", "--recordings", folder, in)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	path := strings.TrimSpace(out)
	if filepath.Dir(path) != folder || !strings.HasPrefix(filepath.Base(path), "guitar_") {
		t.Fatalf("output path = %q, want guitar_*.wav in %q", path, folder)
	}

	c, err := readClip(path)
	if err != nil {
		t.Fatalf("readClip(output): %v", err)
	}

	if c.frames() != frames {
		t.Fatalf("output has %d frames, want %d", c.frames(), frames)
	}
}

func TestRenderPrintsLoudness(t *testing.T) {
	folder := isolate(t)
	in := filepath.Join(t.TempDir(), "tone.wav")
	writeSine(t, in, 2, 1000, 1)

	var stdout, stderr bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs([]string{"render", "--recordings", folder, in})
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("render: %v", err)
	}

	if got := stderr.String(); !strings.Contains(got, "LUFS") || !strings.Contains(got, "peak -6.0 dBFS") {
		t.Fatalf("summary = %q, want loudness and a -6.0 dBFS peak", got)
	}
}

func TestRenderWithPreset(t *testing.T) {
	folder := isolate(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "voice.wav")
	writeSine(t, in, 2, 440, 0.25)

	preset := filepath.Join(dir, "chain.json")
	body := `{"nodes":[{"id":"g","type":"Gate"},{"id":"s","type":"Saturation","state":{"mode":"tape","drive":0.3}},{"id":"x","type":"Flanger"}]}`

	if err := os.WriteFile(preset, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "render", "--recordings", folder, "--chain", preset, "--name", "take", in)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if !strings.HasPrefix(filepath.Base(strings.TrimSpace(out)), "take_") {
		t.Fatalf("output = %q, want take_*.wav", out)
	}
}

func TestRenderErrors(t *testing.T) {
	folder := isolate(t)

	if _, err := run(t, "render", "--recordings", folder, filepath.Join(folder, "missing.wav")); err == nil {
		t.Fatal("render of a missing file succeeded")
	}

	if _, err := run(t, "render"); err == nil {
		t.Fatal("render without arguments succeeded")
	}

	if _, err := run(t, "--log-level", "loud", "info"); err == nil {
		t.Fatal("invalid log level accepted")
	}
}

func TestTuneCommand(t *testing.T) {
	isolate(t)
	in := filepath.Join(t.TempDir(), "a.wav")
	writeSine(t, in, 1, 440, 1)

	for _, strategy := range []string{"hps", "yin"} {
		t.Run(strategy, func(t *testing.T) {
			out, err := run(t, "tune", "--strategy", strategy, "--guitar", in)
			if err != nil {
				t.Fatalf("tune: %v", err)
			}

			if !strings.Contains(out, "A4") || !strings.Contains(out, "string A2") {
				t.Fatalf("output does not report A4 on the A string:\n%s", out)
			}
		})
	}

	if _, err := run(t, "tune", "--strategy", "zero-crossing", in); err == nil {
		t.Fatal("unknown strategy accepted")
	}
}

func TestRecordCommandUnpaced(t *testing.T) {
	folder := isolate(t)
	in := filepath.Join(t.TempDir(), "drums.wav")
	frames := writeSine(t, in, 2, 100, 0.5)

	out, err := run(t, "record", "--recordings", folder, "--pace", "0", "--quiet", in)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 || !strings.HasPrefix(filepath.Base(lines[0]), "Untitled_") {
		t.Fatalf("record output = %q", out)
	}

	c, err := readClip(lines[0])
	if err != nil {
		t.Fatalf("readClip: %v", err)
	}

	if c.frames() != frames {
		t.Fatalf("recorded %d frames, want %d", c.frames(), frames)
	}
}

func TestRecordCommandPacedPrintsMeters(t *testing.T) {
	folder := isolate(t)
	in := filepath.Join(t.TempDir(), "bass.wav")
	writeSine(t, in, 2, 55, 0.3)

	out, err := run(t, "record", "--recordings", folder, "--pace", "2", in)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if !strings.Contains(out, "dB") {
		t.Fatalf("no meter lines in output:\n%s", out)
	}
}

func TestRecordCommandSyncModeOff(t *testing.T) {
	folder := isolate(t)
	in := filepath.Join(t.TempDir(), "vocals.wav")
	frames := writeSine(t, in, 2, 220, 0.25)

	if err := os.WriteFile(config.DefaultFileName, []byte("sync_mode: false\nrecorder_name: Solo\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "record", "--recordings", folder, "--pace", "0", "--quiet", in)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 || !strings.HasPrefix(filepath.Base(lines[0]), "Solo_") {
		t.Fatalf("record output = %q", out)
	}

	c, err := readClip(lines[0])
	if err != nil {
		t.Fatalf("readClip: %v", err)
	}

	if c.frames() != frames {
		t.Fatalf("recorded %d frames, want %d", c.frames(), frames)
	}
}

func TestAppRecordersFollowSyncMode(t *testing.T) {
	off := false

	tests := []struct {
		name string
		sync *bool
		want bool
	}{
		{"unset", nil, true},
		{"off", &off, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.SyncMode = tt.sync

			a := &app{cfg: cfg, log: logging.Discard()}
			reg := a.recorders()

			r := recorder.New(reg)
			t.Cleanup(func() { _ = r.Close() })

			if r.SyncMode() != tt.want {
				t.Fatalf("SyncMode() = %v, want %v", r.SyncMode(), tt.want)
			}
		})
	}
}

func TestAppSpecSampleRate(t *testing.T) {
	cfg := config.Default()
	cfg.SampleRate = 32000
	a := &app{cfg: cfg, log: logging.Discard()}

	tests := []struct {
		clipRate int
		want     float64
	}{
		{44100, 44100},
		{0, 32000},
		{-1, 32000},
	}

	for _, tt := range tests {
		if got := a.spec(tt.clipRate).SampleRate; got != tt.want {
			t.Fatalf("spec(%d).SampleRate = %v, want %v", tt.clipRate, got, tt.want)
		}
	}
}

func TestInfoCommand(t *testing.T) {
	folder := isolate(t)

	out, err := run(t, "info", "--recordings", folder, "--block-size", "128")
	if err != nil {
		t.Fatalf("info: %v", err)
	}

	for _, want := range []string{"block_size", "128", folder, "Recorder", "Saturation"} {
		if !strings.Contains(out, want) {
			t.Fatalf("info output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "info", "--block-size", "-4"); err == nil {
		t.Fatal("negative block size accepted")
	}
}
