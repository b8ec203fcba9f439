package recorder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"

	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/dsp/effect"
	"github.com/cwbudde/onstage-dsp/internal/testutil"
)

func TestRegistryRegisterUnregister(t *testing.T) {
	reg := NewRegistry(nil)
	a := newTestRecorder(t, reg)
	b := newTestRecorder(t, reg)

	if reg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", reg.Len())
	}

	reg.Register(a)
	reg.Register(nil)

	if reg.Len() != 2 {
		t.Fatalf("Len() after duplicate = %d, want 2", reg.Len())
	}

	reg.Unregister(a)

	if reg.Len() != 1 {
		t.Fatalf("Len() after Unregister = %d, want 1", reg.Len())
	}

	reg.Close()
	reg.Register(a)
	reg.Unregister(b)

	if reg.Len() != 0 {
		t.Fatalf("Len() after Close = %d, want 0", reg.Len())
	}
}

func TestRegistrySyncedStartStop(t *testing.T) {
	reg := NewRegistry(nil)

	synced := newTestRecorder(t, reg)
	loner := newTestRecorder(t, reg)
	busy := newTestRecorder(t, reg)

	loner.SetSyncMode(false)

	if err := busy.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	busyFile := busy.LastRecordingFile()

	if got := reg.StartAllSynced(); got != 1 {
		t.Fatalf("StartAllSynced() = %d, want 1", got)
	}

	if !synced.IsRecording() || loner.IsRecording() || !busy.IsRecording() {
		t.Fatalf("recording = (%v, %v, %v), want (true, false, true)",
			synced.IsRecording(), loner.IsRecording(), busy.IsRecording())
	}

	if busy.LastRecordingFile() != busyFile {
		t.Fatal("StartAllSynced restarted a running recorder")
	}

	block := testutil.StereoSine(440, testSampleRate, 0.5, testBlockSize)
	for _, r := range []*Recorder{synced, loner, busy} {
		r.Process(block)
	}

	if err := loner.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := reg.StopAllSynced(); got != 2 {
		t.Fatalf("StopAllSynced() = %d, want 2", got)
	}

	if synced.IsRecording() || !loner.IsRecording() || busy.IsRecording() {
		t.Fatalf("recording = (%v, %v, %v), want (false, true, false)",
			synced.IsRecording(), loner.IsRecording(), busy.IsRecording())
	}

	if got := reg.StopAllSynced(); got != 0 {
		t.Fatalf("second StopAllSynced() = %d, want 0", got)
	}

	if data := readWAV(t, synced.LastRecordingFile()); len(data) != 2*testBlockSize {
		t.Fatalf("synced file has %d frames, want %d", len(data)/2, testBlockSize)
	}
}

func TestRegistryDefaultSyncMode(t *testing.T) {
	reg := NewRegistry(nil)

	if !reg.DefaultSyncMode() {
		t.Fatal("DefaultSyncMode() = false on a new registry")
	}

	reg.SetDefaultSyncMode(false)
	r := newTestRecorder(t, reg)

	if r.SyncMode() {
		t.Fatal("recorder created after SetDefaultSyncMode(false) is synced")
	}

	r.LoadState(effect.State{"name": "Take"})

	if r.SyncMode() {
		t.Fatal("LoadState without syncMode enabled sync")
	}

	if got := reg.StartAllSynced(); got != 0 || r.IsRecording() {
		t.Fatalf("StartAllSynced() = %d, recording %v; want 0, false", got, r.IsRecording())
	}

	reg.SetDefaultSyncMode(true)

	if !newTestRecorder(t, reg).SyncMode() {
		t.Fatal("recorder created after SetDefaultSyncMode(true) is not synced")
	}
}

func TestRegistryDefaultFolder(t *testing.T) {
	reg := NewRegistry(nil)
	dir := filepath.Join(t.TempDir(), "takes")

	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	reg.SetDefaultFolder(dir)

	if reg.DefaultFolder() != dir || reg.EffectiveDefaultFolder() != dir {
		t.Fatalf("folders = (%q, %q), want %q", reg.DefaultFolder(), reg.EffectiveDefaultFolder(), dir)
	}

	r := New(reg, core.WithSampleRate(testSampleRate))
	t.Cleanup(func() { _ = r.Close() })

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r.StopRecording()

	if got := filepath.Dir(r.LastRecordingFile()); got != dir {
		t.Fatalf("recording folder = %q, want %q", got, dir)
	}
}

func TestRegistryEffectiveDefaultFolderFallback(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	reg := NewRegistry(nil)
	reg.SetDefaultFolder(filepath.Join(home, "missing"))

	want := filepath.Join(home, "Documents", "OnStage", "recordings")
	if got := reg.EffectiveDefaultFolder(); got != want {
		t.Fatalf("EffectiveDefaultFolder() = %q, want %q", got, want)
	}

	if info, err := os.Stat(want); err != nil || !info.IsDir() {
		t.Fatalf("fallback folder not created: %v", err)
	}
}
