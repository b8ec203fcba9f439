package recorder

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/onstage-dsp/internal/logging"
)

// Registry tracks the live recorders of one host so that recorders in sync
// mode can be started and stopped together. It also owns the default
// recordings folder used by recorders without a folder of their own.
//
// The zero value is not usable; call [NewRegistry].
type Registry struct {
	log logrus.FieldLogger

	mu        sync.Mutex
	recorders []*Recorder
	closed    bool

	folderMu      sync.RWMutex
	defaultFolder string

	noSync atomic.Bool
}

// NewRegistry returns an empty registry. A nil logger discards output.
func NewRegistry(log logrus.FieldLogger) *Registry {
	return &Registry{log: logging.OrDiscard(log)}
}

// SetDefaultSyncMode sets the sync mode new recorders start with.
func (g *Registry) SetDefaultSyncMode(on bool) { g.noSync.Store(!on) }

// DefaultSyncMode reports the sync mode new recorders start with. It is
// true unless changed.
func (g *Registry) DefaultSyncMode() bool { return !g.noSync.Load() }

// Register adds r. It is a no-op once the registry is closed or when r is
// already registered.
func (g *Registry) Register(r *Recorder) {
	if r == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || slices.Contains(g.recorders, r) {
		return
	}

	g.recorders = append(g.recorders, r)
}

// Unregister removes r. It is a no-op once the registry is closed.
func (g *Registry) Unregister(r *Recorder) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}

	g.recorders = slices.DeleteFunc(g.recorders, func(x *Recorder) bool { return x == r })
}

// Len returns the number of registered recorders.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.recorders)
}

// StartAllSynced starts every registered recorder that is in sync mode and
// not already recording. It returns how many started.
func (g *Registry) StartAllSynced() int {
	started := 0

	for _, r := range g.snapshot() {
		if !r.SyncMode() || r.IsRecording() {
			continue
		}

		if r.StartRecording() {
			started++
		}
	}

	g.log.WithFields(logrus.Fields{
		"function": "StartAllSynced",
		"started":  started,
	}).Info("Started synced recorders")

	return started
}

// StopAllSynced stops every registered recorder that is in sync mode and
// recording. It returns how many stopped.
func (g *Registry) StopAllSynced() int {
	stopped := 0

	for _, r := range g.snapshot() {
		if !r.SyncMode() || !r.IsRecording() {
			continue
		}

		r.StopRecording()
		stopped++
	}

	g.log.WithFields(logrus.Fields{
		"function": "StopAllSynced",
		"stopped":  stopped,
	}).Info("Stopped synced recorders")

	return stopped
}

// Close drops all recorders and ignores later registrations. Recorders are
// not stopped; the host closes them individually.
func (g *Registry) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	g.recorders = nil
}

// snapshot copies the recorder list so recorder methods run without the
// registry lock held.
func (g *Registry) snapshot() []*Recorder {
	g.mu.Lock()
	defer g.mu.Unlock()

	return slices.Clone(g.recorders)
}

// SetDefaultFolder sets the folder used by recorders without their own.
// A "~" prefix is expanded.
func (g *Registry) SetDefaultFolder(folder string) {
	if expanded, err := homedir.Expand(folder); err == nil {
		folder = expanded
	}

	g.folderMu.Lock()
	g.defaultFolder = folder
	g.folderMu.Unlock()
}

// DefaultFolder returns the folder set by SetDefaultFolder, possibly empty.
func (g *Registry) DefaultFolder() string {
	g.folderMu.RLock()
	defer g.folderMu.RUnlock()

	return g.defaultFolder
}

// EffectiveDefaultFolder returns the configured default folder when it
// exists, and otherwise <home>/Documents/OnStage/recordings, creating it.
func (g *Registry) EffectiveDefaultFolder() string {
	if folder := g.DefaultFolder(); folder != "" {
		if info, err := os.Stat(folder); err == nil && info.IsDir() {
			return folder
		}
	}

	home, err := homedir.Dir()
	if err != nil {
		home = os.TempDir()
	}

	folder := filepath.Join(home, "Documents", "OnStage", "recordings")
	if err := os.MkdirAll(folder, 0o755); err != nil {
		g.log.WithFields(logrus.Fields{
			"function": "EffectiveDefaultFolder",
			"folder":   folder,
			"error":    err.Error(),
		}).Warn("Failed to create default recordings folder")
	}

	return folder
}
