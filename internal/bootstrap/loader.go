// Package bootstrap implements the long-lived loader (C6) that owns the
// local generator's model handle and advances it through the startup
// state machine in spec §4.6.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/haasonsaas/shammah/pkg/models"
)

// Device is a candidate execution target, tried in fallback order.
type Device string

const (
	DeviceAcceleratorA Device = "accelerator_a"
	DeviceAcceleratorB Device = "accelerator_b"
	DeviceCPU          Device = "cpu"
)

// deviceFallbackOrder is spec §4.6 step 5's device selection order.
var deviceFallbackOrder = []Device{DeviceAcceleratorA, DeviceAcceleratorB, DeviceCPU}

// Handle is the opaque loaded-model handle; the core never inspects it.
type Handle interface{}

// Downloader fetches model files one at a time, reporting progress.
type Downloader interface {
	Download(ctx context.Context, repoID string, onProgress func(file string, i, n int)) error
	FilesPresent(repoID string) bool
	NetworkAvailable() bool
}

// ModelLoader constructs a Handle for repoID on device, running a
// test generation to confirm the device actually works.
type ModelLoader interface {
	Load(ctx context.Context, repoID string, device Device) (Handle, error)
}

// Loader owns the generator state: exclusive writer, many non-blocking
// readers via Snapshot (spec §4.6).
type Loader struct {
	mu      sync.RWMutex
	state   models.GeneratorState
	handle  Handle
	catalog *Catalog

	downloader  Downloader
	modelLoader ModelLoader

	repoID         string
	device         Device
	adaptersDir    string
	currentAdapter time.Time
	watcher        *fsnotify.Watcher
	log            *slog.Logger
}

// NewLoader builds a Loader in the Initializing phase.
func NewLoader(catalog *Catalog, downloader Downloader, modelLoader ModelLoader, adaptersDir string, log *slog.Logger) *Loader {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		state:       models.GeneratorState{Phase: models.PhaseInitializing},
		catalog:     catalog,
		downloader:  downloader,
		modelLoader: modelLoader,
		adaptersDir: adaptersDir,
		log:         log,
	}
}

// Snapshot returns the current state without blocking on the loader's
// run loop.
func (l *Loader) Snapshot() models.GeneratorState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Handle returns the loaded model handle, valid only once Snapshot().Ready().
func (l *Loader) Handle() Handle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.handle
}

func (l *Loader) setState(s models.GeneratorState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run drives the state machine to completion (spec §4.6 steps 1-6). It
// returns once the generator is Ready, Failed, or NotAvailable; it does
// not loop.
func (l *Loader) Run(ctx context.Context, family, size, provider string) {
	l.setState(models.GeneratorState{Phase: models.PhaseInitializing})

	repoID, ok := l.catalog.Resolve(family, size, provider)
	if !ok {
		l.setState(models.GeneratorState{Phase: models.PhaseFailed, Error: fmt.Sprintf("unsupported combination: %s/%s/%s", family, size, provider)})
		return
	}

	if !l.downloader.FilesPresent(repoID) && !l.downloader.NetworkAvailable() {
		l.setState(models.GeneratorState{Phase: models.PhaseNotAvailable})
		return
	}

	if !l.downloader.FilesPresent(repoID) {
		l.setState(models.GeneratorState{Phase: models.PhaseDownloading, DownloadName: repoID})
		err := l.downloader.Download(ctx, repoID, func(file string, i, n int) {
			l.setState(models.GeneratorState{
				Phase: models.PhaseDownloading, DownloadName: repoID,
				DownloadFile: file, DownloadI: i, DownloadN: n,
			})
		})
		if err != nil {
			l.setState(models.GeneratorState{Phase: models.PhaseFailed, Error: fmt.Sprintf("download failed: %v", err)})
			return
		}
	}

	l.setState(models.GeneratorState{Phase: models.PhaseLoading, ModelName: repoID})
	var lastErr error
	for _, device := range deviceFallbackOrder {
		handle, err := l.modelLoader.Load(ctx, repoID, device)
		if err == nil {
			l.mu.Lock()
			l.handle = handle
			l.repoID = repoID
			l.device = device
			l.state = models.GeneratorState{Phase: models.PhaseReady, ModelName: repoID}
			l.mu.Unlock()
			l.startAdapterWatch(ctx)
			return
		}
		l.log.Warn("device load failed, trying next", "device", device, "error", err)
		lastErr = err
	}
	l.setState(models.GeneratorState{Phase: models.PhaseFailed, Error: fmt.Sprintf("no device could load model: %v", lastErr)})
}

// startAdapterWatch watches adaptersDir for new files and reloads the
// model handle in place without interrupting in-flight generations (spec
// §4.5's "Adapter hot-reload" — new calls observe the swap under l.mu,
// current decodes finish on the handle they already hold since Handle()
// snapshots by value semantics at call time).
func (l *Loader) startAdapterWatch(ctx context.Context) {
	if l.adaptersDir == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.log.Warn("adapter watcher unavailable", "error", err)
		return
	}
	if err := watcher.Add(l.adaptersDir); err != nil {
		l.log.Warn("failed to watch adapters dir", "dir", l.adaptersDir, "error", err)
		watcher.Close()
		return
	}
	l.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					l.log.Info("new adapter detected, reloading", "path", event.Name)
					l.mu.RLock()
					repoID, device := l.repoID, l.device
					l.mu.RUnlock()
					handle, err := l.modelLoader.Load(ctx, repoID, device)
					if err != nil {
						l.log.Warn("adapter reload failed, keeping previous handle", "path", event.Name, "error", err)
						continue
					}
					l.mu.Lock()
					l.handle = handle
					l.currentAdapter = time.Now()
					l.mu.Unlock()
					l.log.Info("adapter reload complete", "path", event.Name, "device", device)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.log.Warn("adapter watcher error", "error", err)
			}
		}
	}()
}

// Close releases the adapter watcher, if any.
func (l *Loader) Close() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
