package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/shammah/pkg/models"
)

type fakeDownloader struct {
	filesPresent     bool
	networkAvailable bool
	downloadErr      error
	progressCalls    int
}

func (d *fakeDownloader) FilesPresent(repoID string) bool { return d.filesPresent }
func (d *fakeDownloader) NetworkAvailable() bool          { return d.networkAvailable }
func (d *fakeDownloader) Download(ctx context.Context, repoID string, onProgress func(file string, i, n int)) error {
	if d.downloadErr != nil {
		return d.downloadErr
	}
	onProgress("weights.bin", 1, 1)
	d.progressCalls++
	return nil
}

type fakeModelLoader struct {
	failDevices map[Device]bool

	mu    sync.Mutex
	calls int
}

func (l *fakeModelLoader) Load(ctx context.Context, repoID string, device Device) (Handle, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.failDevices[device] {
		return nil, errors.New("device unavailable")
	}
	return "handle:" + string(device), nil
}

func (l *fakeModelLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func testCatalog() *Catalog {
	return &Catalog{entries: []catalogEntry{
		{Family: "qwen", Size: "1.5b", Provider: "huggingface", RepoID: "Qwen/Qwen2.5-1.5B-Instruct"},
	}}
}

func TestLoader_Run_UnsupportedCombination(t *testing.T) {
	loader := NewLoader(testCatalog(), &fakeDownloader{}, &fakeModelLoader{}, "", nil)
	loader.Run(context.Background(), "nonexistent", "1b", "nowhere")

	state := loader.Snapshot()
	if state.Phase != models.PhaseFailed {
		t.Fatalf("expected PhaseFailed, got %s", state.Phase)
	}
}

func TestLoader_Run_NoNetworkNoFiles(t *testing.T) {
	loader := NewLoader(testCatalog(), &fakeDownloader{filesPresent: false, networkAvailable: false}, &fakeModelLoader{}, "", nil)
	loader.Run(context.Background(), "qwen", "1.5b", "huggingface")

	state := loader.Snapshot()
	if state.Phase != models.PhaseNotAvailable {
		t.Fatalf("expected PhaseNotAvailable, got %s", state.Phase)
	}
}

func TestLoader_Run_DownloadsThenReady(t *testing.T) {
	dl := &fakeDownloader{filesPresent: false, networkAvailable: true}
	loader := NewLoader(testCatalog(), dl, &fakeModelLoader{}, "", nil)
	loader.Run(context.Background(), "qwen", "1.5b", "huggingface")

	state := loader.Snapshot()
	if !state.Ready() {
		t.Fatalf("expected Ready, got %s", state.String())
	}
	if dl.progressCalls != 1 {
		t.Fatalf("expected download to be invoked once, got %d", dl.progressCalls)
	}
	if loader.Handle() != "handle:accelerator_a" {
		t.Fatalf("expected the first device in fallback order to succeed, got %v", loader.Handle())
	}
}

func TestLoader_Run_DownloadFails(t *testing.T) {
	dl := &fakeDownloader{filesPresent: false, networkAvailable: true, downloadErr: errors.New("connection reset")}
	loader := NewLoader(testCatalog(), dl, &fakeModelLoader{}, "", nil)
	loader.Run(context.Background(), "qwen", "1.5b", "huggingface")

	state := loader.Snapshot()
	if state.Phase != models.PhaseFailed {
		t.Fatalf("expected PhaseFailed, got %s", state.Phase)
	}
}

func TestLoader_Run_DeviceFallback(t *testing.T) {
	dl := &fakeDownloader{filesPresent: true}
	ml := &fakeModelLoader{failDevices: map[Device]bool{DeviceAcceleratorA: true, DeviceAcceleratorB: true}}
	loader := NewLoader(testCatalog(), dl, ml, "", nil)
	loader.Run(context.Background(), "qwen", "1.5b", "huggingface")

	state := loader.Snapshot()
	if !state.Ready() {
		t.Fatalf("expected Ready after falling back to CPU, got %s", state.String())
	}
	if loader.Handle() != "handle:cpu" {
		t.Fatalf("expected CPU fallback handle, got %v", loader.Handle())
	}
}

func TestLoader_AdapterHotReload(t *testing.T) {
	dir := t.TempDir()
	dl := &fakeDownloader{filesPresent: true}
	ml := &fakeModelLoader{}
	loader := NewLoader(testCatalog(), dl, ml, dir, nil)
	loader.Run(context.Background(), "qwen", "1.5b", "huggingface")
	if !loader.Snapshot().Ready() {
		t.Fatalf("expected Ready, got %s", loader.Snapshot().String())
	}
	defer loader.Close()

	before := ml.callCount()
	if err := os.WriteFile(filepath.Join(dir, "adapter.bin"), []byte("weights"), 0o644); err != nil {
		t.Fatalf("write adapter file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ml.callCount() > before {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected a new adapter file to trigger modelLoader.Load for a hot reload")
}

func TestLoader_Run_AllDevicesFail(t *testing.T) {
	dl := &fakeDownloader{filesPresent: true}
	ml := &fakeModelLoader{failDevices: map[Device]bool{DeviceAcceleratorA: true, DeviceAcceleratorB: true, DeviceCPU: true}}
	loader := NewLoader(testCatalog(), dl, ml, "", nil)
	loader.Run(context.Background(), "qwen", "1.5b", "huggingface")

	state := loader.Snapshot()
	if state.Phase != models.PhaseFailed {
		t.Fatalf("expected PhaseFailed when every device fails, got %s", state.Phase)
	}
}
