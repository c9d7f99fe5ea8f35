package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/haasonsaas/shammah/internal/bootstrap"
)

// huggingFaceDownloader fetches model files over HTTP from the Hugging Face
// hub, the one piece of C6's Downloader collaborator that is genuinely
// network plumbing rather than ML runtime binding (spec §4.6 step 4). It
// lists no manifest of its own; callers pass the file list they expect.
type huggingFaceDownloader struct {
	cacheDir string
	files    []string
	client   *http.Client
	token    string
}

func newHuggingFaceDownloader(cacheDir string, files []string) *huggingFaceDownloader {
	return &huggingFaceDownloader{
		cacheDir: cacheDir,
		files:    files,
		client:   &http.Client{Timeout: 5 * time.Minute},
		token:    os.Getenv("HF_TOKEN"),
	}
}

func (d *huggingFaceDownloader) repoDir(repoID string) string {
	return filepath.Join(d.cacheDir, filepath.FromSlash(repoID))
}

func (d *huggingFaceDownloader) FilesPresent(repoID string) bool {
	dir := d.repoDir(repoID)
	for _, f := range d.files {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			return false
		}
	}
	return len(d.files) > 0
}

func (d *huggingFaceDownloader) NetworkAvailable() bool {
	conn, err := (&net.Dialer{Timeout: 3 * time.Second}).Dial("tcp", "huggingface.co:443")
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (d *huggingFaceDownloader) Download(ctx context.Context, repoID string, onProgress func(file string, i, n int)) error {
	dir := d.repoDir(repoID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model cache dir: %w", err)
	}
	for i, f := range d.files {
		if onProgress != nil {
			onProgress(f, i+1, len(d.files))
		}
		url := fmt.Sprintf("https://huggingface.co/%s/resolve/main/%s", repoID, f)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if d.token != "" {
			req.Header.Set("Authorization", "Bearer "+d.token)
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return fmt.Errorf("download %s: %w", f, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("download %s: unexpected status %d", f, resp.StatusCode)
		}
		out, err := os.Create(filepath.Join(dir, f))
		if err != nil {
			resp.Body.Close()
			return fmt.Errorf("create %s: %w", f, err)
		}
		_, copyErr := io.Copy(out, resp.Body)
		resp.Body.Close()
		out.Close()
		if copyErr != nil {
			return fmt.Errorf("write %s: %w", f, copyErr)
		}
	}
	return nil
}

// unavailableModelLoader is the ModelLoader collaborator when no local
// inference runtime is linked into the binary. Loading an actual model
// handle onto an accelerator or CPU requires a runtime binding outside
// anything this module's dependency stack provides — the core's own
// responsibility ends at defining the interface (spec §4.6 step 5).
type unavailableModelLoader struct {
	log *slog.Logger
}

func (u *unavailableModelLoader) Load(ctx context.Context, repoID string, device bootstrap.Device) (bootstrap.Handle, error) {
	u.log.Warn("no local inference runtime linked, cannot load model", "repo_id", repoID, "device", device)
	return nil, fmt.Errorf("no inference runtime available for device %s", device)
}

// unavailableDecoder backs the generator when the bootstrap loader never
// reaches Ready; the router will simply never route to it.
type unavailableDecoder struct{}

func (unavailableDecoder) Decode(ctx context.Context, prompt string, maxNewTokens int, tokenCB func(string)) (string, int, int, error) {
	return "", 0, 0, fmt.Errorf("local generator not available")
}
