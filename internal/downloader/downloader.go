// Package downloader implements spec.md §4.2's content-addressed,
// resumable, integrity-verified fetcher.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/yungbote/neurod/internal/platform/apierr"
	"github.com/yungbote/neurod/internal/storage"
)

const chunkSize = 64 * 1024

// ProgressReporter receives the downloader's progress-extra keys, grounded
// on hivemind's job_put_extra('download-size'/'download-progress', ...).
type ProgressReporter interface {
	Report(key string, value any)
}

type noopReporter struct{}

func (noopReporter) Report(string, any) {}

// Downloader fetches (url, expectedSHA256) pairs into the storage layout's
// downloads/ directory. The per-hash lock (spec.md §4.2 step 2) is a
// non-blocking try-lock: a caller that finds the hash already locked fails
// immediately with DownloadCollision rather than waiting on the transfer in
// progress, matching the spec's "the caller may treat this as retryable".
type Downloader struct {
	layout *storage.Layout
	client *http.Client

	mu     sync.Mutex
	locked map[string]struct{}
}

func New(layout *storage.Layout, client *http.Client) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{layout: layout, client: client, locked: make(map[string]struct{})}
}

// tryLock acquires the per-hash lock, reporting false if it is already
// held.
func (d *Downloader) tryLock(hash string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, held := d.locked[hash]; held {
		return false
	}
	d.locked[hash] = struct{}{}
	return true
}

func (d *Downloader) unlock(hash string) {
	d.mu.Lock()
	delete(d.locked, hash)
	d.mu.Unlock()
}

// Get returns the local path for (url, expectedSHA256), downloading it if
// not already present. spec.md §4.2 step 2: acquire the per-hash download
// lock, failing with DownloadCollision if already held.
func (d *Downloader) Get(ctx context.Context, url, expectedSHA256 string, report ProgressReporter) (string, error) {
	if report == nil {
		report = noopReporter{}
	}
	finalPath := d.layout.DownloadPath(expectedSHA256)
	if exists(finalPath) {
		return finalPath, nil
	}

	if !d.tryLock(expectedSHA256) {
		return "", apierr.New(apierr.DownloadCollision, fmt.Sprintf("download already in progress for %s", expectedSHA256), nil)
	}
	defer d.unlock(expectedSHA256)

	return d.download(ctx, url, expectedSHA256, report)
}

func (d *Downloader) download(ctx context.Context, url, expectedSHA256 string, report ProgressReporter) (string, error) {
	finalPath := d.layout.DownloadPath(expectedSHA256)
	if exists(finalPath) {
		return finalPath, nil
	}
	partPath := d.layout.DownloadPartPath(expectedSHA256)

	var startOffset int64
	if fi, err := os.Stat(partPath); err == nil {
		if supportsRange(ctx, d.client, url) {
			startOffset = fi.Size()
		} else {
			_ = os.Remove(partPath)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", apierr.Wrap(apierr.ConnectionError, err)
	}
	if startOffset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startOffset))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", apierr.Wrap(apierr.ConnectionError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", apierr.New(apierr.RemoteFailed, fmt.Sprintf("GET %s: status %d", url, resp.StatusCode), nil)
	}
	if resp.ContentLength > 0 {
		report.Report("download-size", startOffset+resp.ContentLength)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if startOffset > 0 && resp.StatusCode == http.StatusPartialContent {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
		startOffset = 0
	}
	f, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return "", apierr.Wrap(apierr.PackageStorageError, err)
	}

	hasher := sha256.New()
	if startOffset > 0 {
		if existing, err := os.ReadFile(partPath); err == nil {
			hasher.Write(existing)
		}
	}

	written := startOffset
	buf := make([]byte, chunkSize)
	for {
		select {
		case <-ctx.Done():
			f.Close()
			return "", apierr.New(apierr.JobInterrupted, "download interrupted", nil)
		default:
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				return "", apierr.Wrap(apierr.PackageStorageError, werr)
			}
			hasher.Write(buf[:n])
			written += int64(n)
			report.Report("download-progress", written)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			return "", apierr.Wrap(apierr.ConnectionError, readErr)
		}
	}
	f.Close()

	sum := hex.EncodeToString(hasher.Sum(nil))
	if sum != expectedSHA256 {
		_ = os.Remove(partPath)
		return "", apierr.New(apierr.HashMismatch, "Hash Mismatch", map[string]any{"expected": expectedSHA256, "actual": sum})
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		return "", apierr.Wrap(apierr.PackageStorageError, err)
	}
	return finalPath, nil
}

func supportsRange(ctx context.Context, client *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.Header.Get("Accept-Ranges") == "bytes"
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
