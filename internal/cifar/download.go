package cifar

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"k8s.io/klog/v2"
)

// ArchiveURL is the canonical location of the CIFAR-10 binary archive.
const ArchiveURL = "https://www.cs.toronto.edu/~kriz/cifar-10-binary.tar.gz"

// DefaultMaxRetries bounds download attempts after the first failure.
const DefaultMaxRetries = 4

// DownloadOptions configures EnsureDownloaded.
type DownloadOptions struct {
	URL        string
	Client     *http.Client
	MaxRetries uint64

	// NewBackOff overrides the retry policy. Defaults to exponential backoff.
	NewBackOff func() backoff.BackOff
}

func (o DownloadOptions) withDefaults() DownloadOptions {
	if o.URL == "" {
		o.URL = ArchiveURL
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 30 * time.Minute}
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.NewBackOff == nil {
		o.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxElapsedTime = 10 * time.Minute
			return b
		}
	}
	return o
}

// EnsureDownloaded fetches and extracts the archive into root unless the
// training split is already present. Only the binary batch files are
// extracted.
func EnsureDownloaded(ctx context.Context, root string, opts DownloadOptions) error {
	if Present(root, Train) {
		return nil
	}
	opts = opts.withDefaults()

	if err := os.MkdirAll(root, 0o750); err != nil {
		return fmt.Errorf("cifar: create %s: %w", root, err)
	}

	attempt := 0
	operation := func() error {
		attempt++
		klog.InfoS("Downloading CIFAR-10", "url", opts.URL, "attempt", attempt)
		return fetch(ctx, opts.Client, opts.URL, root)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(opts.NewBackOff(), opts.MaxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		klog.ErrorS(err, "CIFAR-10 download failed, retrying", "wait", wait)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return fmt.Errorf("cifar: download %s: %w", opts.URL, err)
	}

	if !Present(root, Train) {
		return fmt.Errorf("%w: archive did not contain the training split", ErrDatasetMissing)
	}
	klog.InfoS("CIFAR-10 ready", "dir", filepath.Join(root, BatchDir))
	return nil
}

func fetch(ctx context.Context, client *http.Client, url, root string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		// Client errors will not go away by retrying.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	return extract(resp.Body, root)
}

// extract unpacks the batch files of a gzip-compressed tar stream into root.
// Entries outside BatchDir and non-regular entries are skipped.
func extract(r io.Reader, root string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Clean(hdr.Name)
		if path.Dir(name) != BatchDir || !strings.HasSuffix(name, ".bin") {
			continue
		}
		if err := writeFile(filepath.Join(root, filepath.FromSlash(name)), tr); err != nil {
			return err
		}
	}
}

// writeFile copies r to dst via a temporary file so a partial download never
// looks like a complete batch.
func writeFile(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
