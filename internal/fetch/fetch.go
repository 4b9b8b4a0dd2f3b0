// Package fetch turns document references into local files the gate can
// open: file://path, plain paths, http(s):// URLs and s3://bucket/key.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/docgate/internal/filetype"
	"github.com/local/docgate/internal/storage"
)

// tempPrefix names downloaded inputs so stale ones can be swept.
const tempPrefix = "docgate-fetch-"

// ObjectDownloader is the part of storage.S3Client used for s3:// refs.
type ObjectDownloader interface {
	Download(ctx context.Context, bucket, key string, w io.WriterAt) (*storage.ObjectInfo, error)
}

type Fetcher struct {
	http    *http.Client
	s3      ObjectDownloader
	tempDir string
}

// New returns a Fetcher. httpClient nil uses a client with a 60s timeout;
// s3 nil makes s3:// refs fail; tempDir "" means os.TempDir().
func New(httpClient *http.Client, s3 ObjectDownloader, tempDir string) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{http: httpClient, s3: s3, tempDir: tempDir}
}

func noop() {}

// Resolve returns a local path for ref and a cleanup func that removes any
// temporary download. Local refs are returned as-is with a no-op cleanup.
// Downloads keep the source extension; when the source has none the
// extension is inferred from the content.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, func(), error) {
	// Strip optional #page fragment if present
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	if strings.TrimSpace(ref) == "" {
		return "", noop, fmt.Errorf("empty document reference")
	}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		return f.downloadS3(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return f.downloadHTTP(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		return strings.TrimPrefix(ref, "file://"), noop, nil
	default:
		// treat as filesystem path
		return ref, noop, nil
	}
}

func (f *Fetcher) downloadHTTP(ctx context.Context, rawURL string) (string, func(), error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", noop, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", noop, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return "", noop, fmt.Errorf("download %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", noop, fmt.Errorf("download %s: http %d", u.Redacted(), resp.StatusCode)
	}

	tmp, err := os.CreateTemp(f.tempDir, tempPrefix+"*")
	if err != nil {
		return "", noop, err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", noop, fmt.Errorf("download %s: %w", u.Redacted(), err)
	}
	tmp.Close()

	path, err := withExtension(tmp.Name(), filepath.Base(u.Path))
	if err != nil {
		os.Remove(tmp.Name())
		return "", noop, err
	}
	log.Debug().Str("url", u.Redacted()).Str("file", filepath.Base(path)).Msg("downloaded http input to temp")
	return path, removeFunc(path), nil
}

func (f *Fetcher) downloadS3(ctx context.Context, ref string) (string, func(), error) {
	if f.s3 == nil {
		return "", noop, fmt.Errorf("s3 input %s: no s3 client configured", ref)
	}
	bucket, key, err := storage.ParseURL(ref)
	if err != nil {
		return "", noop, err
	}

	tmp, err := os.CreateTemp(f.tempDir, tempPrefix+"*")
	if err != nil {
		return "", noop, err
	}
	info, err := f.s3.Download(ctx, bucket, key, tmp)
	tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())
		return "", noop, err
	}

	hint := filepath.Base(key)
	if _, kerr := filetype.KindFromPath(hint); kerr != nil && info != nil && info.OriginalName != "" {
		hint = info.OriginalName
	}
	path, err := withExtension(tmp.Name(), hint)
	if err != nil {
		os.Remove(tmp.Name())
		return "", noop, err
	}
	return path, removeFunc(path), nil
}

// withExtension renames tmp so it ends in the extension of nameHint, or in
// the sniffed extension when nameHint has no supported one. Unsupported
// content keeps the hint's extension so the gate rejects it by kind.
func withExtension(tmp, nameHint string) (string, error) {
	ext := strings.ToLower(filepath.Ext(nameHint))
	if _, err := filetype.KindFromPath(nameHint); err != nil {
		if info, serr := filetype.Sniff(tmp); serr == nil && info.Supported() {
			ext = info.Extension
		}
	}
	if ext == "" {
		return tmp, nil
	}
	dst := tmp + ext
	if err := os.Rename(tmp, dst); err != nil {
		return "", fmt.Errorf("rename download: %w", err)
	}
	return dst, nil
}

func removeFunc(path string) func() {
	return func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", path).Msg("failed to remove downloaded input")
		}
	}
}

// CleanupTemps removes downloads under dir (os.TempDir() when empty) older
// than maxAge that a crashed request never cleaned up.
func CleanupTemps(dir string, maxAge time.Duration) int {
	if dir == "" {
		dir = os.TempDir()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if os.Remove(filepath.Join(dir, e.Name())) == nil {
			removed++
		}
	}
	return removed
}
