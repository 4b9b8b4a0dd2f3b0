package fetch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/local/docgate/internal/storage"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	e, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(e)
}

func TestResolveLocal(t *testing.T) {
	f := New(nil, nil, t.TempDir())
	for ref, want := range map[string]string{
		"/data/scan.pdf":          "/data/scan.pdf",
		"file:///data/scan.pdf":   "/data/scan.pdf",
		"relative/photo.jpg#p=2":  "relative/photo.jpg",
	} {
		got, cleanup, err := f.Resolve(context.Background(), ref)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", ref, err)
		}
		cleanup()
		if got != want {
			t.Errorf("Resolve(%q) = %q, want %q", ref, got, want)
		}
	}
	if _, _, err := f.Resolve(context.Background(), "  "); err == nil {
		t.Error("empty ref should fail")
	}
}

func TestResolveHTTP(t *testing.T) {
	img := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/scans/page.png":
			w.Write(img)
		case "/download":
			w.Write(pdfBytes)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(srv.Client(), nil, dir)

	tests := []struct {
		ref     string
		wantExt string
		body    []byte
	}{
		{srv.URL + "/scans/page.png", ".png", img},
		{srv.URL + "/download?id=42", ".pdf", pdfBytes},
	}
	for _, tt := range tests {
		path, cleanup, err := f.Resolve(context.Background(), tt.ref)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", tt.ref, err)
		}
		if filepath.Ext(path) != tt.wantExt || !strings.HasPrefix(filepath.Base(path), tempPrefix) {
			t.Errorf("path = %s, want %s extension", path, tt.wantExt)
		}
		got, _ := os.ReadFile(path)
		if !bytes.Equal(got, tt.body) {
			t.Errorf("%s: content differs", tt.ref)
		}
		cleanup()
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("cleanup left %s", path)
		}
	}

	if _, _, err := f.Resolve(context.Background(), srv.URL+"/missing.pdf"); err == nil {
		t.Error("404 should fail")
	}
	if n := dirEntries(t, dir); n != 0 {
		t.Errorf("%d temp files left behind", n)
	}
}

type fakeS3 struct {
	body []byte
	info storage.ObjectInfo
	err  error
}

func (s fakeS3) Download(_ context.Context, bucket, key string, w io.WriterAt) (*storage.ObjectInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	if _, err := w.WriteAt(s.body, 0); err != nil {
		return nil, err
	}
	info := s.info
	info.Bucket, info.Key, info.Size = bucket, key, int64(len(s.body))
	return &info, nil
}

func TestResolveS3(t *testing.T) {
	dir := t.TempDir()

	f := New(nil, fakeS3{body: pdfBytes}, dir)
	path, cleanup, err := f.Resolve(context.Background(), "s3://scans/2024/bill.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(path) != ".pdf" {
		t.Errorf("path = %s", path)
	}
	cleanup()

	// Extension-less key falls back to the uploader's filename.
	f = New(nil, fakeS3{body: pngBytes(t), info: storage.ObjectInfo{OriginalName: "receipt.jpeg"}}, dir)
	path, cleanup, err = f.Resolve(context.Background(), "s3://scans/objects/7f3a")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(path) != ".jpeg" {
		t.Errorf("path = %s, want original name extension", path)
	}
	cleanup()

	f = New(nil, fakeS3{err: errors.New("access denied")}, dir)
	if _, _, err := f.Resolve(context.Background(), "s3://scans/a.pdf"); err == nil {
		t.Error("download error not returned")
	}
	if _, _, err := New(nil, nil, dir).Resolve(context.Background(), "s3://scans/a.pdf"); err == nil {
		t.Error("s3 ref without client should fail")
	}
	if n := dirEntries(t, dir); n != 0 {
		t.Errorf("%d temp files left behind", n)
	}
}

func TestCleanupTemps(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, tempPrefix+"old.pdf")
	fresh := filepath.Join(dir, tempPrefix+"fresh.pdf")
	other := filepath.Join(dir, "keep.pdf")
	for _, p := range []string{old, fresh, other} {
		os.WriteFile(p, pdfBytes, 0o644)
	}
	past := time.Now().Add(-3 * time.Hour)
	os.Chtimes(old, past, past)
	os.Chtimes(other, past, past)

	if n := CleanupTemps(dir, time.Hour); n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("unrelated file removed")
	}
}
