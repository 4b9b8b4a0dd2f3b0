package filetype

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/local/docgate/internal/docerr"
)

func TestKindFromPath(t *testing.T) {
	tests := []struct {
		path string
		kind Kind
	}{
		{"scan.pdf", KindPDF},
		{"SCAN.PDF", KindPDF},
		{"photo.jpg", KindRasterImage},
		{"photo.JPEG", KindRasterImage},
		{"page.png", KindRasterImage},
		{"page.tiff", KindRasterImage},
		{"page.tif", KindRasterImage},
		{"page.bmp", KindRasterImage},
		{"page.webp", KindRasterImage},
		{"/a/b.c/page.gif", KindRasterImage},
	}
	for _, tt := range tests {
		k, err := KindFromPath(tt.path)
		if err != nil {
			t.Errorf("KindFromPath(%q): %v", tt.path, err)
			continue
		}
		if k != tt.kind {
			t.Errorf("KindFromPath(%q) = %v, want %v", tt.path, k, tt.kind)
		}
	}

	for _, bad := range []string{"notes.txt", "report.docx", "noext", "archive.pdf.zip"} {
		_, err := KindFromPath(bad)
		var unsupported *docerr.UnsupportedInputError
		if !errors.As(err, &unsupported) {
			t.Errorf("KindFromPath(%q) error = %v, want UnsupportedInputError", bad, err)
		}
	}
}

func TestSniff(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	imgPath := filepath.Join(dir, "upload")
	os.WriteFile(imgPath, buf.Bytes(), 0o644)

	info, err := Sniff(imgPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Kind != KindRasterImage || info.MIMEType != "image/png" {
		t.Fatalf("Sniff png = %+v", info)
	}
	if got := EnsureExtension("upload", info); got != "upload.png" {
		t.Errorf("EnsureExtension = %q, want upload.png", got)
	}

	pdfPath := filepath.Join(dir, "download")
	os.WriteFile(pdfPath, []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"), 0o644)
	pdf, err := Sniff(pdfPath)
	if err != nil {
		t.Fatal(err)
	}
	if pdf.Kind != KindPDF {
		t.Errorf("Sniff pdf kind = %v, want pdf", pdf.Kind)
	}

	txtPath := filepath.Join(dir, "notes")
	os.WriteFile(txtPath, []byte("just some text"), 0o644)
	txt, err := Sniff(txtPath)
	if err != nil {
		t.Fatal(err)
	}
	if txt.Supported() {
		t.Errorf("plain text should not be supported, got %+v", txt)
	}
	if got := EnsureExtension("notes.txt", txt); got != "notes.txt" {
		t.Errorf("EnsureExtension kept unsupported name wrong: %q", got)
	}
	if got := EnsureExtension("scan.pdf", txt); got != "scan.pdf" {
		t.Errorf("EnsureExtension changed a supported name: %q", got)
	}
}
