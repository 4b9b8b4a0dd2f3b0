package imagerender

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/docgate/internal/docerr"
)

// RenderDPI is the resolution PDF pages are rasterized at. The PDF calibration
// profile is tuned for this value.
const RenderDPI = 300.0

// pageFileName is the intermediate raster written into the working directory.
const pageFileName = "page-1.png"

// Document abstracts an opened PDF. *fitz.Document satisfies it.
type Document interface {
	NumPage() int
	ImageDPI(pageNumber int, dpi float64) (*image.RGBA, error)
	Close() error
}

// Opener abstracts opening a PDF path into a Document.
type Opener interface {
	Open(path string) (Document, error)
}

// fitzOpener implements Opener using github.com/gen2brain/go-fitz.
type fitzOpener struct{}

func (fitzOpener) Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Rasterizer turns an input document into one grayscale page image.
type Rasterizer struct {
	opener Opener
}

// NewRasterizer returns a Rasterizer backed by opener, or by MuPDF when nil.
func NewRasterizer(opener Opener) *Rasterizer {
	if opener == nil {
		opener = fitzOpener{}
	}
	return &Rasterizer{opener: opener}
}

// RasterizePDF renders the first page of pdfPath at RenderDPI, writes it to
// workdir and reads the page back from there. workdir belongs to the caller,
// who removes it.
func (r *Rasterizer) RasterizePDF(pdfPath, workdir string) (*image.Gray, error) {
	doc, err := r.opener.Open(pdfPath)
	if err != nil {
		return nil, &docerr.RasterizationError{Path: pdfPath, Stage: "open", Cause: err}
	}
	defer doc.Close()

	if doc.NumPage() <= 0 {
		return nil, &docerr.NoPagesError{Path: pdfPath}
	}

	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(0, RenderDPI)
	if err != nil {
		return nil, &docerr.RasterizationError{Path: pdfPath, Stage: "render", Cause: err}
	}
	gray := toGray(img)

	pagePath := filepath.Join(workdir, pageFileName)
	if err := writePNG(pagePath, gray); err != nil {
		return nil, &docerr.RasterizationError{Path: pdfPath, Stage: "write", Cause: err}
	}

	log.Debug().
		Str("pdf", pdfPath).
		Int("pages", doc.NumPage()).
		Int("width", gray.Bounds().Dx()).
		Int("height", gray.Bounds().Dy()).
		Float64("dpi", RenderDPI).
		Msg("rendered first page")

	page, err := DecodeImage(pagePath)
	if err != nil {
		return nil, &docerr.RasterizationError{Path: pdfPath, Stage: "reload", Cause: err}
	}
	return toGray(page), nil
}

// RenderJPEG renders one page (0-based) as grayscale JPEG bytes for OCR engines
// that take encoded images.
func (r *Rasterizer) RenderJPEG(pdfPath string, pageIndex, quality int) ([]byte, error) {
	doc, err := r.opener.Open(pdfPath)
	if err != nil {
		return nil, &docerr.RasterizationError{Path: pdfPath, Stage: "open", Cause: err}
	}
	defer doc.Close()

	if pageIndex < 0 || pageIndex >= doc.NumPage() {
		if doc.NumPage() == 0 {
			return nil, &docerr.NoPagesError{Path: pdfPath}
		}
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", pageIndex+1, doc.NumPage())
	}
	img, err := doc.ImageDPI(pageIndex, RenderDPI)
	if err != nil {
		return nil, &docerr.RasterizationError{Path: pdfPath, Stage: "render", Cause: err}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, toGray(img), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	log.Debug().Int("page", pageIndex+1).Int("jpeg_size", buf.Len()).Int("quality", quality).Msg("encoded page as JPEG")
	return buf.Bytes(), nil
}

// PageCount reports the number of pages. pdfcpu is tried first since it does
// not render anything; MuPDF is the fallback for files pdfcpu rejects.
func (r *Rasterizer) PageCount(pdfPath string) (int, error) {
	n, err := api.PageCountFile(pdfPath)
	if err == nil {
		return n, nil
	}
	log.Debug().Err(err).Str("pdf", pdfPath).Msg("pdfcpu page count failed; trying mupdf")

	doc, oerr := r.opener.Open(pdfPath)
	if oerr != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", oerr)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, img); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
