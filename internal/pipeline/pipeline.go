// Package pipeline runs OCR only on documents the gate found legible.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/docgate/internal/filetype"
	"github.com/local/docgate/internal/gate"
)

// MessageNotClear is returned to callers when the gate rejects a page.
const MessageNotClear = "Image is not clear to the OCR"

type Classifier interface {
	Classify(ctx context.Context, path string) (gate.Verdict, error)
}

type OCR interface {
	TextFromFile(ctx context.Context, path string) (string, error)
	TextFromBytes(ctx context.Context, data []byte) (string, error)
}

// PageRenderer renders PDF pages for OCR. *imagerender.Rasterizer implements it.
type PageRenderer interface {
	PageCount(pdfPath string) (int, error)
	RenderJPEG(pdfPath string, pageIndex, quality int) ([]byte, error)
}

// Outcome is the result of one gated extraction.
type Outcome struct {
	Verdict   gate.Verdict `json:"verdict"`
	Extracted bool         `json:"extracted"`
	Text      string       `json:"text,omitempty"`
	Pages     int          `json:"pages,omitempty"`
	Message   string       `json:"message,omitempty"`
}

type Pipeline struct {
	gate        Classifier
	ocr         OCR
	renderer    PageRenderer
	jpegQuality int
}

func New(g Classifier, o OCR, r PageRenderer, jpegQuality int) *Pipeline {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 90
	}
	return &Pipeline{gate: g, ocr: o, renderer: r, jpegQuality: jpegQuality}
}

// Run classifies path and, only when it is legible, extracts its text.
// Gate errors are returned as-is; an illegible page is not an error.
func (p *Pipeline) Run(ctx context.Context, path string) (Outcome, error) {
	v, err := p.gate.Classify(ctx, path)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Verdict: v}
	if !v.Legible() {
		out.Message = MessageNotClear
		log.Info().Str("file", path).Float64("score", v.Score).Msg("ocr skipped, page not legible")
		return out, nil
	}

	switch v.Kind {
	case filetype.KindPDF.String():
		out.Text, out.Pages, err = p.extractPDF(ctx, path)
	default:
		out.Text, err = p.ocr.TextFromFile(ctx, path)
		out.Pages = 1
	}
	if err != nil {
		return out, fmt.Errorf("extract %s: %w", path, err)
	}
	out.Extracted = true
	log.Info().Str("file", path).Int("pages", out.Pages).Int("chars", len(out.Text)).Msg("text extracted")
	return out, nil
}

func (p *Pipeline) extractPDF(ctx context.Context, path string) (string, int, error) {
	n, err := p.renderer.PageCount(path)
	if err != nil {
		return "", 0, err
	}
	var texts []string
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return "", i, err
		}
		jpg, err := p.renderer.RenderJPEG(path, i, p.jpegQuality)
		if err != nil {
			return "", i, fmt.Errorf("render page %d: %w", i+1, err)
		}
		t, err := p.ocr.TextFromBytes(ctx, jpg)
		if err != nil {
			return "", i, fmt.Errorf("ocr page %d: %w", i+1, err)
		}
		if t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n\n"), n, nil
}
