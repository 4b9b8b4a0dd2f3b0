// Package ocr runs Tesseract over pages the gate has passed.
package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog/log"
)

// Tesseract wraps one gosseract client. The client is not safe for
// concurrent use, so calls are serialized.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
	lang   string
}

// NewTesseract creates a client for lang ("eng", "eng+deu", ...).
// It should be closed when no longer needed.
func NewTesseract(lang string) (*Tesseract, error) {
	if lang == "" {
		lang = "eng"
	}
	c := gosseract.NewClient()
	if err := c.SetLanguage(strings.Split(lang, "+")...); err != nil {
		c.Close()
		return nil, fmt.Errorf("set ocr language %q: %w", lang, err)
	}
	return &Tesseract{client: c, lang: lang}, nil
}

// Close releases OCR resources.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}

// TextFromFile recognizes a native image file.
func (t *Tesseract) TextFromFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.SetImage(path); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	return t.text(path)
}

// TextFromBytes recognizes encoded image data (PNG, JPEG, TIFF).
func (t *Tesseract) TextFromBytes(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	return t.text("<bytes>")
}

func (t *Tesseract) text(src string) (string, error) {
	out, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	out = strings.TrimSpace(out)
	log.Debug().Str("file", src).Str("lang", t.lang).Int("chars", len(out)).Msg("ocr complete")
	return out, nil
}

// Version reports the linked Tesseract version, used by the status check.
func Version() string { return gosseract.Version() }
