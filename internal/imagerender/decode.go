package imagerender

import (
	"bufio"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/local/docgate/internal/docerr"
)

// DecodeImage reads a native raster image. Missing files and undecodable
// content are both reported as UnreadableImageError.
func DecodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &docerr.UnreadableImageError{Path: path, Cause: err}
	}
	defer f.Close()

	img, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, &docerr.UnreadableImageError{Path: path, Cause: err}
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, &docerr.UnreadableImageError{Path: path}
	}
	log.Debug().Str("file", path).Str("format", format).Int("width", b.Dx()).Int("height", b.Dy()).Msg("decoded image")
	return img, nil
}
