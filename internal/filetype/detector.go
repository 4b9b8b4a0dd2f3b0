package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/local/docgate/internal/docerr"
)

// Kind is the provenance of an input document. It decides how the page is
// rasterized and which calibration profile scores it.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindRasterImage
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindRasterImage:
		return "image"
	default:
		return "unknown"
	}
}

// imageExtensions lists the raster formats the decoder registry can read.
var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
	".webp": {},
}

// KindFromPath infers the kind from the file extension only. Anything that is
// neither .pdf nor a known image extension is rejected.
func KindFromPath(path string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return KindPDF, nil
	}
	if _, ok := imageExtensions[ext]; ok {
		return KindRasterImage, nil
	}
	if ext == "" {
		return KindUnknown, &docerr.UnsupportedInputError{Path: path, Reason: "missing file extension"}
	}
	return KindUnknown, &docerr.UnsupportedInputError{Path: path, Reason: fmt.Sprintf("extension %s", ext)}
}

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType  string
	Extension string
	Kind      Kind
}

// Supported reports whether the sniffed content can be classified.
func (i *FileTypeInfo) Supported() bool { return i.Kind != KindUnknown }

// Sniff detects the actual file type using magic bytes, not filename.
func Sniff(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	return classify(mtype), nil
}

func classify(mtype *mimetype.MIME) *FileTypeInfo {
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	switch {
	case mtype.Is("application/pdf"):
		info.Kind = KindPDF
	case strings.HasPrefix(info.MIMEType, "image/"):
		if _, ok := imageExtensions[strings.ToLower(info.Extension)]; ok {
			info.Kind = KindRasterImage
		}
	}
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("kind", info.Kind.String()).Msg("sniffed file type")
	return info
}

// EnsureExtension returns name with an extension KindFromPath accepts, taken
// from the sniffed content when the name carries none or a wrong one.
func EnsureExtension(name string, info *FileTypeInfo) string {
	if _, err := KindFromPath(name); err == nil {
		return name
	}
	if info == nil || !info.Supported() {
		return name
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + info.Extension
}
