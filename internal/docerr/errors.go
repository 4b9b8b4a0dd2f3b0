package docerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error kind in JSON responses, logs and metrics labels.
type Code string

const (
	CodeUnsupportedInput    Code = "UNSUPPORTED_INPUT"
	CodeUnreadableImage     Code = "UNREADABLE_IMAGE"
	CodeNoPages             Code = "NO_PAGES"
	CodeRasterizationFailed Code = "RASTERIZATION_FAILED"
	CodeInternal            Code = "INTERNAL"
)

// UnsupportedInputError is returned for a path whose kind cannot be classified.
type UnsupportedInputError struct {
	Path   string
	Reason string
}

func (e *UnsupportedInputError) Error() string {
	return fmt.Sprintf("unsupported input %q: %s", e.Path, e.Reason)
}

// UnreadableImageError means the file exists (or was expected to) but does not decode.
type UnreadableImageError struct {
	Path  string
	Cause error
}

func (e *UnreadableImageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unreadable image %q: %v", e.Path, e.Cause)
	}
	return fmt.Sprintf("unreadable image %q", e.Path)
}

func (e *UnreadableImageError) Unwrap() error { return e.Cause }

// NoPagesError is returned when a PDF opens but has nothing to render.
type NoPagesError struct {
	Path string
}

func (e *NoPagesError) Error() string {
	return fmt.Sprintf("could not extract any pages from pdf %q", e.Path)
}

// RasterizationError wraps failures of the PDF renderer or its working directory.
type RasterizationError struct {
	Path  string
	Stage string
	Cause error
}

func (e *RasterizationError) Error() string {
	return fmt.Sprintf("rasterize %q (%s): %v", e.Path, e.Stage, e.Cause)
}

func (e *RasterizationError) Unwrap() error { return e.Cause }

// CodeOf maps err to its Code. Unknown errors map to CodeInternal.
func CodeOf(err error) Code {
	var (
		unsupported *UnsupportedInputError
		unreadable  *UnreadableImageError
		noPages     *NoPagesError
		raster      *RasterizationError
	)
	// Renderer failures may wrap a decode error of their own intermediate
	// file, so they are matched first.
	switch {
	case errors.As(err, &raster):
		return CodeRasterizationFailed
	case errors.As(err, &noPages):
		return CodeNoPages
	case errors.As(err, &unreadable):
		return CodeUnreadableImage
	case errors.As(err, &unsupported):
		return CodeUnsupportedInput
	default:
		return CodeInternal
	}
}

// HTTPStatus picks the response status for err. Input problems are the caller's
// to fix (re-upload), renderer failures are ours.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeUnsupportedInput:
		return http.StatusUnsupportedMediaType
	case CodeUnreadableImage, CodeNoPages:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the text shown to whoever uploaded the document.
func UserMessage(err error) string {
	switch CodeOf(err) {
	case CodeUnsupportedInput:
		return "Unsupported file type. Please provide a PDF or an image file."
	case CodeUnreadableImage, CodeNoPages:
		return "The document could not be read. Please re-upload the document."
	default:
		return "The document could not be processed."
	}
}
