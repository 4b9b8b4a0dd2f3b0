package quality

import (
	"github.com/local/docgate/internal/docerr"
	"github.com/local/docgate/internal/filetype"
)

// Profile holds the per-signal thresholds that normalize a Metrics triple and
// the weights that fuse the normalized signals into one score.
type Profile struct {
	Name       string  `json:"name"`
	Thresholds Metrics `json:"thresholds"`
	Weights    Metrics `json:"weights"`
}

// ProfileFor returns the calibration for a provenance. Each call builds a fresh
// value, so callers can never alter another request's calibration.
//
// A 300 DPI render has almost no sensor noise and sparse edges on clean pages,
// so sharpness carries most of the weight. Photographs and scans vary in all
// three signals.
func ProfileFor(kind filetype.Kind) (Profile, error) {
	switch kind {
	case filetype.KindPDF:
		return Profile{
			Name:       "pdf",
			Thresholds: Metrics{Sharpness: 190, EdgeDensity: 2.0, NoiseLevel: 50},
			Weights:    Metrics{Sharpness: 0.8, EdgeDensity: 0.1, NoiseLevel: 0.1},
		}, nil
	case filetype.KindRasterImage:
		return Profile{
			Name:       "image",
			Thresholds: Metrics{Sharpness: 1000, EdgeDensity: 12, NoiseLevel: 5000},
			Weights:    Metrics{Sharpness: 0.5, EdgeDensity: 0.3, NoiseLevel: 0.2},
		}, nil
	default:
		return Profile{}, &docerr.UnsupportedInputError{Reason: "no calibration profile for kind " + kind.String()}
	}
}
