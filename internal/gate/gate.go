// Package gate decides whether a scanned page is legible enough to hand to OCR.
//
// A classification request moves through
//
//	Start → Rasterized → MetricsComputed → Classified → Done
//
// and can enter Failed from any state. The working directory used to render a
// PDF page exists only while the request is rasterizing; it is removed on every
// exit path before Classify returns.
package gate

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/docgate/internal/docerr"
	"github.com/local/docgate/internal/filetype"
	"github.com/local/docgate/internal/imagerender"
	"github.com/local/docgate/internal/metrics"
	"github.com/local/docgate/internal/quality"
)

// workdirPrefix names per-request rasterization directories under TempRoot.
const workdirPrefix = "docgate-raster-"

// State is a step of one classification request.
type State int

const (
	StateStart State = iota
	StateRasterized
	StateMetricsComputed
	StateClassified
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateRasterized:
		return "rasterized"
	case StateMetricsComputed:
		return "metrics_computed"
	case StateClassified:
		return "classified"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Verdict is the outcome of one classification, with the raw signals kept for
// whoever logs or stores it.
type Verdict struct {
	Path       string             `json:"path"`
	Kind       string             `json:"kind"`
	Legibility quality.Legibility `json:"legibility"`
	Metrics    quality.Metrics    `json:"metrics"`
	Score      float64            `json:"score"`
	Profile    string             `json:"profile"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	DurationMs int64              `json:"duration_ms"`
}

// Legible reports whether downstream extraction may run.
func (v Verdict) Legible() bool { return v.Legibility == quality.Legible }

// Limiter bounds how many requests rasterize at once.
type Limiter interface {
	Acquire(ctx context.Context) (func(), error)
}

// Options configures a Gate. The zero value renders with MuPDF under os.TempDir().
type Options struct {
	TempRoot        string
	ParallelMetrics bool
	Rasterizer      *imagerender.Rasterizer
	Limiter         Limiter
}

// Gate classifies documents. It holds no per-request state and is safe for
// concurrent use.
type Gate struct {
	tempRoot   string
	parallel   bool
	rasterizer *imagerender.Rasterizer
	limiter    Limiter

	measure func(*quality.Frame, bool) quality.Metrics
}

func New(opts Options) *Gate {
	r := opts.Rasterizer
	if r == nil {
		r = imagerender.NewRasterizer(nil)
	}
	return &Gate{
		tempRoot:   opts.TempRoot,
		parallel:   opts.ParallelMetrics,
		rasterizer: r,
		limiter:    opts.Limiter,
		measure:    quality.Measure,
	}
}

// request tracks the state of one Classify call.
type request struct {
	path  string
	kind  filetype.Kind
	state State
}

func (r *request) to(s State) {
	log.Debug().Str("file", r.path).Str("from", r.state.String()).Str("to", s.String()).Msg("gate transition")
	r.state = s
}

func (r *request) fail(err error) error {
	code := docerr.CodeOf(err)
	log.Warn().Err(err).Str("file", r.path).Str("kind", r.kind.String()).Str("state", r.state.String()).Str("code", string(code)).Msg("classification failed")
	metrics.IncFailure(r.kind.String(), string(code))
	r.to(StateFailed)
	return err
}

// Classify rasterizes the first page of path, measures it and returns the
// verdict. Failures are terminal; nothing is retried.
func (g *Gate) Classify(ctx context.Context, path string) (Verdict, error) {
	start := time.Now()
	req := &request{path: path, state: StateStart}

	kind, err := filetype.KindFromPath(path)
	if err != nil {
		return Verdict{}, req.fail(err)
	}
	req.kind = kind

	if g.limiter != nil {
		release, err := g.limiter.Acquire(ctx)
		if err != nil {
			return Verdict{}, req.fail(err)
		}
		defer release()
	}

	frame, err := g.rasterize(kind, path)
	if err != nil {
		return Verdict{}, req.fail(err)
	}
	req.to(StateRasterized)

	// The frame is measured and classified even if ctx expires from here on.
	m := g.measure(frame, g.parallel)
	req.to(StateMetricsComputed)

	profile, err := quality.ProfileFor(kind)
	if err != nil {
		return Verdict{}, req.fail(err)
	}
	legibility, score := quality.Classify(m, profile)
	req.to(StateClassified)

	v := Verdict{
		Path:       path,
		Kind:       kind.String(),
		Legibility: legibility,
		Metrics:    m,
		Score:      score,
		Profile:    profile.Name,
		Width:      frame.Width(),
		Height:     frame.Height(),
	}
	elapsed := time.Since(start)
	v.DurationMs = elapsed.Milliseconds()
	metrics.ObserveVerdict(v.Kind, legibility.String(), elapsed, m.Sharpness, m.EdgeDensity, m.NoiseLevel)

	log.Info().
		Str("file", path).
		Str("kind", v.Kind).
		Float64("sharpness", m.Sharpness).
		Float64("edge_density", m.EdgeDensity).
		Float64("noise_level", m.NoiseLevel).
		Float64("score", score).
		Str("verdict", legibility.String()).
		Int64("duration_ms", v.DurationMs).
		Msg("page classified")

	req.to(StateDone)
	return v, nil
}

// BlurDetected reports true when the page is not clear enough for OCR.
func (g *Gate) BlurDetected(ctx context.Context, path string) (bool, error) {
	v, err := g.Classify(ctx, path)
	if err != nil {
		return false, err
	}
	return !v.Legible(), nil
}

// rasterize produces the frame. For PDFs the working directory is created and
// removed inside this call, so it never outlives the Rasterized state.
func (g *Gate) rasterize(kind filetype.Kind, path string) (*quality.Frame, error) {
	switch kind {
	case filetype.KindPDF:
		workdir, err := os.MkdirTemp(g.tempRoot, workdirPrefix+"*")
		if err != nil {
			return nil, &docerr.RasterizationError{Path: path, Stage: "workdir", Cause: err}
		}
		defer removeWorkdir(workdir)

		page, err := g.rasterizer.RasterizePDF(path, workdir)
		if err != nil {
			return nil, err
		}
		return quality.FrameFromGray(page), nil
	case filetype.KindRasterImage:
		img, err := imagerender.DecodeImage(path)
		if err != nil {
			return nil, err
		}
		return quality.NewFrame(img), nil
	default:
		return nil, &docerr.UnsupportedInputError{Path: path, Reason: "kind " + kind.String()}
	}
}

func removeWorkdir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("failed to remove rasterization workdir")
	}
}
