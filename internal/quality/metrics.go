package quality

import (
	"math"

	"golang.org/x/sync/errgroup"
)

// Metrics is the triple of legibility statistics measured on one frame.
// Profiles reuse the same layout for per-signal thresholds and weights.
type Metrics struct {
	Sharpness   float64 `json:"sharpness"`
	EdgeDensity float64 `json:"edge_density"`
	NoiseLevel  float64 `json:"noise_level"`
}

// Canny hysteresis thresholds on the unit intensity scale.
const (
	cannySigma = 1.0
	cannyLow   = 0.1
	cannyHigh  = 0.2
)

// noiseSigma is the smoothing used to separate the high-frequency residual.
const noiseSigma = 1.0

// Sharpness is the variance of the Laplacian response. Flat or blurred pages
// score near zero; crisp strokes push it up.
func Sharpness(f *Frame) float64 {
	if f.Len() == 0 {
		return 0
	}
	_, v := meanVariance(laplacian(f.pix, f.width, f.height))
	return v
}

// EdgeDensity is the percentage of pixels a Canny detector marks as edges.
func EdgeDensity(f *Frame) float64 {
	n := f.Len()
	if n == 0 {
		return 0
	}
	edges := canny(f, cannySigma, cannyLow, cannyHigh)
	count := 0
	for _, e := range edges {
		if e {
			count++
		}
	}
	return float64(count) / float64(n) * 100
}

// NoiseLevel is the standard deviation of the frame minus its σ=1 Gaussian blur.
func NoiseLevel(f *Frame) float64 {
	if f.Len() == 0 {
		return 0
	}
	smoothed := gaussianBlur(f.pix, f.width, f.height, noiseSigma)
	residual := make([]float64, len(smoothed))
	for i, v := range f.pix {
		residual[i] = v - smoothed[i]
	}
	_, variance := meanVariance(residual)
	return math.Sqrt(variance)
}

// Measure computes all three statistics. With parallel set each extractor runs
// on its own goroutine; the results are identical either way. Once a frame
// exists it is always measured to completion.
func Measure(f *Frame, parallel bool) Metrics {
	var m Metrics
	if !parallel {
		m.Sharpness = Sharpness(f)
		m.EdgeDensity = EdgeDensity(f)
		m.NoiseLevel = NoiseLevel(f)
		return m
	}

	var g errgroup.Group
	run := func(dst *float64, fn func(*Frame) float64) {
		g.Go(func() error {
			*dst = fn(f)
			return nil
		})
	}
	run(&m.Sharpness, Sharpness)
	run(&m.EdgeDensity, EdgeDensity)
	run(&m.NoiseLevel, NoiseLevel)
	_ = g.Wait()
	return m
}
