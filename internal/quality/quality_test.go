package quality

import (
	"errors"
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/local/docgate/internal/docerr"
	"github.com/local/docgate/internal/filetype"
)

func flatImage(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func checkerboard(w, h, cell int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func randomImage(w, h int, seed int64) *image.Gray {
	rnd := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rnd.Intn(256))
	}
	return img
}

// blurred returns f smoothed with a Gaussian of the given sigma.
func blurred(f *Frame, sigma float64) *Frame {
	return &Frame{width: f.width, height: f.height, pix: gaussianBlur(f.pix, f.width, f.height, sigma)}
}

func TestFlatImage(t *testing.T) {
	f := NewFrame(flatImage(64, 48, 180))
	m := Measure(f, false)
	if m.Sharpness > 1e-9 {
		t.Errorf("Sharpness = %g, want ~0", m.Sharpness)
	}
	if m.EdgeDensity != 0 {
		t.Errorf("EdgeDensity = %g, want 0", m.EdgeDensity)
	}
	if m.NoiseLevel > 1e-6 {
		t.Errorf("NoiseLevel = %g, want ~0", m.NoiseLevel)
	}
	for _, kind := range []filetype.Kind{filetype.KindPDF, filetype.KindRasterImage} {
		p, err := ProfileFor(kind)
		if err != nil {
			t.Fatal(err)
		}
		if got, score := Classify(m, p); got != Illegible {
			t.Errorf("%s: flat image classified %v (score %g)", p.Name, got, score)
		}
	}
}

func TestCheckerboard(t *testing.T) {
	f := NewFrame(checkerboard(96, 96, 8))
	m := Measure(f, true)
	if m.Sharpness <= 1000 {
		t.Errorf("Sharpness = %g, want > 1000", m.Sharpness)
	}
	if m.EdgeDensity <= 0 || m.EdgeDensity > 100 {
		t.Errorf("EdgeDensity = %g, want in (0,100]", m.EdgeDensity)
	}
	for _, kind := range []filetype.Kind{filetype.KindPDF, filetype.KindRasterImage} {
		p, _ := ProfileFor(kind)
		if m.Sharpness <= p.Thresholds.Sharpness {
			t.Errorf("%s: sharpness %g below threshold %g", p.Name, m.Sharpness, p.Thresholds.Sharpness)
		}
		if got, score := Classify(m, p); got != Legible {
			t.Errorf("%s: checkerboard classified %v (score %g)", p.Name, got, score)
		}
	}
}

func TestBlurLowersSharpness(t *testing.T) {
	sharp := NewFrame(checkerboard(64, 64, 4))
	soft := blurred(sharp, 2)
	if s, b := Sharpness(sharp), Sharpness(soft); b >= s {
		t.Fatalf("blurred sharpness %g should be below sharp %g", b, s)
	}
}

func TestEdgeDensityRange(t *testing.T) {
	frames := []*Frame{
		NewFrame(randomImage(50, 40, 1)),
		NewFrame(randomImage(3, 3, 2)),
		NewFrame(randomImage(1, 7, 3)),
		NewFrame(checkerboard(33, 17, 1)),
		NewFrame(flatImage(2, 2, 0)),
	}
	for i, f := range frames {
		d := EdgeDensity(f)
		if d < 0 || d > 100 || math.IsNaN(d) {
			t.Errorf("frame %d: EdgeDensity = %g, want in [0,100]", i, d)
		}
		if s := Sharpness(f); s < 0 {
			t.Errorf("frame %d: negative sharpness %g", i, s)
		}
		if n := NoiseLevel(f); n < 0 {
			t.Errorf("frame %d: negative noise %g", i, n)
		}
	}
}

func TestEmptyFrame(t *testing.T) {
	f := NewFrame(image.NewGray(image.Rect(0, 0, 0, 0)))
	m := Measure(f, true)
	if m != (Metrics{}) {
		t.Errorf("empty frame metrics = %+v, want zero", m)
	}
}

func TestNewFrameFromColorAndSubImage(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(rgba.Pix); i += 4 {
		rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2], rgba.Pix[i+3] = 255, 255, 255, 255
	}
	f := NewFrame(rgba)
	if f.Width() != 4 || f.Height() != 4 || f.At(2, 2) != 255 {
		t.Fatalf("white rgba frame = %dx%d at=%g", f.Width(), f.Height(), f.At(2, 2))
	}

	board := checkerboard(8, 8, 2)
	sub := board.SubImage(image.Rect(2, 0, 6, 4)).(*image.Gray)
	sf := NewFrame(sub)
	if sf.Width() != 4 || sf.Height() != 4 {
		t.Fatalf("sub frame size = %dx%d", sf.Width(), sf.Height())
	}
	if sf.At(0, 0) != float64(board.GrayAt(2, 0).Y) {
		t.Errorf("sub frame origin = %g, want %d", sf.At(0, 0), board.GrayAt(2, 0).Y)
	}
}

func TestMeasureParallelMatchesSerial(t *testing.T) {
	f := NewFrame(randomImage(40, 30, 7))
	serial := Measure(f, false)
	parallel := Measure(f, true)
	if serial != parallel {
		t.Errorf("parallel %+v != serial %+v", parallel, serial)
	}
}

func TestMeasureParallelRepeatable(t *testing.T) {
	f := NewFrame(checkerboard(48, 48, 3))
	first := Measure(f, true)
	for i := 0; i < 5; i++ {
		if m := Measure(f, true); m != first {
			t.Fatalf("run %d = %+v, want %+v", i, m, first)
		}
	}
}

func TestProfileFor(t *testing.T) {
	pdf, err := ProfileFor(filetype.KindPDF)
	if err != nil {
		t.Fatal(err)
	}
	want := Profile{
		Name:       "pdf",
		Thresholds: Metrics{Sharpness: 190, EdgeDensity: 2.0, NoiseLevel: 50},
		Weights:    Metrics{Sharpness: 0.8, EdgeDensity: 0.1, NoiseLevel: 0.1},
	}
	if pdf != want {
		t.Errorf("pdf profile = %+v, want %+v", pdf, want)
	}

	img, _ := ProfileFor(filetype.KindRasterImage)
	want = Profile{
		Name:       "image",
		Thresholds: Metrics{Sharpness: 1000, EdgeDensity: 12, NoiseLevel: 5000},
		Weights:    Metrics{Sharpness: 0.5, EdgeDensity: 0.3, NoiseLevel: 0.2},
	}
	if img != want {
		t.Errorf("image profile = %+v, want %+v", img, want)
	}

	// Altering a returned profile must not leak into later selections.
	pdf.Thresholds.Sharpness = 1
	again, _ := ProfileFor(filetype.KindPDF)
	if again.Thresholds.Sharpness != 190 {
		t.Errorf("profile selection is not stable: %+v", again)
	}

	_, err = ProfileFor(filetype.KindUnknown)
	var unsupported *docerr.UnsupportedInputError
	if !errors.As(err, &unsupported) {
		t.Errorf("unknown kind error = %v, want UnsupportedInputError", err)
	}
}

func TestScoreMonotonicInSharpness(t *testing.T) {
	for _, kind := range []filetype.Kind{filetype.KindPDF, filetype.KindRasterImage} {
		p, _ := ProfileFor(kind)
		prev := math.Inf(-1)
		for s := 0.0; s <= 5000; s += 250 {
			score := Score(Metrics{Sharpness: s, EdgeDensity: 1.5, NoiseLevel: 10}, p)
			if score < prev {
				t.Fatalf("%s: score dropped from %g to %g at sharpness %g", p.Name, prev, score, s)
			}
			prev = score
		}
	}

	// Same monotonicity measured on real frames: a sharper render of the same
	// pattern never scores lower.
	sharp := NewFrame(checkerboard(64, 64, 4))
	soft := blurred(sharp, 1.5)
	p, _ := ProfileFor(filetype.KindRasterImage)
	ms := Measure(sharp, false)
	mb := Measure(soft, false)
	hold := func(m Metrics, s float64) Metrics { m.Sharpness = s; return m }
	if Score(hold(mb, ms.Sharpness), p) < Score(mb, p) {
		t.Error("raising sharpness alone lowered the score")
	}
}

// Noise adds to the score rather than subtracting from it. This mirrors the
// calibration the thresholds were tuned with.
func TestScoreNoiseIsAdditive(t *testing.T) {
	p, _ := ProfileFor(filetype.KindPDF)
	base := Metrics{Sharpness: 100, EdgeDensity: 1, NoiseLevel: 0}
	noisy := base
	noisy.NoiseLevel = 400
	if Score(noisy, p) <= Score(base, p) {
		t.Fatal("more noise should raise the score")
	}
	// 0.8*100/190 + 0.1*1/2 ≈ 0.47 alone, the noise term pushes it over the cut.
	if got, _ := Classify(base, p); got != Illegible {
		t.Errorf("base classified %v", got)
	}
	if got, _ := Classify(noisy, p); got != Legible {
		t.Errorf("noisy classified %v", got)
	}
}

func TestClassifyBoundary(t *testing.T) {
	p, _ := ProfileFor(filetype.KindPDF)
	// sharpness alone at 190/0.8 gives exactly 1.0, which is not > 1.
	exact := Metrics{Sharpness: 190 / 0.8}
	got, score := Classify(exact, p)
	if math.Abs(score-1) > 1e-12 {
		t.Fatalf("score = %.15f, want 1", score)
	}
	if score <= PassScore && got != Illegible {
		t.Errorf("score %g at the cut classified %v", score, got)
	}
	if got, _ := Classify(Metrics{Sharpness: 240}, p); got != Legible {
		t.Errorf("sharpness 240 classified %v", got)
	}
}

func TestScoreFinite(t *testing.T) {
	p, _ := ProfileFor(filetype.KindRasterImage)
	cases := []Metrics{
		{Sharpness: math.Inf(1)},
		{Sharpness: math.NaN(), EdgeDensity: 50},
		{Sharpness: math.MaxFloat64, EdgeDensity: 100, NoiseLevel: math.MaxFloat64},
	}
	for _, m := range cases {
		if s := Score(m, p); math.IsNaN(s) || math.IsInf(s, 0) {
			t.Errorf("Score(%+v) = %g, want finite", m, s)
		}
	}
}

func TestLegibilityJSON(t *testing.T) {
	b, err := Legible.MarshalJSON()
	if err != nil || string(b) != `"legible"` {
		t.Errorf("Legible json = %s, %v", b, err)
	}
	if Illegible.String() != "illegible" {
		t.Errorf("Illegible string = %q", Illegible.String())
	}

	var l Legibility
	if err := l.UnmarshalJSON([]byte(`"legible"`)); err != nil || l != Legible {
		t.Errorf("unmarshal legible = %v, %v", l, err)
	}
	if err := l.UnmarshalJSON([]byte(`"blurry"`)); err == nil {
		t.Error("unknown value accepted")
	}
}

func TestReflect101(t *testing.T) {
	tests := []struct{ i, n, want int }{
		{-1, 5, 1}, {-2, 5, 2}, {5, 5, 3}, {6, 5, 2}, {0, 1, 0}, {-1, 1, 0}, {3, 2, 1},
	}
	for _, tt := range tests {
		if got := reflect101(tt.i, tt.n); got != tt.want {
			t.Errorf("reflect101(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}
