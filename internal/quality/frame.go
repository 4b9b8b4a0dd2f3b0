// Package quality computes legibility statistics over a rasterized page and
// fuses them into a verdict using a per-provenance calibration profile.
package quality

import (
	"image"
	"image/draw"
)

// Frame is a single-channel intensity grid on the 0..255 scale. A Frame is
// never mutated after construction, so extractors may share it across goroutines.
type Frame struct {
	width  int
	height int
	pix    []float64
}

// NewFrame converts img to luma with the ITU-R 601 weights used by image/color.
func NewFrame(img image.Image) *Frame {
	if g, ok := img.(*image.Gray); ok {
		return FrameFromGray(g)
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return FrameFromGray(gray)
}

// FrameFromGray copies g into a Frame.
func FrameFromGray(g *image.Gray) *Frame {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	f := &Frame{width: w, height: h, pix: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		off := g.PixOffset(b.Min.X, b.Min.Y+y)
		row := g.Pix[off : off+w]
		for x, v := range row {
			f.pix[y*w+x] = float64(v)
		}
	}
	return f
}

func (f *Frame) Width() int  { return f.width }
func (f *Frame) Height() int { return f.height }

// Len is the number of pixels.
func (f *Frame) Len() int { return len(f.pix) }

// At returns the intensity at (x, y) relative to the frame origin.
func (f *Frame) At(x, y int) float64 { return f.pix[y*f.width+x] }
