package quality

import "math"

// tan(22.5°), the boundary between horizontal, vertical and diagonal bins.
var tan22 = math.Tan(math.Pi / 8)

// canny marks edge pixels. Intensities are rescaled to [0,1] so low/high are
// fractions of full contrast. The one-pixel border never holds an edge.
func canny(f *Frame, sigma, low, high float64) []bool {
	w, h := f.width, f.height
	edges := make([]bool, w*h)
	if w < 3 || h < 3 {
		return edges
	}

	unit := make([]float64, len(f.pix))
	for i, v := range f.pix {
		unit[i] = v / 255
	}
	smoothed := gaussianBlur(unit, w, h, sigma)
	gx, gy := sobel(smoothed, w, h)

	mag := make([]float64, len(gx))
	for i := range gx {
		mag[i] = math.Hypot(gx[i], gy[i])
	}

	// Non-maximum suppression along the quantized gradient direction.
	const (
		none uint8 = iota
		weak
		strong
	)
	class := make([]uint8, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m < low {
				continue
			}
			ax, ay := math.Abs(gx[i]), math.Abs(gy[i])
			var n1, n2 float64
			switch {
			case ay <= ax*tan22:
				n1, n2 = mag[i-1], mag[i+1]
			case ax <= ay*tan22:
				n1, n2 = mag[i-w], mag[i+w]
			case gx[i]*gy[i] > 0:
				n1, n2 = mag[i-w-1], mag[i+w+1]
			default:
				n1, n2 = mag[i-w+1], mag[i+w-1]
			}
			if m < n1 || m < n2 {
				continue
			}
			if m >= high {
				class[i] = strong
			} else {
				class[i] = weak
			}
		}
	}

	// Hysteresis: keep weak pixels 8-connected to a strong one.
	stack := make([]int, 0, 1024)
	for i, c := range class {
		if c == strong && !edges[i] {
			edges[i] = true
			stack = append(stack, i)
		}
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			px, py := p%w, p/w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := px+dx, py+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					q := ny*w + nx
					if !edges[q] && class[q] != none {
						edges[q] = true
						stack = append(stack, q)
					}
				}
			}
		}
	}
	return edges
}
