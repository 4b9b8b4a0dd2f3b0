package quality

import "math"

// gaussianTruncate matches the usual 4σ kernel support.
const gaussianTruncate = 4.0

func gaussianKernel(sigma float64) []float64 {
	radius := int(gaussianTruncate*sigma + 0.5)
	k := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		k[i+radius] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// clamp is the "nearest" border mode: out-of-range indices repeat the edge.
func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// reflect101 mirrors around the edge pixel without repeating it (dcb|abcd|cba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// gaussianBlur applies a separable Gaussian with nearest-edge borders.
func gaussianBlur(src []float64, w, h int, sigma float64) []float64 {
	k := gaussianKernel(sigma)
	r := len(k) / 2
	tmp := make([]float64, len(src))
	for y := 0; y < h; y++ {
		row := src[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			acc := 0.0
			for i, kv := range k {
				acc += kv * row[clamp(x+i-r, w)]
			}
			tmp[y*w+x] = acc
		}
	}
	out := make([]float64, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for i, kv := range k {
				acc += kv * tmp[clamp(y+i-r, h)*w+x]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

// laplacian is the 4-neighbour second derivative (0 1 0 / 1 -4 1 / 0 1 0).
func laplacian(src []float64, w, h int) []float64 {
	out := make([]float64, len(src))
	for y := 0; y < h; y++ {
		up := reflect101(y-1, h) * w
		down := reflect101(y+1, h) * w
		for x := 0; x < w; x++ {
			left := reflect101(x-1, w)
			right := reflect101(x+1, w)
			c := src[y*w+x]
			out[y*w+x] = src[up+x] + src[down+x] + src[y*w+left] + src[y*w+right] - 4*c
		}
	}
	return out
}

// sobel returns the horizontal and vertical 3x3 Sobel responses.
func sobel(src []float64, w, h int) (gx, gy []float64) {
	gx = make([]float64, len(src))
	gy = make([]float64, len(src))
	at := func(x, y int) float64 { return src[clamp(y, h)*w+clamp(x, w)] }
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tl, tc, tr := at(x-1, y-1), at(x, y-1), at(x+1, y-1)
			ml, mr := at(x-1, y), at(x+1, y)
			bl, bc, br := at(x-1, y+1), at(x, y+1), at(x+1, y+1)
			gx[y*w+x] = (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy[y*w+x] = (bl + 2*bc + br) - (tl + 2*tc + tr)
		}
	}
	return gx, gy
}

// meanVariance is the population mean and variance of v.
func meanVariance(v []float64) (mean, variance float64) {
	if len(v) == 0 {
		return 0, 0
	}
	for _, x := range v {
		mean += x
	}
	mean /= float64(len(v))
	for _, x := range v {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(v))
	return mean, variance
}
