package raster

import (
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
)

// GaussianKernel returns a normalized 1-D Gaussian of size ksize. A
// non-positive sigma is derived from ksize the way OpenCV does.
func GaussianKernel(ksize int, sigma float64) []float64 {
	if sigma <= 0 {
		sigma = 0.3*(float64(ksize-1)*0.5-1) + 0.8
	}
	kernel := make([]float64, ksize)
	center := float64(ksize-1) / 2
	for i := range kernel {
		d := float64(i) - center
		kernel[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// GaussianBlur convolves a packed w*h plane with a separable Gaussian,
// reflecting at the borders without repeating the edge sample
// (BORDER_REFLECT_101).
func GaussianBlur(plane []float64, w, h, ksize int, sigma float64) []float64 {
	if w == 0 || h == 0 {
		return make([]float64, len(plane))
	}
	kernel := GaussianKernel(ksize, sigma)
	radius := ksize / 2

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := plane[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var acc float64
			for k, weight := range kernel {
				acc += weight * row[reflect101(x+k-radius, w)]
			}
			tmp[y*w+x] = acc
		}
	}

	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k, weight := range kernel {
				acc += weight * tmp[reflect101(y+k-radius, h)*w+x]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

// BlurNRGBA blurs the color channels of img with GaussianBlur and keeps its
// alpha channel.
func BlurNRGBA(img *image.NRGBA, ksize int, sigma float64) *image.NRGBA {
	src := ToNRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := ToNRGBA(src)

	plane := make([]float64, w*h)
	for c := 0; c < 3; c++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				plane[y*w+x] = float64(src.Pix[y*src.Stride+x*4+c])
			}
		}
		blurred := GaussianBlur(plane, w, h, ksize, sigma)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Pix[y*out.Stride+x*4+c] = clampUint8(math.Round(blurred[y*w+x]))
			}
		}
	}
	return out
}

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
