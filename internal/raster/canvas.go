// Package raster holds the pixel-level building blocks shared by the garment
// and person preprocessing pipelines: bounding boxes, alpha cleanup, contrast
// enhancement and canvas fitting. Every function allocates its result and
// leaves its inputs untouched.
package raster

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Canvas size consumed by both pipelines and by the compositor. Garment and
// person canvases must agree for the overlay region to line up.
const (
	CanvasWidth  = 768
	CanvasHeight = 1024
)

var (
	Transparent = color.NRGBA{R: 255, G: 255, B: 255, A: 0}
	White       = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// FitCanvas scales src uniformly so it fits inside a w x h canvas, then
// centers it on a canvas filled with bg. The limiting axis always lands
// exactly on the canvas edge.
func FitCanvas(src image.Image, w, h int, bg color.NRGBA) *image.NRGBA {
	dst := imaging.New(w, h, bg)

	srcW, srcH := src.Bounds().Dx(), src.Bounds().Dy()
	if srcW <= 0 || srcH <= 0 || w <= 0 || h <= 0 {
		return dst
	}

	fitW, fitH := fitSize(srcW, srcH, w, h)

	var resized *image.NRGBA
	if fitW == srcW && fitH == srcH {
		resized = imaging.Clone(src)
	} else {
		resized = imaging.Resize(src, fitW, fitH, imaging.Lanczos)
	}

	paste(dst, resized, image.Pt((w-fitW)/2, (h-fitH)/2))
	return dst
}

// fitSize returns the size of a srcW x srcH image scaled by
// min(w/srcW, h/srcH), floored, never smaller than 1x1.
func fitSize(srcW, srcH, w, h int) (int, int) {
	var fitW, fitH int
	if w*srcH <= h*srcW {
		fitW = w
		fitH = srcH * w / srcW
	} else {
		fitH = h
		fitW = srcW * h / srcH
	}
	return max(1, fitW), max(1, fitH)
}

// Crop copies r out of img into a new image whose bounds start at the origin.
func Crop(img *image.NRGBA, r image.Rectangle) *image.NRGBA {
	r = r.Intersect(img.Bounds())
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		i := img.PixOffset(r.Min.X, r.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+r.Dx()*4], img.Pix[i:i+r.Dx()*4])
	}
	return dst
}

// paste copies src into dst with its origin at p. Samples are copied as-is,
// so straight alpha survives untouched.
func paste(dst, src *image.NRGBA, p image.Point) {
	r := src.Bounds().Sub(src.Bounds().Min).Add(p).Intersect(dst.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		si := src.PixOffset(src.Bounds().Min.X+r.Min.X-p.X, src.Bounds().Min.Y+y-p.Y)
		di := dst.PixOffset(r.Min.X, y)
		copy(dst.Pix[di:di+r.Dx()*4], src.Pix[si:si+r.Dx()*4])
	}
}

// ToNRGBA returns an origin-anchored NRGBA copy of img.
func ToNRGBA(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// Opaque returns an origin-anchored copy of img with every alpha sample
// forced to 255, keeping the stored color values.
func Opaque(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 255
	}
	return dst
}

// AlphaChannel extracts the alpha samples of img.
func AlphaChannel(img *image.NRGBA) *image.Alpha {
	b := img.Bounds()
	mask := image.NewAlpha(b)
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		dst := mask.Pix[y*mask.Stride : y*mask.Stride+b.Dx()]
		for x := range dst {
			dst[x] = src[x*4+3]
		}
	}
	return mask
}

// SetAlphaChannel overwrites the alpha samples of img with mask. Both must
// share the same bounds.
func SetAlphaChannel(img *image.NRGBA, mask *image.Alpha) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		dst := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		src := mask.Pix[y*mask.Stride : y*mask.Stride+b.Dx()]
		for x, a := range src {
			dst[x*4+3] = a
		}
	}
}
