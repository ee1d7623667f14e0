// Package composite overlays a garment onto a person canvas without a
// generative model. The result is a deterministic function of its two inputs.
package composite

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/floats"

	"github.com/dunamismax/tryonflow/internal/raster"
)

// Fixed overlay placement as fractions of the person canvas. The region sits
// over the upper torso and does not follow detected landmarks.
const (
	regionX      = 0.2
	regionY      = 0.2
	regionWidth  = 0.6
	regionHeight = 0.45
)

const (
	lumaThreshold = 10
	blurKernel    = 21
	blurSigma     = 11
	ratioMin      = 0.7
	ratioMax      = 1.3
	ratioEpsilon  = 1e-6
)

// ErrRegion reports overlay geometry that leaves nothing to blend.
var ErrRegion = errors.New("composite region is empty")

// ColorProfile holds the per-channel mean intensity (R, G, B) of a region.
type ColorProfile [3]float64

// Engine is stateless; the zero value is ready to use.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Region returns the unclipped overlay rectangle for a w x h person canvas.
func Region(w, h int) image.Rectangle {
	x0 := int(regionX * float64(w))
	y0 := int(regionY * float64(h))
	return image.Rect(x0, y0, x0+int(regionWidth*float64(w)), y0+int(regionHeight*float64(h)))
}

// Composite resizes garment into the torso region of person, derives a
// softened alpha, matches the garment colors to the covered area and blends
// the two. Pixels outside the region are copied from person unchanged.
func (e *Engine) Composite(person, garment image.Image) (*image.NRGBA, error) {
	result := raster.Opaque(person)
	pw, ph := result.Bounds().Dx(), result.Bounds().Dy()

	region := Region(pw, ph)
	if region.Dx() <= 0 || region.Dy() <= 0 {
		return nil, fmt.Errorf("%w: person canvas %dx%d", ErrRegion, pw, ph)
	}
	if garment.Bounds().Empty() {
		return nil, fmt.Errorf("%w: garment image is empty", ErrRegion)
	}

	tw, th := region.Dx(), region.Dy()
	resized := imaging.Resize(garment, tw, th, imaging.Lanczos)
	alpha := raster.GaussianBlur(garmentAlpha(resized, hasAlpha(garment)), tw, th, blurKernel, blurSigma)

	clipped := region.Intersect(result.Bounds())
	if clipped.Empty() {
		return nil, fmt.Errorf("%w: region %v outside canvas %dx%d", ErrRegion, region, pw, ph)
	}
	cw, ch := clipped.Dx(), clipped.Dy()

	// The overlay always starts at the region origin, so clipping only ever
	// trims the garment's right and bottom edges.
	garmentRect := image.Rect(0, 0, cw, ch)
	ratio := ColorRatio(Profile(result, clipped), Profile(resized, garmentRect))

	for y := 0; y < ch; y++ {
		gi := resized.PixOffset(0, y)
		pi := result.PixOffset(clipped.Min.X, clipped.Min.Y+y)
		for x := 0; x < cw; x++ {
			a := alpha[y*tw+x]
			for c := 0; c < 3; c++ {
				g := adjust(resized.Pix[gi+x*4+c], ratio[c])
				p := float64(result.Pix[pi+x*4+c])
				result.Pix[pi+x*4+c] = truncate(g*a + p*(1-a))
			}
		}
	}
	return result, nil
}

// ColorRatio is the per-channel correction that moves garment toward person,
// clamped to [0.7, 1.3].
func ColorRatio(person, garment ColorProfile) [3]float64 {
	var ratio [3]float64
	for c := range ratio {
		r := person[c] / (garment[c] + ratioEpsilon)
		ratio[c] = min(ratioMax, max(ratioMin, r))
	}
	return ratio
}

// Profile computes the mean of each color channel of img over r.
func Profile(img *image.NRGBA, r image.Rectangle) ColorProfile {
	r = r.Intersect(img.Bounds())
	n := r.Dx() * r.Dy()
	if n == 0 {
		return ColorProfile{}
	}

	channels := [3][]float64{make([]float64, 0, n), make([]float64, 0, n), make([]float64, 0, n)}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := img.PixOffset(r.Min.X, y)
		for x := 0; x < r.Dx(); x++ {
			for c := range channels {
				channels[c] = append(channels[c], float64(img.Pix[i+x*4+c]))
			}
		}
	}

	var p ColorProfile
	for c := range channels {
		p[c] = floats.Sum(channels[c]) / float64(n)
	}
	return p
}

// garmentAlpha returns the overlay opacity of every pixel in [0, 1]: the
// native alpha when the source carried one, otherwise a luminance key that
// treats near-black pixels as background.
func garmentAlpha(img *image.NRGBA, native bool) []float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	alpha := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			switch {
			case native:
				alpha[y*w+x] = float64(px[3]) / 255
			case luma(px[0], px[1], px[2]) > lumaThreshold:
				alpha[y*w+x] = 1
			}
		}
	}
	return alpha
}

// hasAlpha reports whether img carries transparency worth honoring. Fully
// opaque images are keyed by luminance instead.
func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return true
}

// luma is the fixed-point BT.601 grey level used for background keying.
func luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*4899 + uint32(g)*9617 + uint32(b)*1868 + 8192) >> 14)
}

func adjust(v uint8, ratio float64) float64 {
	return float64(truncate(float64(v) * ratio))
}

// truncate clamps to [0, 255] and drops the fractional part.
func truncate(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
