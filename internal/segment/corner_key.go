package segment

import (
	"context"
	"image"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/dunamismax/tryonflow/internal/raster"
)

const (
	DefaultTolerance = 0.08
	cornerPatch      = 4
)

// CornerKey removes a flat studio background without a model. The colors
// of the four corners are taken as background references; pixels close to
// any of them in CIE Lab become transparent, with a soft ramp up to twice
// the tolerance.
type CornerKey struct {
	Tolerance float64
}

func NewCornerKey(tolerance float64) *CornerKey {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &CornerKey{Tolerance: tolerance}
}

func (k *CornerKey) RemoveBackground(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	out := raster.ToNRGBA(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	if w == 0 || h == 0 {
		return out, nil
	}

	tol := k.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	refs := cornerColors(out)

	for y := 0; y < h; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := out.Pix[y*out.Stride : y*out.Stride+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			if px[3] == 0 {
				continue
			}
			c := colorful.Color{R: float64(px[0]) / 255, G: float64(px[1]) / 255, B: float64(px[2]) / 255}

			d := c.DistanceLab(refs[0])
			for _, ref := range refs[1:] {
				d = min(d, c.DistanceLab(ref))
			}

			switch {
			case d <= tol:
				px[3] = 0
			case d < 2*tol:
				px[3] = uint8(float64(px[3]) * (d - tol) / tol)
			}
		}
	}
	return out, nil
}

// cornerColors averages a small patch at each corner of img.
func cornerColors(img *image.NRGBA) [4]colorful.Color {
	b := img.Bounds()
	pw, ph := min(cornerPatch, b.Dx()), min(cornerPatch, b.Dy())
	origins := [4]image.Point{
		{X: 0, Y: 0},
		{X: b.Dx() - pw, Y: 0},
		{X: 0, Y: b.Dy() - ph},
		{X: b.Dx() - pw, Y: b.Dy() - ph},
	}

	var refs [4]colorful.Color
	for i, o := range origins {
		var r, g, bl float64
		for y := o.Y; y < o.Y+ph; y++ {
			for x := o.X; x < o.X+pw; x++ {
				px := img.Pix[img.PixOffset(x, y):]
				r += float64(px[0])
				g += float64(px[1])
				bl += float64(px[2])
			}
		}
		n := float64(pw*ph) * 255
		refs[i] = colorful.Color{R: r / n, G: g / n, B: bl / n}
	}
	return refs
}
