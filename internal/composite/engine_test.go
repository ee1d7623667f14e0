package composite

import (
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunamismax/tryonflow/internal/raster"
)

func TestRegionForCanvas(t *testing.T) {
	assert.Equal(t, image.Rect(153, 204, 613, 664), Region(raster.CanvasWidth, raster.CanvasHeight))
}

func TestCompositeKeepsPersonDimensions(t *testing.T) {
	person := solid(raster.CanvasWidth, raster.CanvasHeight, raster.White)
	garments := []image.Point{{X: 1, Y: 1}, {X: 5, Y: 900}, {X: 2000, Y: 50}, {X: 768, Y: 1024}}

	engine := NewEngine()
	for _, size := range garments {
		out, err := engine.Composite(person, solid(size.X, size.Y, color.NRGBA{R: 80, G: 80, B: 80, A: 255}))
		require.NoError(t, err)
		assert.Equal(t, person.Bounds(), out.Bounds(), "garment %v", size)
	}

	small := solid(37, 91, raster.White)
	out, err := engine.Composite(small, solid(300, 300, color.NRGBA{R: 1, G: 2, B: 3, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, small.Bounds(), out.Bounds())
}

func TestCompositeCenteredSquareScenario(t *testing.T) {
	fill := color.NRGBA{R: 40, G: 90, B: 160, A: 255}
	garment := solid(raster.CanvasWidth, raster.CanvasHeight, raster.Transparent)
	for y := 256; y < 768; y++ {
		for x := 192; x < 576; x++ {
			garment.SetNRGBA(x, y, fill)
		}
	}
	person := solid(raster.CanvasWidth, raster.CanvasHeight, raster.White)

	out, err := NewEngine().Composite(person, garment)
	require.NoError(t, err)

	region := Region(raster.CanvasWidth, raster.CanvasHeight)
	for y := 0; y < raster.CanvasHeight; y++ {
		for x := 0; x < raster.CanvasWidth; x++ {
			if image.Pt(x, y).In(region) {
				continue
			}
			require.Equal(t, raster.White, out.NRGBAAt(x, y), "pixel (%d,%d) outside the overlay changed", x, y)
		}
	}

	// Transparent garment background stays transparent after the blur.
	assert.Equal(t, raster.White, out.NRGBAAt(region.Min.X, region.Min.Y))

	// The square dominates the centre; the white canvas is far brighter than
	// the mostly transparent garment, so the correction saturates at 1.3.
	center := out.NRGBAAt(region.Min.X+region.Dx()/2, region.Min.Y+region.Dy()/2)
	assert.InDelta(t, 52, int(center.R), 1)
	assert.InDelta(t, 117, int(center.G), 1)
	assert.InDelta(t, 208, int(center.B), 1)
	assert.Equal(t, uint8(255), center.A)

	// The input canvas is never written to.
	assert.Equal(t, raster.White, person.NRGBAAt(region.Min.X+region.Dx()/2, region.Min.Y+region.Dy()/2))
}

func TestCompositeKeysOpaqueGarmentByLuminance(t *testing.T) {
	garment := solid(200, 200, color.NRGBA{A: 255})
	for y := 50; y < 150; y++ {
		for x := 50; x < 150; x++ {
			garment.SetNRGBA(x, y, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	person := solid(raster.CanvasWidth, raster.CanvasHeight, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	for y := 0; y < raster.CanvasHeight; y++ {
		for x := 0; x < raster.CanvasWidth/2; x++ {
			person.SetNRGBA(x, y, color.NRGBA{R: 60, G: 60, B: 60, A: 255})
		}
	}

	out, err := NewEngine().Composite(person, garment)
	require.NoError(t, err)

	region := Region(raster.CanvasWidth, raster.CanvasHeight)
	// Black garment border is background: the corner of the region is untouched.
	assert.Equal(t, person.NRGBAAt(region.Min.X, region.Min.Y), out.NRGBAAt(region.Min.X, region.Min.Y))
	assert.Equal(t, person.NRGBAAt(region.Max.X-1, region.Max.Y-1), out.NRGBAAt(region.Max.X-1, region.Max.Y-1))
	// The grey square lands in the centre of the region.
	assert.NotEqual(t, person.NRGBAAt(region.Min.X+region.Dx()/2-5, region.Min.Y+region.Dy()/2),
		out.NRGBAAt(region.Min.X+region.Dx()/2-5, region.Min.Y+region.Dy()/2))
}

func TestCompositeIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	garment := image.NewNRGBA(image.Rect(0, 0, 120, 160))
	rng.Read(garment.Pix)
	person := image.NewNRGBA(image.Rect(0, 0, 300, 400))
	rng.Read(person.Pix)

	engine := NewEngine()
	first, err := engine.Composite(person, garment)
	require.NoError(t, err)
	second, err := engine.Composite(person, garment)
	require.NoError(t, err)
	assert.Equal(t, first.Pix, second.Pix)
}

func TestCompositeRejectsEmptyRegion(t *testing.T) {
	_, err := NewEngine().Composite(solid(1, 1, raster.White), solid(10, 10, raster.White))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRegion))

	_, err = NewEngine().Composite(solid(100, 100, raster.White), image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	assert.True(t, errors.Is(err, ErrRegion))
}

func TestColorRatioIsClamped(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pairs := [][2]ColorProfile{
		{{255, 255, 255}, {0, 0, 0}},
		{{0, 0, 0}, {255, 255, 255}},
		{{0, 0, 0}, {0, 0, 0}},
		{{1e-9, 128, 255}, {1e-9, 1e-12, 1e-6}},
		{{100, 100, 100}, {100, 100, 100}},
	}
	for i := 0; i < 200; i++ {
		var p, g ColorProfile
		for c := range p {
			p[c] = rng.Float64() * 255
			g[c] = rng.Float64() * rng.Float64() * 255
		}
		pairs = append(pairs, [2]ColorProfile{p, g})
	}

	for _, pair := range pairs {
		for c, r := range ColorRatio(pair[0], pair[1]) {
			require.GreaterOrEqual(t, r, 0.7, "pair %v channel %d", pair, c)
			require.LessOrEqual(t, r, 1.3, "pair %v channel %d", pair, c)
		}
	}

	assert.InDelta(t, 1.0, ColorRatio(ColorProfile{100, 100, 100}, ColorProfile{100, 100, 100})[0], 1e-6)
}

func TestProfileMeans(t *testing.T) {
	img := solid(4, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	img.SetNRGBA(0, 0, color.NRGBA{R: 90, G: 20, B: 30, A: 255})
	p := Profile(img, img.Bounds())
	assert.InDelta(t, 20, p[0], 1e-9)
	assert.InDelta(t, 20, p[1], 1e-9)
	assert.InDelta(t, 30, p[2], 1e-9)
}

func BenchmarkComposite(b *testing.B) {
	person := solid(raster.CanvasWidth, raster.CanvasHeight, raster.White)
	garment := solid(raster.CanvasWidth, raster.CanvasHeight, color.NRGBA{R: 30, G: 60, B: 90, A: 200})
	engine := NewEngine()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Composite(person, garment); err != nil {
			b.Fatalf("composite: %v", err)
		}
	}
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}
