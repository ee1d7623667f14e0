package raster

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitCanvasAlwaysReturnsRequestedSize(t *testing.T) {
	sizes := []image.Point{
		{X: 1, Y: 1},
		{X: 10, Y: 3000},
		{X: 3000, Y: 10},
		{X: 768, Y: 1024},
		{X: 1536, Y: 2048},
		{X: 333, Y: 777},
		{X: 2000, Y: 1999},
	}
	for _, size := range sizes {
		src := solidNRGBA(size.X, size.Y, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		out := FitCanvas(src, CanvasWidth, CanvasHeight, White)
		assert.Equal(t, image.Rect(0, 0, CanvasWidth, CanvasHeight), out.Bounds(), "source %v", size)
	}
}

func TestFitCanvasDownscaledImageTouchesCanvasEdge(t *testing.T) {
	src := solidNRGBA(2400, 1800, color.NRGBA{R: 200, G: 0, B: 0, A: 255})
	out := FitCanvas(src, CanvasWidth, CanvasHeight, White)

	// Width-limited: the image spans the full width and is centred vertically.
	fitW, fitH := fitSize(2400, 1800, CanvasWidth, CanvasHeight)
	require.Equal(t, CanvasWidth, fitW)
	require.Equal(t, 576, fitH)

	top := (CanvasHeight - fitH) / 2
	assert.Equal(t, White, out.NRGBAAt(0, 0))
	assert.Equal(t, White, out.NRGBAAt(CanvasWidth-1, top-1))
	assert.Equal(t, uint8(200), out.NRGBAAt(0, top+fitH/2).R)
	assert.Equal(t, uint8(200), out.NRGBAAt(CanvasWidth-1, top+fitH/2).R)
	assert.Equal(t, White, out.NRGBAAt(CanvasWidth/2, top+fitH))
}

func TestFitCanvasTransparentBackground(t *testing.T) {
	src := solidNRGBA(100, 400, color.NRGBA{R: 5, G: 6, B: 7, A: 255})
	out := FitCanvas(src, CanvasWidth, CanvasHeight, Transparent)

	assert.Equal(t, uint8(0), out.NRGBAAt(0, 0).A)
	assert.Equal(t, uint8(0), out.NRGBAAt(CanvasWidth-1, CanvasHeight-1).A)
	assert.Equal(t, uint8(255), out.NRGBAAt(CanvasWidth/2, CanvasHeight/2).A)
}

func TestFitSizeOffsetsAreFloored(t *testing.T) {
	fitW, fitH := fitSize(501, 1024, CanvasWidth, CanvasHeight)
	assert.Equal(t, 501, fitW)
	assert.Equal(t, 1024, fitH)
	assert.Equal(t, 133, (CanvasWidth-fitW)/2)
}

func TestAlphaBoundsTransparentImageIsFullBox(t *testing.T) {
	img := solidNRGBA(40, 30, color.NRGBA{R: 255, G: 255, B: 255, A: 0})
	assert.Equal(t, img.Bounds(), AlphaBounds(img))
}

func TestAlphaBoundsTightBox(t *testing.T) {
	img := solidNRGBA(40, 30, color.NRGBA{})
	img.SetNRGBA(5, 7, color.NRGBA{A: 1})
	img.SetNRGBA(20, 25, color.NRGBA{A: 255})
	assert.Equal(t, image.Rect(5, 7, 21, 26), AlphaBounds(img))

	cropped := Crop(img, AlphaBounds(img))
	assert.Equal(t, image.Rect(0, 0, 16, 19), cropped.Bounds())
	assert.Equal(t, uint8(1), cropped.NRGBAAt(0, 0).A)
	assert.Equal(t, uint8(255), cropped.NRGBAAt(15, 18).A)
}

func TestLandmarkBoundsLowVisibilityIsFullBox(t *testing.T) {
	points := make([]Landmark, PoseLandmarkCount)
	for i := range points {
		points[i] = Landmark{X: 0.4, Y: 0.5, Visibility: 0.5}
	}
	assert.Equal(t, image.Rect(0, 0, 640, 480), LandmarkBounds(points, 640, 480))
	assert.Equal(t, image.Rect(0, 0, 640, 480), LandmarkBounds(nil, 640, 480))
}

func TestLandmarkBoundsAsymmetricPadding(t *testing.T) {
	points := []Landmark{
		{X: 0.25, Y: 0.25, Visibility: 0.9},
		{X: 0.75, Y: 0.75, Visibility: 0.9},
		{X: 0.99, Y: 0.01, Visibility: 0.1},
	}
	// Box 50..150 x 25..75: pad 10 horizontally, 2 vertically.
	assert.Equal(t, image.Rect(40, 23, 160, 77), LandmarkBounds(points, 200, 100))
}

func TestLandmarkBoundsClampsToImage(t *testing.T) {
	points := []Landmark{
		{X: -0.2, Y: 0.01, Visibility: 1},
		{X: 1.3, Y: 1.2, Visibility: 1},
	}
	assert.Equal(t, image.Rect(0, 0, 100, 100), LandmarkBounds(points, 100, 100))
}

func TestLandmarkBoundsCollapsedPoseIsFullBox(t *testing.T) {
	points := []Landmark{{X: 0.5, Y: 0.5, Visibility: 0.8}}
	assert.Equal(t, image.Rect(0, 0, 100, 80), LandmarkBounds(points, 100, 80))
}

func TestCleanAlphaFillsHolesAndDropsSpecks(t *testing.T) {
	holed := filledAlpha(9, 9, 255)
	holed.SetAlpha(4, 4, color.Alpha{A: 0})
	cleaned := CleanAlpha(holed)
	assert.Equal(t, uint8(255), cleaned.AlphaAt(4, 4).A)

	speck := filledAlpha(9, 9, 0)
	speck.SetAlpha(4, 4, color.Alpha{A: 255})
	cleaned = CleanAlpha(speck)
	assert.Equal(t, uint8(0), cleaned.AlphaAt(4, 4).A)
}

func TestCleanAlphaIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		w, h := 1+rng.Intn(40), 1+rng.Intn(40)
		mask := image.NewAlpha(image.Rect(0, 0, w, h))
		for i := range mask.Pix {
			switch rng.Intn(3) {
			case 0:
				mask.Pix[i] = 0
			case 1:
				mask.Pix[i] = 255
			default:
				mask.Pix[i] = uint8(rng.Intn(256))
			}
		}

		once := CleanAlpha(mask)
		twice := CleanAlpha(once)
		require.Equal(t, mask.Bounds(), once.Bounds())
		require.Equal(t, once.Pix, twice.Pix, "trial %d (%dx%d)", trial, w, h)
	}
}

func TestEnhanceContrastPreservesChroma(t *testing.T) {
	w, h := 64, 48
	src := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.SetNRGBA(x, y, color.NRGBA{
				R: uint8(100 + x/4),
				G: uint8(110 + y/4),
				B: uint8(90 + (x+y)%20),
				A: 255,
			})
		}
	}

	out := EnhanceContrast(src)
	require.Equal(t, image.Rect(0, 0, w, h), out.Bounds())

	lumaChanged := false
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.NRGBAAt(x, y)
			yy, cb, cr := color.RGBToYCbCr(c.R, c.G, c.B)
			ci := out.COffset(x, y)
			require.Equal(t, cb, out.Cb[ci])
			require.Equal(t, cr, out.Cr[ci])
			if out.Y[out.YOffset(x, y)] != yy {
				lumaChanged = true
			}
		}
	}
	assert.True(t, lumaChanged, "low-contrast input should be stretched")
}

func TestGaussianKernelIsNormalized(t *testing.T) {
	kernel := GaussianKernel(21, 11)
	require.Len(t, kernel, 21)
	var sum float64
	for _, v := range kernel {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.InDelta(t, kernel[0], kernel[20], 1e-15)
}

func TestGaussianBlurKeepsConstantPlane(t *testing.T) {
	plane := make([]float64, 30*12)
	for i := range plane {
		plane[i] = 0.75
	}
	for _, v := range GaussianBlur(plane, 30, 12, 21, 11) {
		assert.InDelta(t, 0.75, v, 1e-9)
	}
}

func TestReflect101(t *testing.T) {
	assert.Equal(t, 1, reflect101(-1, 5))
	assert.Equal(t, 3, reflect101(5, 5))
	assert.Equal(t, 0, reflect101(-3, 1))
	assert.Equal(t, 2, reflect101(-10, 4))
}

func solidNRGBA(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func filledAlpha(w, h int, v uint8) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	for i := range mask.Pix {
		mask.Pix[i] = v
	}
	return mask
}
