package preprocess

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dunamismax/tryonflow/internal/codec"
	"github.com/dunamismax/tryonflow/internal/raster"
)

var errProvider = errors.New("provider unavailable")

type removerFunc func(ctx context.Context, img image.Image) (*image.NRGBA, error)

func (f removerFunc) RemoveBackground(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	return f(ctx, img)
}

type poseFunc func(ctx context.Context, img image.Image) ([]raster.Landmark, error)

func (f poseFunc) EstimatePose(ctx context.Context, img image.Image) ([]raster.Landmark, error) {
	return f(ctx, img)
}

// keyWhite treats pure white as background.
func keyWhite(_ context.Context, img image.Image) (*image.NRGBA, error) {
	out := raster.ToNRGBA(img)
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] == 255 && out.Pix[i+1] == 255 && out.Pix[i+2] == 255 {
			out.Pix[i+3] = 0
		}
	}
	return out, nil
}

func TestGarmentPipelineProducesTransparentCanvas(t *testing.T) {
	src := fill(600, 400, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	for y := 100; y < 300; y++ {
		for x := 200; x < 350; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 20, G: 40, B: 160, A: 255})
		}
	}

	out, err := NewGarmentPipeline(removerFunc(keyWhite), zap.NewNop()).Process(context.Background(), encode(t, src))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, raster.CanvasWidth, raster.CanvasHeight), out.Bounds())

	// The 150x200 crop has the canvas aspect ratio and fills it completely.
	assert.Equal(t, uint8(255), out.NRGBAAt(raster.CanvasWidth/2, raster.CanvasHeight/2).A)
	assert.Equal(t, uint8(255), out.NRGBAAt(raster.CanvasWidth/2, 5).A)
	assert.Equal(t, uint8(20), out.NRGBAAt(raster.CanvasWidth/2, raster.CanvasHeight/2).R)
}

func TestGarmentPipelineCentersNarrowGarment(t *testing.T) {
	src := fill(300, 300, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	for y := 0; y < 300; y++ {
		for x := 100; x < 150; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 90, G: 10, B: 10, A: 255})
		}
	}

	out, err := NewGarmentPipeline(removerFunc(keyWhite), nil).ProcessImage(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), out.NRGBAAt(0, 0).A)
	assert.Equal(t, uint8(0), out.NRGBAAt(raster.CanvasWidth-1, raster.CanvasHeight-1).A)
	assert.Equal(t, uint8(255), out.NRGBAAt(raster.CanvasWidth/2, raster.CanvasHeight/2).A)
}

func TestGarmentPipelineWithoutForegroundKeepsFrame(t *testing.T) {
	src := fill(120, 90, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	out, err := NewGarmentPipeline(removerFunc(keyWhite), nil).ProcessImage(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, raster.CanvasWidth, raster.CanvasHeight), out.Bounds())
	assert.False(t, hasForeground(out))
}

func TestGarmentPipelineErrors(t *testing.T) {
	failing := removerFunc(func(context.Context, image.Image) (*image.NRGBA, error) {
		return nil, errProvider
	})

	_, err := NewGarmentPipeline(failing, nil).Process(context.Background(), []byte("not an image"))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = NewGarmentPipeline(failing, nil).ProcessImage(context.Background(), fill(4, 4, raster.White))
	assert.ErrorIs(t, err, errProvider)
	assert.Contains(t, err.Error(), "background removal")
}

func TestPersonPipelineWithoutPoseUsesFullImage(t *testing.T) {
	noPose := poseFunc(func(context.Context, image.Image) ([]raster.Landmark, error) {
		return nil, nil
	})
	src := fill(500, 700, color.NRGBA{R: 120, G: 100, B: 90, A: 255})

	out, err := NewPersonPipeline(noPose, zap.NewNop()).Process(context.Background(), encode(t, src))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, raster.CanvasWidth, raster.CanvasHeight), out.Bounds())
	// 500x700 is height-limited: white margins at both sides.
	assert.Equal(t, raster.White, out.NRGBAAt(0, raster.CanvasHeight/2))
	assert.Equal(t, raster.White, out.NRGBAAt(raster.CanvasWidth-1, raster.CanvasHeight/2))
	assert.Equal(t, uint8(255), out.NRGBAAt(raster.CanvasWidth/2, raster.CanvasHeight/2).A)
}

func TestPersonPipelineFlattensBeforePose(t *testing.T) {
	var seen image.Image
	pose := poseFunc(func(_ context.Context, img image.Image) ([]raster.Landmark, error) {
		seen = img
		return nil, nil
	})
	src := fill(40, 40, color.NRGBA{R: 10, G: 20, B: 30, A: 0})

	_, err := NewPersonPipeline(pose, nil).ProcessImage(context.Background(), src)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.True(t, seen.(*image.NRGBA).Opaque())
}

func TestPersonPipelineCropsToLandmarks(t *testing.T) {
	src := fill(400, 400, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
	for y := 0; y < 400; y++ {
		for x := 200; x < 400; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 30, G: 30, B: 200, A: 255})
		}
	}
	pose := poseFunc(func(context.Context, image.Image) ([]raster.Landmark, error) {
		points := make([]raster.Landmark, raster.PoseLandmarkCount)
		points[0] = raster.Landmark{X: 0.6, Y: 0.1, Visibility: 0.9}
		points[1] = raster.Landmark{X: 0.9, Y: 0.9, Visibility: 0.9}
		return points, nil
	})

	out, err := NewPersonPipeline(pose, nil).ProcessImage(context.Background(), src)
	require.NoError(t, err)
	c := out.NRGBAAt(raster.CanvasWidth/2, raster.CanvasHeight/2)
	assert.Greater(t, int(c.B), int(c.R), "crop should keep only the blue half")
}

func TestPersonPipelinePoseFailure(t *testing.T) {
	pose := poseFunc(func(context.Context, image.Image) ([]raster.Landmark, error) {
		return nil, errProvider
	})
	_, err := NewPersonPipeline(pose, nil).ProcessImage(context.Background(), fill(8, 8, raster.White))
	assert.ErrorIs(t, err, errProvider)
	assert.Contains(t, err.Error(), "pose estimation")
}

func TestPersonPipelineBackgroundBlur(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	src := image.NewNRGBA(image.Rect(0, 0, raster.CanvasWidth, raster.CanvasHeight))
	rng.Read(src.Pix)
	noPose := poseFunc(func(context.Context, image.Image) ([]raster.Landmark, error) {
		return nil, nil
	})
	leftHalf := removerFunc(func(_ context.Context, img image.Image) (*image.NRGBA, error) {
		mask := raster.ToNRGBA(img)
		for y := 0; y < mask.Bounds().Dy(); y++ {
			for x := 0; x < mask.Bounds().Dx(); x++ {
				a := uint8(0)
				if x < mask.Bounds().Dx()/2 {
					a = 255
				}
				mask.Pix[mask.PixOffset(x, y)+3] = a
			}
		}
		return mask, nil
	})

	sharp, err := NewPersonPipeline(noPose, nil).ProcessImage(context.Background(), src)
	require.NoError(t, err)

	blurPipeline := NewPersonPipeline(noPose, nil, WithBackgroundBlur(leftHalf))
	require.True(t, blurPipeline.BlursBackground())
	soft, err := blurPipeline.ProcessImage(context.Background(), src)
	require.NoError(t, err)

	changed := 0
	for y := 0; y < raster.CanvasHeight; y++ {
		for x := 0; x < raster.CanvasWidth; x++ {
			if x < raster.CanvasWidth/2 {
				require.Equal(t, sharp.NRGBAAt(x, y), soft.NRGBAAt(x, y), "foreground pixel (%d,%d) changed", x, y)
				continue
			}
			if sharp.NRGBAAt(x, y) != soft.NRGBAAt(x, y) {
				changed++
			}
		}
	}
	assert.Greater(t, changed, raster.CanvasWidth*raster.CanvasHeight/4)
}

func TestPersonPipelineSegmentationFailure(t *testing.T) {
	noPose := poseFunc(func(context.Context, image.Image) ([]raster.Landmark, error) {
		return nil, nil
	})
	failing := removerFunc(func(context.Context, image.Image) (*image.NRGBA, error) {
		return nil, errProvider
	})

	_, err := NewPersonPipeline(noPose, nil, WithBackgroundBlur(failing)).ProcessImage(context.Background(), fill(16, 16, raster.White))
	assert.ErrorIs(t, err, errProvider)
}

func fill(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	data, err := codec.EncodePNG(img)
	require.NoError(t, err)
	return data
}
