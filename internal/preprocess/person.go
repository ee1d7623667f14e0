package preprocess

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/dunamismax/tryonflow/internal/raster"
)

// Background blur uses a 21x21 kernel with sigma derived from its size.
const (
	backgroundBlurKernel = 21
	backgroundBlurSigma  = 0
	foregroundCutoff     = 128
)

// PersonPipeline crops a person photo to the detected body, boosts local
// contrast and centers it on a white canvas.
type PersonPipeline struct {
	pose      PoseEstimator
	segmenter BackgroundRemover
	logger    *zap.Logger
}

type PersonOption func(*PersonPipeline)

// WithBackgroundBlur blurs everything the segmenter does not mark as
// foreground. The segmenter's alpha channel is read as the foreground mask.
func WithBackgroundBlur(segmenter BackgroundRemover) PersonOption {
	return func(p *PersonPipeline) {
		p.segmenter = segmenter
	}
}

func NewPersonPipeline(pose PoseEstimator, logger *zap.Logger, opts ...PersonOption) *PersonPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &PersonPipeline{pose: pose, logger: logger.Named("person")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PersonPipeline) BlursBackground() bool {
	return p.segmenter != nil
}

func (p *PersonPipeline) Process(ctx context.Context, data []byte) (*image.NRGBA, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	return p.ProcessImage(ctx, img)
}

func (p *PersonPipeline) ProcessImage(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	if p.pose == nil {
		return nil, errors.New("pose estimation: no estimator configured")
	}

	rgb := raster.Opaque(img)
	w, h := rgb.Bounds().Dx(), rgb.Bounds().Dy()

	landmarks, err := p.pose.EstimatePose(ctx, rgb)
	if err != nil {
		return nil, fmt.Errorf("pose estimation: %w", err)
	}
	if len(landmarks) == 0 {
		p.logger.Warn("no pose detected, keeping full frame", zap.Int("width", w), zap.Int("height", h))
	}

	box := raster.LandmarkBounds(landmarks, w, h)
	enhanced := raster.ToNRGBA(raster.EnhanceContrast(raster.Crop(rgb, box)))

	if p.segmenter != nil {
		mask, err := p.segmenter.RemoveBackground(ctx, enhanced)
		if err != nil {
			return nil, fmt.Errorf("background segmentation: %w", err)
		}
		if mask == nil || mask.Bounds().Size() != enhanced.Bounds().Size() {
			return nil, errors.New("background segmentation: mask size does not match image")
		}
		enhanced = blurBackground(enhanced, mask)
	}

	p.logger.Debug("person cropped",
		zap.Stringer("box", box),
		zap.Int("landmarks", len(landmarks)),
		zap.Bool("background_blur", p.segmenter != nil),
	)
	return raster.FitCanvas(enhanced, raster.CanvasWidth, raster.CanvasHeight, raster.White), nil
}

// blurBackground keeps pixels whose mask alpha is above one half and takes
// the rest from a blurred copy of img.
func blurBackground(img, mask *image.NRGBA) *image.NRGBA {
	blurred := raster.BlurNRGBA(img, backgroundBlurKernel, backgroundBlurSigma)
	out := raster.ToNRGBA(img)

	outBounds, maskBounds := out.Bounds(), mask.Bounds()
	for y := 0; y < outBounds.Dy(); y++ {
		mi := mask.PixOffset(maskBounds.Min.X, maskBounds.Min.Y+y)
		for x := 0; x < outBounds.Dx(); x++ {
			if mask.Pix[mi+x*4+3] >= foregroundCutoff {
				continue
			}
			i := y*out.Stride + x*4
			copy(out.Pix[i:i+3], blurred.Pix[y*blurred.Stride+x*4:y*blurred.Stride+x*4+3])
		}
	}
	return out
}
