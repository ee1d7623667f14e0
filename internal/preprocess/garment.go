package preprocess

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/dunamismax/tryonflow/internal/raster"
)

// GarmentPipeline isolates a garment from its background and centers it on
// a transparent canvas.
type GarmentPipeline struct {
	remover BackgroundRemover
	logger  *zap.Logger
}

func NewGarmentPipeline(remover BackgroundRemover, logger *zap.Logger) *GarmentPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GarmentPipeline{remover: remover, logger: logger.Named("garment")}
}

// Process decodes data and runs it through ProcessImage.
func (p *GarmentPipeline) Process(ctx context.Context, data []byte) (*image.NRGBA, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	return p.ProcessImage(ctx, img)
}

// ProcessImage removes the background, crops to the remaining foreground,
// cleans the alpha edge and fits the result onto a transparent canvas.
func (p *GarmentPipeline) ProcessImage(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	if p.remover == nil {
		return nil, errors.New("background removal: no remover configured")
	}

	removed, err := p.remover.RemoveBackground(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("background removal: %w", err)
	}
	if removed == nil || removed.Bounds().Empty() {
		return nil, errors.New("background removal: empty result")
	}

	box := raster.AlphaBounds(removed)
	if !hasForeground(removed) {
		p.logger.Warn("no foreground after background removal, keeping full frame",
			zap.Int("width", removed.Bounds().Dx()),
			zap.Int("height", removed.Bounds().Dy()),
		)
	}

	cropped := raster.Crop(removed, box)
	raster.SetAlphaChannel(cropped, raster.CleanAlpha(raster.AlphaChannel(cropped)))

	p.logger.Debug("garment cropped",
		zap.Stringer("box", box),
		zap.Int("source_width", img.Bounds().Dx()),
		zap.Int("source_height", img.Bounds().Dy()),
	)
	return raster.FitCanvas(cropped, raster.CanvasWidth, raster.CanvasHeight, raster.Transparent), nil
}
