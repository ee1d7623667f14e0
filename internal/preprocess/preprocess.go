// Package preprocess turns raw garment and person uploads into the fixed
// size canvases consumed by the try-on backends.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/dunamismax/tryonflow/internal/codec"
	"github.com/dunamismax/tryonflow/internal/raster"
)

// ErrDecode marks input bytes that are not a supported image.
var ErrDecode = errors.New("input is not a decodable image")

// BackgroundRemover returns img with its background made transparent. The
// result has the same size as img.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, img image.Image) (*image.NRGBA, error)
}

// PoseEstimator returns the body landmarks of the most prominent person in
// img, or nil when no person was found.
type PoseEstimator interface {
	EstimatePose(ctx context.Context, img image.Image) ([]raster.Landmark, error)
}

func decode(data []byte) (image.Image, error) {
	img, _, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

func hasForeground(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			return true
		}
	}
	return false
}
