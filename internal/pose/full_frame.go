package pose

import (
	"context"
	"image"

	"github.com/dunamismax/tryonflow/internal/raster"
)

// FullFrame never detects a pose, so person photos keep their whole frame.
type FullFrame struct{}

func (FullFrame) EstimatePose(ctx context.Context, _ image.Image) ([]raster.Landmark, error) {
	return nil, ctx.Err()
}
