package raster

import (
	"image"
	"math"
)

// PoseLandmarkCount is the cardinality of a body pose result (MediaPipe
// BlazePose topology).
const PoseLandmarkCount = 33

// VisibilityThreshold is the minimum visibility a landmark needs, exclusive,
// to take part in the person bounding box.
const VisibilityThreshold = 0.5

// Landmark is a pose keypoint in normalized image coordinates.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

// AlphaBounds returns the smallest rectangle holding every pixel of img with
// a non-zero alpha. A fully transparent image yields its full bounds.
func AlphaBounds(img *image.NRGBA) image.Rectangle {
	b := img.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			if row[x*4+3] == 0 {
				continue
			}
			px := b.Min.X + x
			minX = min(minX, px)
			maxX = max(maxX, px)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}

	if maxX < minX {
		return b
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// LandmarkBounds returns the region of a w x h image covered by the visible
// landmarks, padded by 10% of its width on each side and 5% of its height on
// top and bottom, clamped to the image. Poses without a visible point, or
// whose visible points collapse onto a line, yield the full image.
func LandmarkBounds(points []Landmark, w, h int) image.Rectangle {
	full := image.Rect(0, 0, w, h)

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	visible := 0
	for _, p := range points {
		if p.Visibility <= VisibilityThreshold {
			continue
		}
		visible++
		px, py := p.X*float64(w), p.Y*float64(h)
		minX, maxX = math.Min(minX, px), math.Max(maxX, px)
		minY, maxY = math.Min(minY, py), math.Max(maxY, py)
	}
	if visible == 0 {
		return full
	}

	x0, x1 := int(minX), int(maxX)
	y0, y1 := int(minY), int(maxY)
	padX := int(float64(x1-x0) * 0.1)
	padY := int(float64(y1-y0) * 0.05)

	box := image.Rectangle{
		Min: image.Pt(max(0, x0-padX), max(0, y0-padY)),
		Max: image.Pt(min(w, x1+padX), min(h, y1+padY)),
	}.Intersect(full)
	if box.Empty() {
		return full
	}
	return box
}
