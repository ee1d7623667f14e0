package pose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/dunamismax/tryonflow/internal/raster"
)

// Face is a detected face: its centre, the side of its square box in
// pixels and the detector's confidence.
type Face struct {
	Center  image.Point
	Size    int
	Quality float64
}

type FaceOptions struct {
	MinSize      int
	MaxSize      int
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	// MinQuality is the detector score a face must reach. A face exactly at
	// MinQuality maps to a landmark visibility of 0.5.
	MinQuality float64
}

func DefaultFaceOptions() FaceOptions {
	return FaceOptions{
		MinSize:      40,
		MaxSize:      2000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5,
	}
}

// FaceAnchoredEstimator approximates a body pose from the largest face in
// the frame. It places the 33 body landmarks on a standing figure whose
// proportions are derived from the head size, so the resulting box covers
// the likely body region below the face.
type FaceAnchoredEstimator struct {
	classifier *pigo.Pigo
	opts       FaceOptions
}

// LoadFaceAnchoredEstimator reads a pigo face cascade (such as
// "facefinder") from path.
func LoadFaceAnchoredEstimator(path string, opts FaceOptions) (*FaceAnchoredEstimator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read face cascade: %w", err)
	}
	return NewFaceAnchoredEstimator(data, opts)
}

func NewFaceAnchoredEstimator(cascade []byte, opts FaceOptions) (*FaceAnchoredEstimator, error) {
	if len(cascade) == 0 {
		return nil, errors.New("face cascade is empty")
	}
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack face cascade: %w", err)
	}
	return &FaceAnchoredEstimator{classifier: classifier, opts: withDefaults(opts)}, nil
}

func withDefaults(opts FaceOptions) FaceOptions {
	def := DefaultFaceOptions()
	if opts.MinSize <= 0 {
		opts.MinSize = def.MinSize
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = def.MaxSize
	}
	if opts.ShiftFactor <= 0 {
		opts.ShiftFactor = def.ShiftFactor
	}
	if opts.ScaleFactor <= 1 {
		opts.ScaleFactor = def.ScaleFactor
	}
	if opts.IoUThreshold <= 0 {
		opts.IoUThreshold = def.IoUThreshold
	}
	if opts.MinQuality <= 0 {
		opts.MinQuality = def.MinQuality
	}
	return opts
}

func (e *FaceAnchoredEstimator) EstimatePose(ctx context.Context, img image.Image) ([]raster.Landmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	face, ok := e.largestFace(raster.ToNRGBA(img))
	if !ok {
		return nil, nil
	}
	b := img.Bounds()
	return BodyLandmarks(face, b.Dx(), b.Dy(), e.opts.MinQuality), nil
}

func (e *FaceAnchoredEstimator) largestFace(img *image.NRGBA) (Face, bool) {
	cols, rows := img.Bounds().Dx(), img.Bounds().Dy()
	params := pigo.CascadeParams{
		MinSize:     e.opts.MinSize,
		MaxSize:     min(e.opts.MaxSize, max(cols, rows)),
		ShiftFactor: e.opts.ShiftFactor,
		ScaleFactor: e.opts.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(img),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	detections := e.classifier.RunCascade(params, 0)
	detections = e.classifier.ClusterDetections(detections, e.opts.IoUThreshold)

	var best Face
	found := false
	for _, d := range detections {
		q := float64(d.Q)
		if q < e.opts.MinQuality {
			continue
		}
		if !found || d.Scale > best.Size {
			best = Face{Center: image.Pt(d.Col, d.Row), Size: d.Scale, Quality: q}
			found = true
		}
	}
	return best, found
}

// bodyPoint is a landmark offset from the face centre in head heights.
type bodyPoint struct{ dx, dy float64 }

// Offsets follow the BlazePose landmark order. A standing adult is roughly
// seven and a half heads tall with the shoulders two heads wide.
var bodyLayout = [raster.PoseLandmarkCount]bodyPoint{
	{0, 0},                                         // nose
	{-0.12, -0.12}, {-0.18, -0.12}, {-0.24, -0.12}, // left eye
	{0.12, -0.12}, {0.18, -0.12}, {0.24, -0.12},    // right eye
	{-0.38, -0.05}, {0.38, -0.05},                  // ears
	{-0.1, 0.22}, {0.1, 0.22},                      // mouth
	{-1, 1.1}, {1, 1.1},                            // shoulders
	{-1.25, 2.3}, {1.25, 2.3},                      // elbows
	{-1.35, 3.4}, {1.35, 3.4},                      // wrists
	{-1.4, 3.65}, {1.4, 3.65},                      // pinkies
	{-1.3, 3.7}, {1.3, 3.7},                        // index fingers
	{-1.2, 3.55}, {1.2, 3.55},                      // thumbs
	{-0.65, 3.5}, {0.65, 3.5},                      // hips
	{-0.6, 5.1}, {0.6, 5.1},                        // knees
	{-0.55, 6.6}, {0.55, 6.6},                      // ankles
	{-0.55, 6.75}, {0.55, 6.75},                    // heels
	{-0.7, 6.85}, {0.7, 6.85},                      // foot index
}

// headToFace is the head height relative to the detected face box.
const headToFace = 1.35

// BodyLandmarks places a full body pose around face on a w x h image.
// Visibility is face.Quality/(face.Quality+minQuality); points that fall
// outside the frame are reported at half that.
func BodyLandmarks(face Face, w, h int, minQuality float64) []raster.Landmark {
	visibility := 0.0
	if face.Quality+minQuality > 0 {
		visibility = face.Quality / (face.Quality + minQuality)
	}
	head := float64(face.Size) * headToFace

	points := make([]raster.Landmark, raster.PoseLandmarkCount)
	for i, off := range bodyLayout {
		x := (float64(face.Center.X) + off.dx*head) / float64(w)
		y := (float64(face.Center.Y) + off.dy*head) / float64(h)
		v := visibility
		if x < 0 || x > 1 || y < 0 || y > 1 {
			v *= 0.5
		}
		points[i] = raster.Landmark{X: x, Y: y, Visibility: v}
	}
	return points
}
