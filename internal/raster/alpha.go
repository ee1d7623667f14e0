package raster

import "image"

// CleanAlpha smooths an alpha mask with a morphological closing, which fills
// pinholes, followed by an opening, which drops isolated specks. Both use a
// 3x3 square structuring element. The result is idempotent: cleaning an
// already cleaned mask returns it unchanged.
func CleanAlpha(mask *image.Alpha) *image.Alpha {
	b := mask.Bounds()
	out := image.NewAlpha(b)
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return out
	}

	pix := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		copy(pix[y*w:(y+1)*w], mask.Pix[y*mask.Stride:y*mask.Stride+w])
	}

	pix = closeOpen(pix, w, h)

	for y := 0; y < h; y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+w], pix[y*w:(y+1)*w])
	}
	return out
}
