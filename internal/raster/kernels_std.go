//go:build !gocv || !cgo

package raster

// closeOpen runs close then open with a 3x3 square element over a packed
// w*h plane. Neighbours outside the plane are skipped, matching OpenCV's
// default morphology border.
func closeOpen(pix []uint8, w, h int) []uint8 {
	closed := erode(dilate(pix, w, h), w, h)
	return dilate(erode(closed, w, h), w, h)
}

func dilate(pix []uint8, w, h int) []uint8 {
	return morph3x3(pix, w, h, func(a, b uint8) bool { return a > b })
}

func erode(pix []uint8, w, h int) []uint8 {
	return morph3x3(pix, w, h, func(a, b uint8) bool { return a < b })
}

// morph3x3 computes a separable 3x3 rank filter: each output keeps the
// neighbour that wins against all others under better.
func morph3x3(pix []uint8, w, h int, better func(a, b uint8) bool) []uint8 {
	rows := make([]uint8, len(pix))
	for y := 0; y < h; y++ {
		row := pix[y*w : (y+1)*w]
		dst := rows[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			v := row[x]
			if x > 0 && better(row[x-1], v) {
				v = row[x-1]
			}
			if x+1 < w && better(row[x+1], v) {
				v = row[x+1]
			}
			dst[x] = v
		}
	}

	out := make([]uint8, len(pix))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := rows[y*w+x]
			if y > 0 && better(rows[(y-1)*w+x], v) {
				v = rows[(y-1)*w+x]
			}
			if y+1 < h && better(rows[(y+1)*w+x], v) {
				v = rows[(y+1)*w+x]
			}
			out[y*w+x] = v
		}
	}
	return out
}

// equalizeLuma applies CLAHE to a packed w*h luma plane in place.
func equalizeLuma(luma []uint8, w, h int) {
	clahe(luma, w, h, claheTiles, claheClipLimit)
}
