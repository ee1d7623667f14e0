package raster

import (
	"image"
	"image/color"
	"math"
)

const (
	claheTiles     = 8
	claheClipLimit = 2.0
)

// EnhanceContrast converts img to full-range YCbCr 4:4:4 and equalizes the
// luma plane with contrast-limited adaptive histogram equalization (8x8
// tiles, clip limit 2.0). The chroma planes are left exactly as converted so
// the enhancement never shifts hue. Alpha is ignored.
func EnhanceContrast(img image.Image) *image.YCbCr {
	src := ToNRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio444)

	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			yy, cb, cr := color.RGBToYCbCr(row[i], row[i+1], row[i+2])
			out.Y[out.YOffset(x, y)] = yy
			c := out.COffset(x, y)
			out.Cb[c] = cb
			out.Cr[c] = cr
		}
	}

	if w > 0 && h > 0 {
		equalizeLuma(out.Y, w, h)
	}
	return out
}

// clahe equalizes a packed w*h plane in place. Tile boundaries are spread
// evenly over the plane and each pixel is mapped by bilinear interpolation
// between the lookup tables of the four nearest tile centres.
func clahe(pix []uint8, w, h, tiles int, clipLimit float64) {
	tilesX, tilesY := min(tiles, w), min(tiles, h)
	edgesX := tileEdges(w, tilesX)
	edgesY := tileEdges(h, tilesY)

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			luts[ty*tilesX+tx] = tileLUT(pix, w, edgesX[tx], edgesX[tx+1], edgesY[ty], edgesY[ty+1], clipLimit)
		}
	}

	tileW := float64(w) / float64(tilesX)
	tileH := float64(h) / float64(tilesY)

	for y := 0; y < h; y++ {
		ty1, ty2, ya := interpTiles(y, tileH, tilesY)
		for x := 0; x < w; x++ {
			tx1, tx2, xa := interpTiles(x, tileW, tilesX)
			v := pix[y*w+x]

			top := (1-xa)*float64(luts[ty1*tilesX+tx1][v]) + xa*float64(luts[ty1*tilesX+tx2][v])
			bot := (1-xa)*float64(luts[ty2*tilesX+tx1][v]) + xa*float64(luts[ty2*tilesX+tx2][v])
			pix[y*w+x] = clampUint8(math.Round((1-ya)*top + ya*bot))
		}
	}
}

func tileEdges(n, tiles int) []int {
	edges := make([]int, tiles+1)
	for t := 0; t <= tiles; t++ {
		edges[t] = t * n / tiles
	}
	return edges
}

// interpTiles returns the two tiles whose centres bracket coordinate p and
// the weight of the second one.
func interpTiles(p int, tileSize float64, tiles int) (int, int, float64) {
	f := (float64(p)+0.5)/tileSize - 0.5
	t1 := int(math.Floor(f))
	weight := f - float64(t1)
	t2 := t1 + 1
	if t1 < 0 {
		t1 = 0
	}
	if t2 > tiles-1 {
		t2 = tiles - 1
	}
	if t1 > tiles-1 {
		t1 = tiles - 1
	}
	return t1, t2, weight
}

// tileLUT builds the clipped, equalized mapping of one tile. Counts above the
// clip limit are spread evenly over all bins, leftovers one bin at a time.
func tileLUT(pix []uint8, stride, x0, x1, y0, y1 int, clipLimit float64) [256]uint8 {
	var hist [256]int
	for y := y0; y < y1; y++ {
		for _, v := range pix[y*stride+x0 : y*stride+x1] {
			hist[v]++
		}
	}

	area := (x1 - x0) * (y1 - y0)
	limit := max(1, int(clipLimit*float64(area)/256))

	excess := 0
	for i := range hist {
		if hist[i] > limit {
			excess += hist[i] - limit
			hist[i] = limit
		}
	}

	batch := excess / 256
	residual := excess - batch*256
	for i := range hist {
		hist[i] += batch
	}
	if residual > 0 {
		step := max(1, 256/residual)
		for i := 0; i < 256 && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}

	var lut [256]uint8
	scale := 255.0 / float64(area)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = clampUint8(math.Round(float64(sum) * scale))
	}
	return lut
}

func clampUint8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
