//go:build gocv && cgo

package raster

import (
	"image"

	"gocv.io/x/gocv"
)

func closeOpen(pix []uint8, w, h int) []uint8 {
	src, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, pix)
	if err != nil {
		return pix
	}
	defer src.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()

	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(src, &closed, gocv.MorphClose, kernel)

	opened := gocv.NewMat()
	defer opened.Close()
	gocv.MorphologyEx(closed, &opened, gocv.MorphOpen, kernel)

	return append([]uint8(nil), opened.ToBytes()...)
}

func equalizeLuma(luma []uint8, w, h int) {
	src, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, luma)
	if err != nil {
		clahe(luma, w, h, claheTiles, claheClipLimit)
		return
	}
	defer src.Close()

	c := gocv.NewCLAHEWithParams(claheClipLimit, image.Pt(claheTiles, claheTiles))
	defer c.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	c.Apply(src, &dst)

	copy(luma, dst.ToBytes())
}
