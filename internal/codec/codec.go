// Package codec converts between encoded image bytes and in-memory rasters.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatWebP = "webp"

	defaultJPEGQuality = 90
)

var (
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrWebPUnavailable   = errors.New("webp export requires govips build tag")
)

// Decode parses PNG, JPEG, GIF, WebP, BMP or TIFF data and reports the
// detected format name.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", errors.New("decode image: empty input")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("decode image: %s has no pixels", format)
	}
	return img, format, nil
}

// Encode serializes img. Quality applies to lossy formats only; values
// outside 1..100 select the default.
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch NormalizeFormat(format) {
	case FormatJPEG:
		if quality <= 0 || quality > 100 {
			quality = defaultJPEGQuality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case FormatWebP:
		return encodeWebP(img, quality)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return buf.Bytes(), nil
}

// EncodePNG is the lossless encoding every stored canvas uses.
func EncodePNG(img image.Image) ([]byte, error) {
	return Encode(img, FormatPNG, 0)
}

// NormalizeFormat maps common aliases onto the canonical format names.
// Unknown names are returned lower-cased so Encode can reject them.
func NormalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "jpg":
		return FormatJPEG
	case "", FormatPNG:
		return FormatPNG
	default:
		return format
	}
}

func ContentType(format string) string {
	switch NormalizeFormat(format) {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}
