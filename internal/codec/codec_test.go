package codec

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 12, 7))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 7)
	}

	for _, format := range []string{"png", "jpg", "JPEG"} {
		data, err := Encode(src, format, 0)
		if err != nil {
			t.Fatalf("encode %s: %v", format, err)
		}

		img, detected, err := Decode(data)
		if err != nil {
			t.Fatalf("decode %s: %v", format, err)
		}
		if detected != NormalizeFormat(format) {
			t.Fatalf("expected detected format %q, got %q", NormalizeFormat(format), detected)
		}
		if img.Bounds().Dx() != 12 || img.Bounds().Dy() != 7 {
			t.Fatalf("unexpected bounds after %s round trip: %v", format, img.Bounds())
		}
	}
}

func TestEncodePNGIsLossless(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	src.SetNRGBA(1, 1, color.NRGBA{R: 10, G: 200, B: 30, A: 77})

	data, err := EncodePNG(src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	img, _, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := img.(*image.NRGBA)
	if !ok {
		t.Fatalf("expected *image.NRGBA, got %T", img)
	}
	if got.NRGBAAt(1, 1) != src.NRGBAAt(1, 1) {
		t.Fatalf("pixel changed: %v != %v", got.NRGBAAt(1, 1), src.NRGBAAt(1, 1))
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := Decode(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, _, err := Decode([]byte("definitely not an image")); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	_, err := Encode(image.NewNRGBA(image.Rect(0, 0, 1, 1)), "avif", 0)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"png":  "image/png",
		"jpg":  "image/jpeg",
		"webp": "image/webp",
		"":     "image/png",
	}
	for format, want := range cases {
		if got := ContentType(format); got != want {
			t.Fatalf("ContentType(%q) = %q, want %q", format, got, want)
		}
	}
}
