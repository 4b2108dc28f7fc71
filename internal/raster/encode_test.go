package raster

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"out.png", FormatPNG},
		{"OUT.PNG", FormatPNG},
		{"/tmp/a/cut.jpg", FormatJPEG},
		{"cut.jpeg", FormatJPEG},
		{"cut.gif", FormatGIF},
		{"cut.bmp", FormatBMP},
		{"cut.tif", FormatTIFF},
		{"cut.tiff", FormatTIFF},
		{"cut.pdf", FormatPDF},
		{"cut.svg", FormatUnknown},
		{"cut", FormatUnknown},
		{"", FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := FormatFromPath(tt.path); got != tt.want {
				t.Errorf("FormatFromPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestFormatString(t *testing.T) {
	if FormatTIFF.String() != "tiff" {
		t.Errorf("FormatTIFF.String() = %q", FormatTIFF.String())
	}
	if Format(42).String() != "unknown" {
		t.Errorf("Format(42).String() = %q", Format(42).String())
	}
}

func testImage() *image.Gray {
	g := NewGray(40, 30)
	g.DrawLine(Point{X: 2, Y: 2}, Point{X: 37, Y: 27}, 120, 3)
	return g.Image()
}

func TestEncodePNGRoundTripKeepsPixels(t *testing.T) {
	img := testImage()

	var buf bytes.Buffer
	if err := Encode(&buf, img, FormatPNG, EncodeOptions{}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode failed: %v", err)
	}
	gray, ok := decoded.(*image.Gray)
	if !ok {
		t.Fatalf("decoded %T, want *image.Gray", decoded)
	}
	if !bytes.Equal(gray.Pix, img.Pix) {
		t.Error("decoded pixels differ from source")
	}
}

func TestEncodeBMPAndTIFFDecode(t *testing.T) {
	img := testImage()

	var bbuf bytes.Buffer
	if err := Encode(&bbuf, img, FormatBMP, EncodeOptions{}); err != nil {
		t.Fatalf("bmp encode: %v", err)
	}
	if m, err := bmp.Decode(&bbuf); err != nil {
		t.Errorf("bmp decode: %v", err)
	} else if m.Bounds() != img.Bounds() {
		t.Errorf("bmp bounds = %v, want %v", m.Bounds(), img.Bounds())
	}

	var tbuf bytes.Buffer
	if err := Encode(&tbuf, img, FormatTIFF, EncodeOptions{}); err != nil {
		t.Fatalf("tiff encode: %v", err)
	}
	if m, err := tiff.Decode(&tbuf); err != nil {
		t.Errorf("tiff decode: %v", err)
	} else if m.Bounds() != img.Bounds() {
		t.Errorf("tiff bounds = %v, want %v", m.Bounds(), img.Bounds())
	}
}

func TestEncodeLossyFormats(t *testing.T) {
	for _, f := range []Format{FormatJPEG, FormatGIF} {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, testImage(), f, EncodeOptions{JPEGQuality: 80}); err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if buf.Len() == 0 {
				t.Error("expected encoded bytes")
			}
		})
	}
}

func TestEncodePDF(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, testImage(), FormatPDF, EncodeOptions{PageWidth: 0.4, PageHeight: 0.3})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Errorf("output does not start with a PDF header: %q", buf.Bytes()[:8])
	}
}

func TestEncodePDFEmptyImage(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, image.NewGray(image.Rect(0, 0, 0, 0)), FormatPDF, EncodeOptions{})
	if err == nil {
		t.Error("expected error for empty page")
	}
}

func TestEncodeUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, testImage(), FormatUnknown, EncodeOptions{})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}
