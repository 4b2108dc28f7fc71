package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// ErrUnsupportedFormat is returned when no codec is registered for a target.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format identifies an output codec.
type Format int

const (
	// FormatUnknown means the format could not be determined.
	FormatUnknown Format = iota
	// FormatPNG is lossless PNG, the default for previews.
	FormatPNG
	// FormatJPEG is baseline JPEG.
	FormatJPEG
	// FormatGIF is a paletted GIF.
	FormatGIF
	// FormatBMP is an uncompressed Windows bitmap.
	FormatBMP
	// FormatTIFF is a deflate-compressed TIFF.
	FormatTIFF
	// FormatPDF is a single-page PDF with the raster embedded at physical size.
	FormatPDF
)

// String returns the canonical file extension of the format without the dot.
func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpeg"
	case FormatGIF:
		return "gif"
	case FormatBMP:
		return "bmp"
	case FormatTIFF:
		return "tiff"
	case FormatPDF:
		return "pdf"
	default:
		return "unknown"
	}
}

// FormatFromPath derives the output format from a file name extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return FormatPNG
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".gif":
		return FormatGIF
	case ".bmp":
		return FormatBMP
	case ".tif", ".tiff":
		return FormatTIFF
	case ".pdf":
		return FormatPDF
	default:
		return FormatUnknown
	}
}

// EncodeOptions carries codec settings.
type EncodeOptions struct {
	// JPEGQuality is the JPEG quality (1-100). Zero means 95.
	JPEGQuality int
	// PageWidth and PageHeight are the physical page size in inches used for
	// PDF output. Zero means derive from the image at 100 pixels per inch.
	PageWidth  float64
	PageHeight float64
}

// Encode writes img to w using the given format.
func Encode(w io.Writer, img image.Image, format Format, opts EncodeOptions) error {
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		q := opts.JPEGQuality
		if q <= 0 || q > 100 {
			q = 95
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	case FormatGIF:
		return gif.Encode(w, img, nil)
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatPDF:
		return encodePDF(w, img, opts)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// encodePDF embeds the raster as a PNG on a page the size of the canvas.
func encodePDF(w io.Writer, img image.Image, opts EncodeOptions) error {
	b := img.Bounds()
	pw, ph := opts.PageWidth, opts.PageHeight
	if pw <= 0 {
		pw = float64(b.Dx()) / 100
	}
	if ph <= 0 {
		ph = float64(b.Dy()) / 100
	}
	if pw <= 0 || ph <= 0 {
		return fmt.Errorf("pdf: empty page %gx%g", pw, ph)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("pdf: encode page image: %w", err)
	}

	// Portrait keeps Wd/Ht as given, whichever is larger.
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "in",
		Size:           gofpdf.SizeType{Wd: pw, Ht: ph},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	imgOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("canvas", imgOpts, &buf)
	pdf.ImageOptions("canvas", 0, 0, pw, ph, false, imgOpts, 0, "")
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("pdf: %w", err)
	}
	return pdf.Output(w)
}
