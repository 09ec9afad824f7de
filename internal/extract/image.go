package extract

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"

	// Registers decoders for the formats recognition accepts as-is.
	_ "image/jpeg"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// ImageExtensions lists the raster inputs routed to recognition.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".tiff", ".bmp"}

// IsImageExtension reports whether ext (with leading dot) is a supported
// raster format. Matching is case-insensitive.
func IsImageExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range ImageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// LoadImage reads an image file and normalizes it for recognition.
func LoadImage(path string, ext string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return NormalizeImage(data, ext)
}

// NormalizeImage re-encodes BMP and TIFF rasters as PNG. PNG and JPEG are
// validated and passed through unchanged.
func NormalizeImage(data []byte, ext string) ([]byte, error) {
	var (
		img image.Image
		err error
	)

	switch strings.ToLower(ext) {
	case ".bmp":
		img, err = bmp.Decode(bytes.NewReader(data))
	case ".tif", ".tiff":
		img, err = tiff.Decode(bytes.NewReader(data))
	case ".png", ".jpg", ".jpeg":
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("invalid %s image: %w", ext, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported image type %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image: %w", ext, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
