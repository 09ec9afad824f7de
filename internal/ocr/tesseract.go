/**
 * Tesseract OCR - Recognition capability for scanned pages and images
 *
 * Wraps a gosseract client bound to one language and returns line-level
 * results: bounding box, text and a confidence score in [0, 1].
 */

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/bharatdoc-worker/internal/layout"
)

// Line is one recognized text line.
type Line struct {
	BBox       layout.BBox
	Text       string
	Confidence float64
}

// Engine recognizes text lines in an encoded raster image.
type Engine interface {
	Recognize(ctx context.Context, image []byte) ([]Line, error)
	Close() error
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Language       string // ISO 639-1 code, e.g. "en" or "hi"
	TessdataPrefix string
	DPI            int
}

// TesseractEngine performs OCR with a dedicated gosseract client.
// It is not safe for concurrent use; the Cache serializes access.
type TesseractEngine struct {
	client   *gosseract.Client
	language string
}

// languageCodes maps detector codes to Tesseract traineddata names.
var languageCodes = map[string]string{
	"en": "eng",
	"hi": "hin",
	"mr": "mar",
	"bn": "ben",
	"ta": "tam",
	"te": "tel",
	"gu": "guj",
	"kn": "kan",
	"pa": "pan",
}

// TesseractLanguage returns the traineddata name for an ISO 639-1 code.
func TesseractLanguage(code string) string {
	if name, ok := languageCodes[code]; ok {
		return name
	}
	return code
}

// NewTesseractEngine creates a Tesseract client for one language.
func NewTesseractEngine(cfg *TesseractConfig) (*TesseractEngine, error) {
	client := gosseract.NewClient()

	if cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(cfg.TessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}

	if err := client.SetLanguage(TesseractLanguage(cfg.Language)); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set language %s: %w", cfg.Language, err)
	}

	if cfg.DPI > 0 {
		if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(cfg.DPI)); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set dpi: %w", err)
		}
	}

	return &TesseractEngine{
		client:   client,
		language: cfg.Language,
	}, nil
}

// Recognize performs line-level OCR on image bytes (PNG, JPEG, TIFF, BMP).
func (t *TesseractEngine) Recognize(ctx context.Context, image []byte) ([]Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := t.client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	lines := make([]Line, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		lines = append(lines, Line{
			BBox: layout.BBox{
				X0: float64(b.Box.Min.X),
				Y0: float64(b.Box.Min.Y),
				X1: float64(b.Box.Max.X),
				Y1: float64(b.Box.Max.Y),
			},
			Text:       text,
			Confidence: normalizeConfidence(b.Confidence),
		})
	}

	return lines, nil
}

// Close releases the Tesseract client.
func (t *TesseractEngine) Close() error {
	return t.client.Close()
}

// normalizeConfidence converts Tesseract's 0-100 score to [0, 1].
func normalizeConfidence(score float64) float64 {
	c := score / 100.0
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
