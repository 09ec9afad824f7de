package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/adverant/nexus/bharatdoc-worker/internal/extract"
	"github.com/adverant/nexus/bharatdoc-worker/internal/layout"
	"github.com/adverant/nexus/bharatdoc-worker/internal/ocr"
)

// DefaultMinDigitalTextLength is the stripped text length at which a page's
// native text layer is trusted.
const DefaultMinDigitalTextLength = 100

// PageClass is the outcome of page classification.
type PageClass string

const (
	ClassDigital PageClass = "digital"
	ClassScanned PageClass = "scanned"
)

// ClassifyPage decides whether the native text layer suffices. Pages whose
// stripped text has fewer than minLength characters go to recognition.
func ClassifyPage(text string, minLength int) PageClass {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minLength {
		return ClassScanned
	}
	return ClassDigital
}

// LanguageIdentifier names the language of a text unit, or "unknown".
type LanguageIdentifier interface {
	CodeOrUnknown(text string) string
}

// NativeBlocks adapts text-layer words to layout blocks. Confidence is
// fixed at 1.0.
func NativeBlocks(words []extract.Word, languages LanguageIdentifier) []layout.Block {
	blocks := make([]layout.Block, 0, len(words))
	for _, w := range words {
		if w.Text == "" {
			continue
		}
		blocks = append(blocks, layout.Block{
			BBox:       w.BBox,
			Text:       w.Text,
			Language:   languages.CodeOrUnknown(w.Text),
			Confidence: layout.NativeConfidence,
		})
	}
	return blocks
}

// RecognitionBlocks adapts recognized lines to layout blocks, keeping the
// engine's score as confidence.
func RecognitionBlocks(lines []ocr.Line, languages LanguageIdentifier) []layout.Block {
	blocks := make([]layout.Block, 0, len(lines))
	for _, l := range lines {
		if l.Text == "" {
			continue
		}
		blocks = append(blocks, layout.Block{
			BBox:       l.BBox,
			Text:       l.Text,
			Language:   languages.CodeOrUnknown(l.Text),
			Confidence: l.Confidence,
		})
	}
	return blocks
}
