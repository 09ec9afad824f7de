// Package language identifies the language of short text units.
package language

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"

	"github.com/adverant/nexus/bharatdoc-worker/internal/errors"
	"github.com/adverant/nexus/bharatdoc-worker/internal/layout"
)

// ErrUnavailable matches the LANGUAGE_DETECTION_UNAVAILABLE errors returned
// when text is too short or ambiguous to identify.
var ErrUnavailable = errors.ErrLanguageUnavailable

// Detector identifies ISO 639-1 language codes.
type Detector struct {
	// MinLetters is the number of letters required before detection is attempted.
	MinLetters int
}

// NewDetector returns a detector that needs at least one letter.
func NewDetector() *Detector {
	return &Detector{MinLetters: 1}
}

// Detect returns the language code of text or ErrUnavailable.
func (d *Detector) Detect(text string) (string, error) {
	code, _, err := d.DetectWithConfidence(text)
	return code, err
}

// DetectWithConfidence returns the language code together with the detector's score.
func (d *Detector) DetectWithConfidence(text string) (string, float64, error) {
	text = strings.TrimSpace(text)
	letters := countLetters(text)
	if letters < d.MinLetters {
		return "", 0, errors.NewLanguageUnavailableError(letters, "too few letters")
	}

	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return "", 0, errors.NewLanguageUnavailableError(letters, "no language identified")
	}
	return code, info.Confidence, nil
}

// CodeOrUnknown runs Detect and degrades failures to layout.LanguageUnknown.
func (d *Detector) CodeOrUnknown(text string) string {
	code, err := d.Detect(text)
	if err != nil {
		return layout.LanguageUnknown
	}
	return code
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
