package postprocess

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/adverant/nexus/bharatdoc-worker/internal/layout"
)

// Sentinel replaces every redacted substring.
const Sentinel = "[REDACTED]"

// Redaction categories.
const (
	CategoryPAN     = "PAN"
	CategoryAadhaar = "AADHAAR"
	CategoryUdyam   = "UDYAM"
	CategoryBankAC  = "BANK_AC"
)

// RedactedItem records one substring removed from block text.
type RedactedItem struct {
	Category string `json:"category" yaml:"category"`
	Value    string `json:"value" yaml:"value"`
}

type redactionPattern struct {
	category string
	re       *regexp.Regexp
	// bounded matches must not touch a letter, digit or underscore on
	// either side.
	bounded bool
}

// Evaluation order is the precedence order: a 12-digit run is claimed by
// AADHAAR before BANK_AC gets to see it. Digit runs use \p{Nd} so that
// Devanagari and other native digits are caught.
var redactionPatterns = []redactionPattern{
	{CategoryPAN, regexp.MustCompile(`[A-Z]{5}[0-9]{4}[A-Z]`), false},
	{CategoryAadhaar, regexp.MustCompile(`[0-9]{4}[\s\x{00A0}]?[0-9]{4}[\s\x{00A0}]?[0-9]{4}`), true},
	{CategoryUdyam, regexp.MustCompile(`UDYAM-[A-Z]{2}-\p{Nd}{2}-\p{Nd}{7}`), false},
	{CategoryBankAC, regexp.MustCompile(`\p{Nd}{9,18}`), true},
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// atBoundary reports whether text[start:end] is delimited by non-word runes.
// RE2's \b only understands ASCII word characters.
func atBoundary(text string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

// findAll returns the non-overlapping matches of p in text. A bounded
// candidate that fails the boundary check resumes the scan one rune later.
func (p redactionPattern) findAll(text string) []string {
	if !p.bounded {
		return p.re.FindAllString(text, -1)
	}
	var out []string
	for pos := 0; pos < len(text); {
		loc := p.re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if atBoundary(text, start, end) {
			out = append(out, text[start:end])
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return out
}

// replaceOne swaps the first occurrence of m in text for Sentinel. Bounded
// patterns skip occurrences embedded in a longer word.
func (p redactionPattern) replaceOne(text, m string) (string, bool) {
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], m)
		if i < 0 {
			break
		}
		start := from + i
		end := start + len(m)
		if !p.bounded || atBoundary(text, start, end) {
			return text[:start] + Sentinel + text[end:], true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return text, false
}

// RedactText scrubs sensitive identifiers from text.
//
// Every pattern is matched against the original text. Each match replaces one
// occurrence of its literal in the partially redacted text and is recorded,
// so repeated identifiers yield one item per occurrence. A match whose literal
// was already consumed by an earlier category is skipped.
func RedactText(text string) (string, []RedactedItem) {
	redacted := text
	found := make([]RedactedItem, 0)
	for _, p := range redactionPatterns {
		for _, m := range p.findAll(text) {
			var ok bool
			if redacted, ok = p.replaceOne(redacted, m); !ok {
				continue
			}
			found = append(found, RedactedItem{Category: p.category, Value: m})
		}
	}
	return redacted, found
}

// RedactBlocks returns new blocks with redacted text plus the ordered list of
// removed items. The input slice is not modified.
func RedactBlocks(blocks []layout.Block) ([]layout.Block, []RedactedItem) {
	out := make([]layout.Block, 0, len(blocks))
	found := make([]RedactedItem, 0)
	for _, b := range blocks {
		text, items := RedactText(b.Text)
		out = append(out, b.WithText(text))
		found = append(found, items...)
	}
	return out, found
}
