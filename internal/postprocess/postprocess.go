/**
 * Layout Post-Processor
 *
 * Runs one deterministic pass over a page's raw blocks:
 *   1. watermark detection on the raw blocks
 *   2. redaction of every block (watermarks included)
 *   3. low-confidence flagging on the redacted blocks
 *   4. aggregation of non-watermark text, in layout order
 *
 * Low-confidence blocks are flagged only; they still contribute to the text.
 */

package postprocess

import (
	"strings"

	"github.com/adverant/nexus/bharatdoc-worker/internal/layout"
)

// Result is the outcome of post-processing one page.
type Result struct {
	Layout              []layout.Block
	WatermarkBlocks     []int
	RedactedItems       []RedactedItem
	LowConfidenceBlocks []int
	Text                string
}

// Config tunes the post-processing thresholds.
type Config struct {
	ConfidenceThreshold float64
	AngleThreshold      float64
}

// Processor orchestrates the watermark detector, redactor and confidence filter.
type Processor struct {
	watermarks          *WatermarkDetector
	confidenceThreshold float64
}

// NewProcessor creates a post-processor. Zero thresholds fall back to defaults.
func NewProcessor(cfg Config) *Processor {
	wd := NewWatermarkDetector()
	if cfg.AngleThreshold > 0 {
		wd.AngleThreshold = cfg.AngleThreshold
	}
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Processor{
		watermarks:          wd,
		confidenceThreshold: threshold,
	}
}

// Process runs the fixed post-processing sequence over raw blocks.
func (p *Processor) Process(raw []layout.Block) *Result {
	watermarkIdxs := p.watermarks.Detect(raw)
	redacted, items := RedactBlocks(raw)
	lowConfidence := LowConfidence(redacted, p.confidenceThreshold)

	return &Result{
		Layout:              redacted,
		WatermarkBlocks:     watermarkIdxs,
		RedactedItems:       items,
		LowConfidenceBlocks: lowConfidence,
		Text:                AggregateText(redacted, watermarkIdxs),
	}
}

// AggregateText joins block texts with single spaces, skipping excluded indices.
func AggregateText(blocks []layout.Block, excluded []int) string {
	skip := make(map[int]struct{}, len(excluded))
	for _, i := range excluded {
		skip[i] = struct{}{}
	}

	parts := make([]string, 0, len(blocks))
	for i, b := range blocks {
		if _, ok := skip[i]; ok {
			continue
		}
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, " ")
}
