package postprocess

import (
	"math"
	"strings"

	"github.com/adverant/nexus/bharatdoc-worker/internal/layout"
)

// DefaultAngleThreshold is how far (in degrees) a block diagonal may deviate
// from 0° or 90° before the block is considered rotated.
const DefaultAngleThreshold = 10.0

// DefaultWatermarkWords are matched case-insensitively as substrings.
var DefaultWatermarkWords = []string{"draft", "copy", "sample", "specimen"}

// WatermarkDetector flags stamp and overlay artifacts.
type WatermarkDetector struct {
	AngleThreshold float64
	Words          []string
}

// NewWatermarkDetector returns a detector with the default threshold and vocabulary.
func NewWatermarkDetector() *WatermarkDetector {
	return &WatermarkDetector{
		AngleThreshold: DefaultAngleThreshold,
		Words:          DefaultWatermarkWords,
	}
}

// Detect returns the ascending indices of blocks that are rotated or carry a
// watermark keyword.
func (d *WatermarkDetector) Detect(blocks []layout.Block) []int {
	flagged := make([]int, 0)
	for i, b := range blocks {
		if d.IsRotated(b.BBox) || d.IsWatermarkText(b.Text) {
			flagged = append(flagged, i)
		}
	}
	return flagged
}

// IsRotated measures the angle of the bbox diagonal and reports whether it is
// further than the threshold from both axes.
func (d *WatermarkDetector) IsRotated(box layout.BBox) bool {
	box = box.Normalize()
	angle := diagonalAngle(box.Width(), box.Height())
	deviation := math.Min(math.Abs(angle), math.Abs(angle-90))
	return deviation > d.AngleThreshold
}

// IsWatermarkText reports whether text contains one of the watermark words.
func (d *WatermarkDetector) IsWatermarkText(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range d.Words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// diagonalAngle returns atan2(dy, dx) in degrees folded into [0, 180).
func diagonalAngle(dx, dy float64) float64 {
	angle := math.Atan2(dy, dx) * 180 / math.Pi
	return math.Mod(math.Abs(angle), 180)
}
