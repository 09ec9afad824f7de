package postprocess

import "github.com/adverant/nexus/bharatdoc-worker/internal/layout"

// DefaultConfidenceThreshold separates trusted blocks from ones needing review.
const DefaultConfidenceThreshold = 0.7

// LowConfidence returns the ascending indices of blocks scoring below threshold.
func LowConfidence(blocks []layout.Block, threshold float64) []int {
	low := make([]int, 0)
	for i, b := range blocks {
		if b.Confidence < threshold {
			low = append(low, i)
		}
	}
	return low
}
