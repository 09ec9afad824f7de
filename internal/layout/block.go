/**
 * Layout Types - Shared block model for both extraction paths
 *
 * The native PDF text layer and the recognition engine both produce Blocks,
 * so everything downstream is extraction-path agnostic.
 */

package layout

import (
	"encoding/json"
	"fmt"
)

// LanguageUnknown is reported when no language could be identified for a block.
const LanguageUnknown = "unknown"

// NativeConfidence is the fixed confidence of blocks read from a PDF text layer.
const NativeConfidence = 1.0

// BBox is an axis-ordered rectangle (x0, y0, x1, y1) in page space.
type BBox struct {
	X0 float64
	Y0 float64
	X1 float64
	Y1 float64
}

// Normalize returns the box with x0<=x1 and y0<=y1.
func (b BBox) Normalize() BBox {
	if b.X1 < b.X0 {
		b.X0, b.X1 = b.X1, b.X0
	}
	if b.Y1 < b.Y0 {
		b.Y0, b.Y1 = b.Y1, b.Y0
	}
	return b
}

// Valid reports whether the box is already normalized.
func (b BBox) Valid() bool {
	return b.X0 <= b.X1 && b.Y0 <= b.Y1
}

// Width returns x1-x0.
func (b BBox) Width() float64 { return b.X1 - b.X0 }

// Height returns y1-y0.
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

// MarshalJSON encodes the box as [x0, y0, x1, y1].
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X0, b.Y0, b.X1, b.Y1})
}

// UnmarshalJSON decodes a four-element coordinate array.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var coords []float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return fmt.Errorf("bbox: %w", err)
	}
	if len(coords) != 4 {
		return fmt.Errorf("bbox: expected 4 coordinates, got %d", len(coords))
	}
	b.X0, b.Y0, b.X1, b.Y1 = coords[0], coords[1], coords[2], coords[3]
	return nil
}

// MarshalYAML encodes the box as a flow sequence.
func (b BBox) MarshalYAML() (interface{}, error) {
	return []float64{b.X0, b.Y0, b.X1, b.Y1}, nil
}

// Block is one recognized unit of text (a word or an OCR line).
type Block struct {
	BBox       BBox    `json:"bbox" yaml:"bbox"`
	Text       string  `json:"text" yaml:"text"`
	Language   string  `json:"language" yaml:"language"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// WithText returns a copy of the block carrying different text.
// The receiver is left untouched.
func (b Block) WithText(text string) Block {
	b.Text = text
	return b
}

// Table is an ordered grid of cell strings. Cells may be empty.
type Table [][]string

// Rows returns the number of rows in the table.
func (t Table) Rows() int { return len(t) }

// Columns returns the width of the widest row.
func (t Table) Columns() int {
	cols := 0
	for _, row := range t {
		if len(row) > cols {
			cols = len(row)
		}
	}
	return cols
}
