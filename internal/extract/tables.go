package extract

import (
	"sort"
	"strings"

	"github.com/adverant/nexus/bharatdoc-worker/internal/layout"
)

// Table detection over positioned words.
//
// Words are grouped into lines, each line is split into cells on wide
// horizontal gaps (or on '|' separators when the line is drawn as ASCII),
// and runs of consecutive lines with a consistent cell count become tables.

const (
	// A gap wider than cellGapFactor line-heights starts a new cell.
	cellGapFactor = 1.5
	// Minimum rows (header + data) and cells per row for a table region.
	minTableRows = 2
	minTableCols = 2
)

type textLine struct {
	top, bottom float64
	words       []Word
}

// DetectTables finds grid-like regions in a page's words.
func DetectTables(words []Word) []layout.Table {
	lines := groupLines(words)
	if len(lines) < minTableRows {
		return nil
	}

	cells := make([][]string, len(lines))
	for i, line := range lines {
		cells[i] = splitCells(line)
	}

	var tables []layout.Table
	i := 0
	for i < len(cells) {
		if len(cells[i]) < minTableCols {
			i++
			continue
		}

		// Found potential table start - look for consecutive lines with similar width
		expected := len(cells[i])
		region := [][]string{cells[i]}
		i++
		for i < len(cells) && len(cells[i]) >= minTableCols && abs(len(cells[i])-expected) <= 1 {
			region = append(region, cells[i])
			i++
		}

		if len(region) >= minTableRows {
			tables = append(tables, padTable(region))
		}
	}
	return tables
}

// groupLines clusters words whose vertical centres fall inside an existing
// line band. Lines are returned top to bottom, words left to right.
func groupLines(words []Word) []*textLine {
	var lines []*textLine
	for _, w := range words {
		box := w.BBox.Normalize()
		center := (box.Y0 + box.Y1) / 2

		var found *textLine
		for _, l := range lines {
			if center >= l.top && center <= l.bottom {
				found = l
				break
			}
		}
		if found == nil {
			lines = append(lines, &textLine{top: box.Y0, bottom: box.Y1, words: []Word{w}})
			continue
		}
		found.words = append(found.words, w)
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].top < lines[j].top })
	for _, l := range lines {
		sort.SliceStable(l.words, func(i, j int) bool {
			return l.words[i].BBox.Normalize().X0 < l.words[j].BBox.Normalize().X0
		})
	}
	return lines
}

func splitCells(line *textLine) []string {
	texts := make([]string, len(line.words))
	for i, w := range line.words {
		texts[i] = w.Text
	}
	if joined := strings.Join(texts, " "); strings.Count(joined, "|") >= 2 {
		return splitPipes(joined)
	}

	gap := cellGapFactor * (line.bottom - line.top)
	var cells []string
	var cell []string
	prevEnd := 0.0
	for i, w := range line.words {
		box := w.BBox.Normalize()
		if i > 0 && box.X0-prevEnd > gap {
			cells = append(cells, strings.Join(cell, " "))
			cell = nil
		}
		cell = append(cell, w.Text)
		prevEnd = box.X1
	}
	if len(cell) > 0 {
		cells = append(cells, strings.Join(cell, " "))
	}
	return cells
}

// splitPipes splits "| a | b |" style rows, dropping the empty edge cells
// produced by leading/trailing pipes.
func splitPipes(text string) []string {
	cells := strings.Split(text, "|")
	if len(cells) > 0 && strings.TrimSpace(cells[0]) == "" {
		cells = cells[1:]
	}
	if len(cells) > 0 && strings.TrimSpace(cells[len(cells)-1]) == "" {
		cells = cells[:len(cells)-1]
	}
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

// padTable right-pads short rows with empty cells.
func padTable(rows [][]string) layout.Table {
	table := layout.Table(rows)
	cols := table.Columns()
	for i, row := range table {
		for len(row) < cols {
			row = append(row, "")
		}
		table[i] = row
	}
	return table
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
