/**
 * Native PDF text layer
 *
 * Wraps github.com/ledongthuc/pdf. The library reports glyph runs with a
 * bottom-up Y axis; everything returned here is converted to top-down page
 * space so native words share the coordinate convention of OCR lines.
 * The reader panics on some malformed content streams, so every page
 * accessor recovers and returns an error instead.
 */

package extract

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/adverant/nexus/bharatdoc-worker/internal/layout"
)

const (
	// US Letter, used when no MediaBox can be found
	defaultPageHeight = 792.0
	maxTreeDepth      = 32
)

// Word is a positioned unit of native text.
type Word struct {
	BBox layout.BBox
	Text string
}

// PDFDocument is an open PDF file.
type PDFDocument struct {
	path   string
	file   *os.File
	reader *pdf.Reader
}

// OpenPDF opens the document at path.
func OpenPDF(path string) (doc *PDFDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to open PDF: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &PDFDocument{path: path, file: f, reader: reader}, nil
}

// NumPages returns the number of pages in the document.
func (d *PDFDocument) NumPages() int {
	return d.reader.NumPage()
}

// Page returns the 1-based page n.
func (d *PDFDocument) Page(n int) (*PDFPage, error) {
	if n < 1 || n > d.NumPages() {
		return nil, fmt.Errorf("page %d out of range [1, %d]", n, d.NumPages())
	}
	return &PDFPage{doc: d, number: n}, nil
}

// Close releases the underlying file.
func (d *PDFDocument) Close() error {
	return d.file.Close()
}

// PDFPage is one page of a PDFDocument. Content is loaded lazily.
type PDFPage struct {
	doc    *PDFDocument
	number int
}

// Number returns the 1-based page number.
func (p *PDFPage) Number() int { return p.number }

// Text returns the page's plain text layer.
func (p *PDFPage) Text() (text string, err error) {
	err = guard(p.number, "text", func() error {
		page := p.doc.reader.Page(p.number)
		if page.V.IsNull() {
			return fmt.Errorf("page %d not found", p.number)
		}
		var e error
		text, e = page.GetPlainText(nil)
		return e
	})
	return text, err
}

// Words returns the page's words in reading order (rows top to bottom,
// left to right within a row).
func (p *PDFPage) Words() (words []Word, err error) {
	err = guard(p.number, "words", func() error {
		page := p.doc.reader.Page(p.number)
		if page.V.IsNull() {
			return fmt.Errorf("page %d not found", p.number)
		}
		words = groupWords(page.Content().Text, pageHeight(page))
		return nil
	})
	return words, err
}

// Tables returns grids detected from the page's word positions.
func (p *PDFPage) Tables() ([]layout.Table, error) {
	words, err := p.Words()
	if err != nil {
		return nil, err
	}
	return DetectTables(words), nil
}

// Image returns the page raster as PNG bytes.
func (p *PDFPage) Image() ([]byte, error) {
	return PageImage(p.doc.path, p.number)
}

func guard(page int, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d %s: pdf reader panic: %v", page, op, r)
		}
	}()
	return fn()
}

// pageHeight walks the page tree for an inherited MediaBox.
func pageHeight(page pdf.Page) float64 {
	v := page.V
	for depth := 0; depth < maxTreeDepth && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Len() == 4 {
			if h := box.Index(3).Float64() - box.Index(1).Float64(); h > 0 {
				return h
			}
		}
		v = v.Key("Parent")
	}
	return defaultPageHeight
}

// Relative tolerances, in multiples of font size.
const (
	rowTolerance = 0.5
	wordGap      = 0.2
)

type glyph struct {
	x, y, w, size float64
	s             string
}

// groupWords buckets glyph runs into rows by baseline, then merges
// neighbouring glyphs into words on whitespace or a horizontal gap.
func groupWords(texts []pdf.Text, height float64) []Word {
	rows := groupRows(splitGlyphs(texts))

	var words []Word
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].x < row[j].x })

		var cur *wordBuilder
		flush := func() {
			if cur != nil && cur.text.Len() > 0 {
				words = append(words, cur.word(height))
			}
			cur = nil
		}

		for _, g := range row {
			if strings.TrimSpace(g.s) == "" {
				flush()
				continue
			}
			if cur != nil && g.x-cur.x1 > wordGap*fontSize(cur.size, g.size) {
				flush()
			}
			if cur == nil {
				cur = &wordBuilder{x0: g.x, x1: g.x + g.w, y: g.y, size: g.size}
			}
			cur.add(g)
		}
		flush()
	}
	return words
}

// splitGlyphs breaks multi-character runs that contain whitespace into
// per-segment glyphs, sharing the run width evenly across its runes.
func splitGlyphs(texts []pdf.Text) []glyph {
	glyphs := make([]glyph, 0, len(texts))
	for _, t := range texts {
		runes := []rune(t.S)
		if len(runes) == 0 {
			continue
		}
		if !strings.ContainsFunc(t.S, unicode.IsSpace) {
			glyphs = append(glyphs, glyph{x: t.X, y: t.Y, w: t.W, size: t.FontSize, s: t.S})
			continue
		}

		per := t.W / float64(len(runes))
		start := -1
		emit := func(end int) {
			if start >= 0 {
				glyphs = append(glyphs, glyph{
					x: t.X + float64(start)*per, y: t.Y, w: float64(end-start) * per,
					size: t.FontSize, s: string(runes[start:end]),
				})
				start = -1
			}
		}
		for i, r := range runes {
			if unicode.IsSpace(r) {
				emit(i)
				glyphs = append(glyphs, glyph{x: t.X + float64(i)*per, y: t.Y, w: per, size: t.FontSize, s: " "})
				continue
			}
			if start < 0 {
				start = i
			}
		}
		emit(len(runes))
	}
	return glyphs
}

// groupRows clusters glyphs whose baselines are within rowTolerance of a
// row, ordered top of page first.
func groupRows(glyphs []glyph) [][]glyph {
	type bucket struct {
		yMin, yMax float64
		glyphs     []glyph
	}

	var buckets []*bucket
	for _, g := range glyphs {
		tol := rowTolerance * fontSize(g.size, g.size)
		var found *bucket
		for _, b := range buckets {
			if g.y >= b.yMin-tol && g.y <= b.yMax+tol {
				found = b
				break
			}
		}
		if found == nil {
			buckets = append(buckets, &bucket{yMin: g.y, yMax: g.y, glyphs: []glyph{g}})
			continue
		}
		found.glyphs = append(found.glyphs, g)
		if g.y < found.yMin {
			found.yMin = g.y
		}
		if g.y > found.yMax {
			found.yMax = g.y
		}
	}

	// PDF Y grows upwards
	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].yMax > buckets[j].yMax })

	rows := make([][]glyph, len(buckets))
	for i, b := range buckets {
		rows[i] = b.glyphs
	}
	return rows
}

type wordBuilder struct {
	x0, x1, y, size float64
	text            strings.Builder
}

func (b *wordBuilder) add(g glyph) {
	b.text.WriteString(g.s)
	if g.x+g.w > b.x1 {
		b.x1 = g.x + g.w
	}
	if g.size > b.size {
		b.size = g.size
	}
}

// word converts the baseline-anchored builder to a top-down bbox.
func (b *wordBuilder) word(height float64) Word {
	size := fontSize(b.size, b.size)
	top := height - (b.y + size)
	bottom := height - b.y
	return Word{
		BBox: layout.BBox{X0: b.x0, Y0: top, X1: b.x1, Y1: bottom}.Normalize(),
		Text: b.text.String(),
	}
}

func fontSize(a, b float64) float64 {
	size := a
	if b > size {
		size = b
	}
	if size <= 0 {
		return 10.0
	}
	return size
}
