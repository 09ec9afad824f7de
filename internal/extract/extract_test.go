package extract

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"testing"

	"github.com/ledongthuc/pdf"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/adverant/nexus/bharatdoc-worker/internal/layout"
)

func glyphAt(s string, x, y, w float64) pdf.Text {
	return pdf.Text{FontSize: 10, X: x, Y: y, W: w, S: s}
}

func wordTexts(words []Word) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w.Text
	}
	return out
}

func TestGroupWords(t *testing.T) {
	texts := []pdf.Text{
		// second row listed first: rows are ordered by position, not stream order
		glyphAt("Z", 10, 600, 5),
		glyphAt("H", 10, 700, 5),
		glyphAt("i", 15, 700, 5),
		glyphAt(" ", 20, 700, 5),
		glyphAt("y", 25, 700, 5),
		glyphAt("o", 30, 700, 5),
		glyphAt("B", 80, 700, 5), // wide gap, no space glyph
	}

	words := groupWords(texts, 792)
	want := []string{"Hi", "yo", "B", "Z"}
	if got := wordTexts(words); !reflect.DeepEqual(got, want) {
		t.Fatalf("words = %v, want %v", got, want)
	}

	wantBox := layout.BBox{X0: 10, Y0: 82, X1: 20, Y1: 92}
	if words[0].BBox != wantBox {
		t.Errorf("bbox = %+v, want %+v", words[0].BBox, wantBox)
	}
	for _, w := range words {
		if !w.BBox.Valid() {
			t.Errorf("word %q has unnormalized bbox %+v", w.Text, w.BBox)
		}
	}
}

func TestGroupWordsSplitsRuns(t *testing.T) {
	words := groupWords([]pdf.Text{glyphAt("Hello World", 100, 700, 110)}, 792)

	if got := wordTexts(words); !reflect.DeepEqual(got, []string{"Hello", "World"}) {
		t.Fatalf("words = %v", got)
	}
	if words[1].BBox.X0 != 160 || words[1].BBox.X1 != 210 {
		t.Errorf("second word bbox = %+v", words[1].BBox)
	}
}

func word(text string, x0, y0, x1 float64) Word {
	return Word{BBox: layout.BBox{X0: x0, Y0: y0, X1: x1, Y1: y0 + 10}, Text: text}
}

func TestDetectTables(t *testing.T) {
	words := []Word{
		word("Invoice", 0, 0, 60),
		word("summary", 65, 0, 120),

		word("Item", 0, 30, 40),
		word("Qty", 100, 30, 130),
		word("Price", 200, 30, 240),

		word("Paper", 0, 45, 50),
		word("2", 100, 45, 110),
		word("40.00", 200, 45, 240),

		word("Ink", 0, 60, 30),
		word("5", 100, 60, 110),
	}

	tables := DetectTables(words)
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d: %v", len(tables), tables)
	}

	want := layout.Table{
		{"Item", "Qty", "Price"},
		{"Paper", "2", "40.00"},
		{"Ink", "5", ""},
	}
	if !reflect.DeepEqual(tables[0], want) {
		t.Errorf("table = %v, want %v", tables[0], want)
	}
}

func TestDetectTablesPipes(t *testing.T) {
	words := []Word{
		word("|", 0, 0, 5), word("Name", 10, 0, 40), word("|", 45, 0, 50), word("Value", 55, 0, 90), word("|", 95, 0, 100),
		word("|", 0, 15, 5), word("PAN", 10, 15, 40), word("|", 45, 15, 50), word("[REDACTED]", 55, 15, 90), word("|", 95, 15, 100),
	}

	tables := DetectTables(words)
	want := []layout.Table{{{"Name", "Value"}, {"PAN", "[REDACTED]"}}}
	if !reflect.DeepEqual(tables, want) {
		t.Errorf("tables = %v, want %v", tables, want)
	}
}

func TestDetectTablesNone(t *testing.T) {
	words := []Word{
		word("Plain", 0, 0, 40), word("prose", 45, 0, 85),
		word("continues", 0, 15, 70), word("here", 75, 15, 100),
	}
	if tables := DetectTables(words); len(tables) != 0 {
		t.Errorf("prose detected as table: %v", tables)
	}
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img
}

func TestNormalizeImage(t *testing.T) {
	var bmpBuf, tiffBuf, pngBuf bytes.Buffer
	if err := bmp.Encode(&bmpBuf, testImage()); err != nil {
		t.Fatal(err)
	}
	if err := tiff.Encode(&tiffBuf, testImage(), nil); err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(&pngBuf, testImage()); err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		ext  string
		data []byte
	}{
		{".BMP", bmpBuf.Bytes()},
		{".tiff", tiffBuf.Bytes()},
		{".png", pngBuf.Bytes()},
	}

	for _, tc := range testCases {
		t.Run(tc.ext, func(t *testing.T) {
			out, err := NormalizeImage(tc.data, tc.ext)
			if err != nil {
				t.Fatalf("NormalizeImage: %v", err)
			}
			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("output not decodable: %v", err)
			}
			if format != "png" || cfg.Width != 4 || cfg.Height != 3 {
				t.Errorf("got %s %dx%d", format, cfg.Width, cfg.Height)
			}
		})
	}

	if _, err := NormalizeImage([]byte("not an image"), ".png"); err == nil {
		t.Error("expected error for corrupt PNG")
	}
	if _, err := NormalizeImage(pngBuf.Bytes(), ".jpx"); err == nil {
		t.Error("expected error for unsupported raster type")
	}
}

func TestIsImageExtension(t *testing.T) {
	for _, ext := range []string{".png", ".JPG", ".jpeg", ".TIFF", ".bmp"} {
		if !IsImageExtension(ext) {
			t.Errorf("%s should be an image extension", ext)
		}
	}
	for _, ext := range []string{".pdf", ".docx", ".gif", ""} {
		if IsImageExtension(ext) {
			t.Errorf("%s should not be an image extension", ext)
		}
	}
}
