package processor

import (
	"context"
	stderrors "errors"
	"reflect"
	"strings"
	"testing"

	"github.com/adverant/nexus/bharatdoc-worker/internal/errors"
	"github.com/adverant/nexus/bharatdoc-worker/internal/extract"
	"github.com/adverant/nexus/bharatdoc-worker/internal/layout"
	"github.com/adverant/nexus/bharatdoc-worker/internal/ocr"
	"github.com/adverant/nexus/bharatdoc-worker/internal/parsing"
	"github.com/adverant/nexus/bharatdoc-worker/internal/postprocess"
)

// Fakes for the three external capabilities.

type fakePage struct {
	text      string
	textErr   error
	words     []extract.Word
	tables    []layout.Table
	image     []byte
	imageErr  error
	panicWith interface{}
}

func (p *fakePage) Text() (string, error) {
	if p.panicWith != nil {
		panic(p.panicWith)
	}
	return p.text, p.textErr
}
func (p *fakePage) Words() ([]extract.Word, error)  { return p.words, nil }
func (p *fakePage) Tables() ([]layout.Table, error) { return p.tables, nil }
func (p *fakePage) Image() ([]byte, error)          { return p.image, p.imageErr }

type fakePDF struct {
	pages  []*fakePage
	closed bool
}

func (d *fakePDF) NumPages() int { return len(d.pages) }
func (d *fakePDF) Page(n int) (PDFPage, error) {
	return d.pages[n-1], nil
}
func (d *fakePDF) Close() error {
	d.closed = true
	return nil
}

type fakeRecognizer struct {
	lines    []ocr.Line
	err      error
	calls    int
	language string
	// block waits for ctx to end before returning.
	block bool
}

func (r *fakeRecognizer) Recognize(ctx context.Context, language string, image []byte) ([]ocr.Line, error) {
	r.calls++
	r.language = language
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.lines, r.err
}

type fixedLanguage string

func (l fixedLanguage) CodeOrUnknown(string) string { return string(l) }

func newTestPipeline(t *testing.T, doc *fakePDF, rec *fakeRecognizer) *Pipeline {
	t.Helper()
	p, err := NewPipeline(&PipelineConfig{
		Recognizer: rec,
		Languages:  fixedLanguage("en"),
		OpenPDF:    func(string) (PDFSource, error) { return doc, nil },
		LoadImage:  func(string, string) ([]byte, error) { return []byte("img"), nil },
		CountPages: func(string) (int, error) { return len(doc.pages), nil },
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func flatWord(text string, x float64) extract.Word {
	return extract.Word{BBox: layout.BBox{X0: x, Y0: 0, X1: x + 100, Y1: 10}, Text: text}
}

func digitalPage(words ...string) *fakePage {
	page := &fakePage{text: strings.Repeat("x", 100)}
	for i, w := range words {
		page.words = append(page.words, flatWord(w, float64(i)*110))
	}
	return page
}

func TestClassifyPageBoundary(t *testing.T) {
	if got := ClassifyPage(strings.Repeat("a", 99), 100); got != ClassScanned {
		t.Errorf("99 chars = %s, want scanned", got)
	}
	if got := ClassifyPage(strings.Repeat("a", 100), 100); got != ClassDigital {
		t.Errorf("100 chars = %s, want digital", got)
	}
	if got := ClassifyPage("  \n"+strings.Repeat("a", 99)+"\t ", 100); got != ClassScanned {
		t.Errorf("surrounding whitespace must be stripped, got %s", got)
	}
	// counted in characters, not bytes
	if got := ClassifyPage(strings.Repeat("क", 100), 100); got != ClassDigital {
		t.Errorf("100 Devanagari characters = %s, want digital", got)
	}
}

func TestDigitalPage(t *testing.T) {
	page := digitalPage("Invoice", "DRAFT", "Total: 500")
	page.tables = []layout.Table{{{"a", "b"}, {"c", ""}}}
	doc := &fakePDF{pages: []*fakePage{page}}
	rec := &fakeRecognizer{}

	records, err := newTestPipeline(t, doc, rec).ProcessFile(context.Background(), "doc.PDF")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	r := records[0]
	if r.Type != PageTypeDigital || r.PageNumber != 1 {
		t.Errorf("record = %s page %d", r.Type, r.PageNumber)
	}
	if r.Text != "Invoice Total: 500" {
		t.Errorf("text = %q", r.Text)
	}
	if !reflect.DeepEqual(r.WatermarkBlocks, []int{1}) {
		t.Errorf("watermark blocks = %v", r.WatermarkBlocks)
	}
	for _, b := range r.Layout {
		if b.Confidence != 1.0 {
			t.Errorf("native block %q confidence = %v", b.Text, b.Confidence)
		}
		if b.Language != "en" {
			t.Errorf("native block %q language = %q", b.Text, b.Language)
		}
	}
	if len(r.LowConfidenceBlocks) != 0 {
		t.Errorf("native blocks flagged low confidence: %v", r.LowConfidenceBlocks)
	}
	if !reflect.DeepEqual(r.Tables, page.tables) {
		t.Errorf("tables = %v", r.Tables)
	}
	if rec.calls != 0 {
		t.Error("recognition must not run on digital pages")
	}
	if !doc.closed {
		t.Error("document not closed")
	}
}

func TestScannedPage(t *testing.T) {
	page := &fakePage{text: strings.Repeat("x", 99), image: []byte("png"), tables: []layout.Table{{{"ignored"}}}}
	rec := &fakeRecognizer{lines: []ocr.Line{
		{BBox: layout.BBox{X0: 0, Y0: 0, X1: 300, Y1: 20}, Text: "PAN ABCDE1234F", Confidence: 0.95},
		{BBox: layout.BBox{X0: 0, Y0: 30, X1: 300, Y1: 50}, Text: "smudged", Confidence: 0.4},
	}}

	records, err := newTestPipeline(t, &fakePDF{pages: []*fakePage{page}}, rec).ProcessFile(context.Background(), "scan.pdf")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	r := records[0]
	if r.Type != PageTypeScanned {
		t.Errorf("type = %s", r.Type)
	}
	if len(r.Tables) != 0 {
		t.Errorf("scanned pages never carry tables, got %v", r.Tables)
	}
	if r.Layout[0].Text != "PAN "+postprocess.Sentinel || r.Layout[0].Confidence != 0.95 {
		t.Errorf("first block = %+v", r.Layout[0])
	}
	if !reflect.DeepEqual(r.LowConfidenceBlocks, []int{1}) {
		t.Errorf("low confidence = %v", r.LowConfidenceBlocks)
	}
	if r.Text != "PAN [REDACTED] smudged" {
		t.Errorf("low-confidence text must stay in aggregate, got %q", r.Text)
	}
	want := []postprocess.RedactedItem{{Category: postprocess.CategoryPAN, Value: "ABCDE1234F"}}
	if !reflect.DeepEqual(r.RedactedItems, want) {
		t.Errorf("redacted = %v", r.RedactedItems)
	}
	if rec.language != "en" {
		t.Errorf("recognition language = %q", rec.language)
	}
}

func TestPageFailureIsolation(t *testing.T) {
	doc := &fakePDF{pages: []*fakePage{
		digitalPage("first"),
		{textErr: stderrors.New("broken content stream")},
		{panicWith: "index out of range"},
		{text: "", imageErr: extract.ErrNoPageImage},
		digitalPage("last"),
	}}

	records, err := newTestPipeline(t, doc, &fakeRecognizer{}).ProcessFile(context.Background(), "multi.pdf")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}

	for i, r := range records {
		if r.PageNumber != i+1 {
			t.Errorf("record %d has page number %d", i, r.PageNumber)
		}
	}

	if records[0].Failed() || records[0].Text != "first" {
		t.Errorf("page 1 = %+v", records[0])
	}
	if records[4].Failed() || records[4].Text != "last" {
		t.Errorf("page 5 = %+v", records[4])
	}

	testCases := []struct {
		page  int
		code  errors.ErrorCode
		stage string
	}{
		{2, errors.ErrorExtractionFailed, StageClassify},
		{3, errors.ErrorExtractionFailed, StageClassify},
		{4, errors.ErrorExtractionFailed, StageExtract},
	}
	for _, tc := range testCases {
		r := records[tc.page-1]
		if !r.Failed() {
			t.Errorf("page %d should carry an error", tc.page)
			continue
		}
		if r.Error.Code != string(tc.code) || r.Error.Stage != tc.stage {
			t.Errorf("page %d error = %+v", tc.page, r.Error)
		}
		if r.Type != PageTypeScanned || len(r.Layout) != 0 || r.ParsedFields == nil {
			t.Errorf("page %d failed record = %+v", tc.page, r)
		}
	}
}

func TestRecognitionFailure(t *testing.T) {
	page := &fakePage{text: "", image: []byte("png")}
	rec := &fakeRecognizer{err: stderrors.New("tesseract crashed")}

	records, err := newTestPipeline(t, &fakePDF{pages: []*fakePage{page}}, rec).ProcessFile(context.Background(), "a.pdf")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if e := records[0].Error; e == nil || e.Code != string(errors.ErrorOCRFailed) || e.Stage != StageExtract {
		t.Errorf("error = %+v", e)
	}
}

func TestImageDocument(t *testing.T) {
	rec := &fakeRecognizer{lines: []ocr.Line{
		{BBox: layout.BBox{X0: 0, Y0: 0, X1: 500, Y1: 20}, Text: "Udyam Registration Number: UDYAM-UP-01-0000001", Confidence: 0.9},
		{BBox: layout.BBox{X0: 0, Y0: 30, X1: 500, Y1: 50}, Text: "Name of Enterprise: ACME TRADERS", Confidence: 0.9},
	}}

	for _, name := range []string{"cert.png", "CERT.JPG", "cert.jpeg", "cert.tiff", "cert.bmp"} {
		records, err := newTestPipeline(t, &fakePDF{}, rec).ProcessFile(context.Background(), name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(records) != 1 || records[0].Type != PageTypeImage || records[0].PageNumber != 1 {
			t.Fatalf("%s: records = %+v", name, records)
		}

		r := records[0]
		if r.DocumentType != parsing.DocumentTypeUdyam {
			t.Errorf("%s: document type = %q", name, r.DocumentType)
		}
		if r.ParsedFields[parsing.FieldEnterpriseName] != "ACME TRADERS" {
			t.Errorf("%s: parsed = %v", name, r.ParsedFields)
		}
		// the registration number is redacted before parsing
		if _, ok := r.ParsedFields[parsing.FieldUdyamNumber]; ok {
			t.Errorf("%s: redacted udyam number leaked into parsed fields", name)
		}
		if len(r.Tables) != 0 {
			t.Errorf("%s: images never carry tables", name)
		}
	}
}

func TestUnsupportedFormat(t *testing.T) {
	p := newTestPipeline(t, &fakePDF{}, &fakeRecognizer{})

	for _, name := range []string{"letter.docx", "archive.zip", "noextension"} {
		records, err := p.ProcessFile(context.Background(), name)
		if records != nil {
			t.Errorf("%s: expected no records, got %v", name, records)
		}
		if !stderrors.Is(err, errors.ErrUnsupportedFormat) {
			t.Errorf("%s: error = %v, want unsupported format", name, err)
		}
	}
}

func TestEmptyPDF(t *testing.T) {
	records, err := newTestPipeline(t, &fakePDF{}, &fakeRecognizer{}).ProcessFile(context.Background(), "empty.pdf")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("records = %v, want empty non-nil", records)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := newTestPipeline(t, &fakePDF{pages: []*fakePage{digitalPage("x")}}, &fakeRecognizer{}).ProcessFile(ctx, "a.pdf")
	if err == nil || !stderrors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if records != nil {
		t.Errorf("cancelled run returned records: %v", records)
	}
}

func TestUnknownDocument(t *testing.T) {
	records, err := newTestPipeline(t, &fakePDF{pages: []*fakePage{digitalPage("invoice", "total")}}, &fakeRecognizer{}).
		ProcessFile(context.Background(), "a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	r := records[0]
	if r.DocumentType != parsing.DocumentTypeUnknown || r.ParsedFields == nil || len(r.ParsedFields) != 0 {
		t.Errorf("document = %q fields = %v", r.DocumentType, r.ParsedFields)
	}
}

func TestNewPipelineRequiresRecognizer(t *testing.T) {
	if _, err := NewPipeline(&PipelineConfig{}); err == nil {
		t.Error("expected error without recognizer")
	}
	if _, err := NewPipeline(nil); err == nil {
		t.Error("expected error for nil config")
	}
}
