/**
 * Document Pipeline
 *
 * Drives a whole document through classify → extract → postprocess → parse
 * → emit, one page at a time and strictly in page order:
 * - PDFs: each page is classified independently (native layer vs recognition)
 * - Images: a single synthetic page 1, always through recognition
 * - Anything else: UNSUPPORTED_FORMAT before any extraction
 *
 * A failure inside one page's chain (including a panic from the PDF reader)
 * is recorded on that page's record; sibling pages still complete.
 */

package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adverant/nexus/bharatdoc-worker/internal/errors"
	"github.com/adverant/nexus/bharatdoc-worker/internal/extract"
	"github.com/adverant/nexus/bharatdoc-worker/internal/language"
	"github.com/adverant/nexus/bharatdoc-worker/internal/layout"
	"github.com/adverant/nexus/bharatdoc-worker/internal/logging"
	"github.com/adverant/nexus/bharatdoc-worker/internal/ocr"
	"github.com/adverant/nexus/bharatdoc-worker/internal/parsing"
	"github.com/adverant/nexus/bharatdoc-worker/internal/postprocess"
)

// Pipeline stages, as reported in PageError.Stage.
const (
	StageClassify    = "classify"
	StageExtract     = "extract"
	StagePostprocess = "postprocess"
	StageParse       = "parse"
)

// PDFSource is an open multi-page document.
type PDFSource interface {
	NumPages() int
	Page(n int) (PDFPage, error)
	Close() error
}

// PDFPage is the native PDF layer for one page.
type PDFPage interface {
	Text() (string, error)
	Words() ([]extract.Word, error)
	Tables() ([]layout.Table, error)
	Image() ([]byte, error)
}

// PDFOpener opens the PDF at path.
type PDFOpener func(path string) (PDFSource, error)

// ImageLoader reads an image file as recognition-ready bytes.
type ImageLoader func(path string, ext string) ([]byte, error)

// PageCounter independently counts a PDF's pages.
type PageCounter func(path string) (int, error)

// TextRecognizer is the recognition capability, keyed by language.
type TextRecognizer interface {
	Recognize(ctx context.Context, language string, image []byte) ([]ocr.Line, error)
}

// PipelineConfig wires the pipeline's collaborators. Recognizer is required;
// every other nil field falls back to the production implementation.
type PipelineConfig struct {
	Recognizer  TextRecognizer
	Languages   LanguageIdentifier
	Documents   *parsing.Registry
	OpenPDF     PDFOpener
	LoadImage   ImageLoader
	CountPages  PageCounter
	PostProcess postprocess.Config

	MinDigitalTextLength int
	OCRLanguage          string
}

// Pipeline processes documents into page records.
type Pipeline struct {
	recognizer  TextRecognizer
	languages   LanguageIdentifier
	documents   *parsing.Registry
	openPDF     PDFOpener
	loadImage   ImageLoader
	countPages  PageCounter
	postprocess *postprocess.Processor
	minDigital  int
	ocrLanguage string
	logger      *logging.Logger
}

// NewPipeline creates a document pipeline.
func NewPipeline(cfg *PipelineConfig) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}

	p := &Pipeline{
		recognizer:  cfg.Recognizer,
		languages:   cfg.Languages,
		documents:   cfg.Documents,
		openPDF:     cfg.OpenPDF,
		loadImage:   cfg.LoadImage,
		countPages:  cfg.CountPages,
		postprocess: postprocess.NewProcessor(cfg.PostProcess),
		minDigital:  cfg.MinDigitalTextLength,
		ocrLanguage: cfg.OCRLanguage,
		logger:      logging.NewLogger("Pipeline"),
	}

	if p.languages == nil {
		p.languages = language.NewDetector()
	}
	if p.documents == nil {
		p.documents = parsing.DefaultRegistry()
	}
	if p.openPDF == nil {
		p.openPDF = OpenNativePDF
	}
	if p.loadImage == nil {
		p.loadImage = extract.LoadImage
	}
	if p.countPages == nil {
		p.countPages = extract.PageCount
	}
	if p.minDigital <= 0 {
		p.minDigital = DefaultMinDigitalTextLength
	}
	if p.ocrLanguage == "" {
		p.ocrLanguage = "en"
	}

	return p, nil
}

// ProcessFile routes path by extension and returns one record per page in
// page order. Unsupported extensions return UNSUPPORTED_FORMAT and no
// records.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) ([]*PageRecord, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case ext == ".pdf":
		return p.processPDF(ctx, path)
	case extract.IsImageExtension(ext):
		return p.processImage(ctx, path, ext)
	default:
		return nil, errors.NewUnsupportedFormatError(path, ext)
	}
}

func (p *Pipeline) processPDF(ctx context.Context, path string) ([]*PageRecord, error) {
	doc, err := p.openPDF(path)
	if err != nil {
		return nil, errors.NewExtractionFailedError(0, "open", err)
	}
	defer doc.Close()

	numPages := doc.NumPages()
	if counted, err := p.countPages(path); err != nil {
		p.logger.Warn("Independent page count failed", "path", path, "error", err)
	} else if counted != numPages {
		p.logger.Warn("Page count mismatch", "path", path, "text_layer", numPages, "structure", counted)
	}
	p.logger.Info("Processing PDF", "path", path, "pages", numPages)

	records := make([]*PageRecord, 0, numPages)
	for n := 1; n <= numPages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, contextError(err)
		}
		records = append(records, p.processPDFPage(ctx, doc, n))
	}
	return records, nil
}

func (p *Pipeline) processPDFPage(ctx context.Context, doc PDFSource, n int) (record *PageRecord) {
	start := time.Now()
	record = newPageRecord(n, PageTypeScanned)
	stage := StageClassify

	defer func() {
		if r := recover(); r != nil {
			record.fail(errors.NewExtractionFailedError(n, stage, fmt.Errorf("panic: %v", r)))
		}
		p.logPage(record, start)
	}()

	page, err := doc.Page(n)
	if err != nil {
		record.fail(errors.NewExtractionFailedError(n, stage, err))
		return record
	}
	text, err := page.Text()
	if err != nil {
		record.fail(errors.NewExtractionFailedError(n, stage, err))
		return record
	}

	stage = StageExtract
	var raw []layout.Block
	if ClassifyPage(text, p.minDigital) == ClassDigital {
		record.Type = PageTypeDigital

		words, err := page.Words()
		if err != nil {
			record.fail(errors.NewExtractionFailedError(n, stage, err))
			return record
		}
		tables, err := page.Tables()
		if err != nil {
			record.fail(errors.NewExtractionFailedError(n, stage, err))
			return record
		}
		raw = NativeBlocks(words, p.languages)
		if tables != nil {
			record.Tables = tables
		}
	} else {
		image, err := page.Image()
		if err != nil {
			record.fail(errors.NewExtractionFailedError(n, stage, err))
			return record
		}
		lines, err := p.recognizer.Recognize(ctx, p.ocrLanguage, image)
		if err != nil {
			record.fail(errors.NewOCRFailedError(n, p.ocrLanguage, err))
			return record
		}
		raw = RecognitionBlocks(lines, p.languages)
	}

	stage = StagePostprocess
	p.postProcess(record, raw)
	stage = StageParse
	p.parse(record)
	return record
}

func (p *Pipeline) processImage(ctx context.Context, path string, ext string) ([]*PageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	return []*PageRecord{p.processImagePage(ctx, path, ext)}, nil
}

func (p *Pipeline) processImagePage(ctx context.Context, path string, ext string) (record *PageRecord) {
	start := time.Now()
	record = newPageRecord(1, PageTypeImage)
	stage := StageExtract

	defer func() {
		if r := recover(); r != nil {
			record.fail(errors.NewExtractionFailedError(1, stage, fmt.Errorf("panic: %v", r)))
		}
		p.logPage(record, start)
	}()

	image, err := p.loadImage(path, ext)
	if err != nil {
		record.fail(errors.NewExtractionFailedError(1, stage, err))
		return record
	}
	lines, err := p.recognizer.Recognize(ctx, p.ocrLanguage, image)
	if err != nil {
		record.fail(errors.NewOCRFailedError(1, p.ocrLanguage, err))
		return record
	}

	stage = StagePostprocess
	p.postProcess(record, RecognitionBlocks(lines, p.languages))
	stage = StageParse
	p.parse(record)
	return record
}

func (p *Pipeline) postProcess(record *PageRecord, raw []layout.Block) {
	record.applyPostProcess(p.postprocess.Process(raw))
}

// parse classifies the aggregated (redacted, watermark-free) page text.
func (p *Pipeline) parse(record *PageRecord) {
	record.DocumentType, record.ParsedFields = p.documents.Classify(record.Text)
}

func (p *Pipeline) logPage(record *PageRecord, start time.Time) {
	if record.Failed() {
		p.logger.Warn("Page failed",
			"page", record.PageNumber,
			"type", record.Type,
			"code", record.Error.Code,
			"stage", record.Error.Stage,
			"error", record.Error.Message,
		)
		return
	}
	p.logger.Info("Page processed",
		"page", record.PageNumber,
		"type", record.Type,
		"blocks", len(record.Layout),
		"watermarks", len(record.WatermarkBlocks),
		"redacted", len(record.RedactedItems),
		"document_type", record.DocumentType,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func contextError(err error) error {
	return fmt.Errorf("document processing interrupted: %w", err)
}

// nativeSource adapts extract.PDFDocument to PDFSource.
type nativeSource struct {
	doc *extract.PDFDocument
}

// OpenNativePDF opens path with the native PDF text layer.
func OpenNativePDF(path string) (PDFSource, error) {
	doc, err := extract.OpenPDF(path)
	if err != nil {
		return nil, err
	}
	return &nativeSource{doc: doc}, nil
}

func (s *nativeSource) NumPages() int { return s.doc.NumPages() }

func (s *nativeSource) Page(n int) (PDFPage, error) {
	page, err := s.doc.Page(n)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (s *nativeSource) Close() error { return s.doc.Close() }
