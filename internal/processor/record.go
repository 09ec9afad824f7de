package processor

import (
	"github.com/adverant/nexus/bharatdoc-worker/internal/errors"
	"github.com/adverant/nexus/bharatdoc-worker/internal/layout"
	"github.com/adverant/nexus/bharatdoc-worker/internal/parsing"
	"github.com/adverant/nexus/bharatdoc-worker/internal/postprocess"
)

// PageType labels how a page's blocks were obtained.
type PageType string

const (
	PageTypeDigital PageType = "digital_pdf_page"
	PageTypeScanned PageType = "scanned_pdf_page"
	PageTypeImage   PageType = "image"
)

// PageError marks a page whose extraction chain failed closed.
type PageError struct {
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
	Stage   string `json:"stage" yaml:"stage"`
}

// PageRecord is the finalized output for one page (or one image).
type PageRecord struct {
	PageNumber          int                        `json:"page_number" yaml:"page_number"`
	Type                PageType                   `json:"type" yaml:"type"`
	Layout              []layout.Block             `json:"layout" yaml:"layout"`
	WatermarkBlocks     []int                      `json:"watermark_blocks" yaml:"watermark_blocks"`
	RedactedItems       []postprocess.RedactedItem `json:"redacted_items" yaml:"redacted_items"`
	LowConfidenceBlocks []int                      `json:"low_confidence_blocks" yaml:"low_confidence_blocks"`
	Text                string                     `json:"text" yaml:"text"`
	Tables              []layout.Table             `json:"tables" yaml:"tables"`
	DocumentType        string                     `json:"document_type" yaml:"document_type"`
	ParsedFields        map[string]string          `json:"parsed_fields" yaml:"parsed_fields"`
	Error               *PageError                 `json:"error,omitempty" yaml:"error,omitempty"`
}

// newPageRecord returns an empty record with every collection non-nil so
// serialized output never carries nulls.
func newPageRecord(number int, pageType PageType) *PageRecord {
	return &PageRecord{
		PageNumber:          number,
		Type:                pageType,
		Layout:              []layout.Block{},
		WatermarkBlocks:     []int{},
		RedactedItems:       []postprocess.RedactedItem{},
		LowConfidenceBlocks: []int{},
		Tables:              []layout.Table{},
		DocumentType:        parsing.DocumentTypeUnknown,
		ParsedFields:        map[string]string{},
	}
}

// Failed reports whether the page carries an error.
func (r *PageRecord) Failed() bool {
	return r.Error != nil
}

// fail clears any partial results and records err.
func (r *PageRecord) fail(err *errors.ProcessingError) {
	pageType := r.Type
	*r = *newPageRecord(r.PageNumber, pageType)
	r.Error = &PageError{
		Code:    string(err.Code),
		Message: err.Error(),
		Stage:   err.Stage(),
	}
}

// applyPostProcess copies a post-processing result onto the record.
func (r *PageRecord) applyPostProcess(res *postprocess.Result) {
	r.Layout = res.Layout
	r.WatermarkBlocks = res.WatermarkBlocks
	r.RedactedItems = res.RedactedItems
	r.LowConfidenceBlocks = res.LowConfidenceBlocks
	r.Text = res.Text
}
