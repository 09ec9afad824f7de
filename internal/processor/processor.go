/**
 * Document Processor for the BharatDoc Worker
 *
 * Turns a queued job into page records:
 * - Load the input from the job buffer or download it from fileUrl
 * - Stage it in TEMP_DIR under its original extension (routing is by extension)
 * - Run the document pipeline under the job timeout
 * - Persist page records and the job outcome when a store is configured
 */

package processor

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adverant/nexus/bharatdoc-worker/internal/errors"
	"github.com/adverant/nexus/bharatdoc-worker/internal/parsing"
	"github.com/adverant/nexus/bharatdoc-worker/internal/storage"
)

// Job statuses written to the store and the queue.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error
}

// JobStore persists job status and page records.
type JobStore interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
	SavePageResults(ctx context.Context, jobID string, pages []*storage.PageResult) error
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Pipeline          *Pipeline
	Store             JobStore // optional
	TempDir           string
	MaxFileSize       int64
	ProcessingTimeout time.Duration
	HTTPClient        *http.Client
	DownloadAttempts  uint
}

// ProcessRequest represents a document processing request
type ProcessRequest struct {
	JobID      string
	UserID     string
	Filename   string
	MimeType   string
	FileSize   int64
	FileURL    string
	FileBuffer []byte
	Metadata   map[string]interface{}
}

// ProcessResult represents the processing result
type ProcessResult struct {
	Pages            []*PageRecord
	PageCount        int
	FailedPages      int
	DocumentType     string
	ProcessingTimeMs int64
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	config   *ProcessorConfig
	pipeline *Pipeline
	store    JobStore
	client   *http.Client
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}

	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir %s: %w", cfg.TempDir, err)
	}

	if cfg.DownloadAttempts == 0 {
		cfg.DownloadAttempts = 5
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}

	if cfg.Store == nil {
		log.Printf("WARNING: No job store configured. Page records will not be persisted.")
	}

	return &DocumentProcessor{
		config:   cfg,
		pipeline: cfg.Pipeline,
		store:    cfg.Store,
		client:   client,
	}, nil
}

// ProcessDocument processes a document through the complete pipeline
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	startTime := time.Now()
	log.Printf("[Job %s] Starting document processing pipeline", req.JobID)

	// Step 1: Download/load file
	log.Printf("[Job %s] Step 1: Loading file (%d bytes)", req.JobID, req.FileSize)
	fileData, err := p.loadFile(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}

	if p.config.MaxFileSize > 0 && int64(len(fileData)) > p.config.MaxFileSize {
		return nil, fmt.Errorf("file size exceeds maximum: %d > %d bytes", len(fileData), p.config.MaxFileSize)
	}

	// Step 2: Stage the file under an extension the pipeline can route
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if ext == "" {
		ext = extensionFromMagicBytes(fileData)
		log.Printf("[Job %s] No filename extension, detected '%s' from magic bytes", req.JobID, ext)
	}

	path, err := p.stageFile(req.JobID, ext, fileData)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	// Step 3: Run the pipeline under the job timeout
	log.Printf("[Job %s] Step 3: Running pipeline on %s", req.JobID, filepath.Base(path))
	runCtx := ctx
	if p.config.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.config.ProcessingTimeout)
		defer cancel()
	}

	pages, err := p.pipeline.ProcessFile(runCtx, path)
	if err == nil {
		// Recognition errors are folded into page records, including an expired deadline
		err = runCtx.Err()
	}
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewProcessingTimeoutError(req.JobID, p.config.ProcessingTimeout, err)
		}
		return nil, err
	}

	result := &ProcessResult{
		Pages:        pages,
		PageCount:    len(pages),
		DocumentType: documentType(pages),
	}
	for _, page := range pages {
		if page.Failed() {
			result.FailedPages++
		}
	}

	// Step 4: Persist page records
	if p.store != nil {
		log.Printf("[Job %s] Step 4: Storing %d page records", req.JobID, len(pages))
		rows, err := pageResults(pages)
		if err != nil {
			return nil, errors.NewStorageFailedError(req.JobID, err)
		}
		if err := p.store.SavePageResults(ctx, req.JobID, rows); err != nil {
			return nil, errors.NewStorageFailedError(req.JobID, err)
		}
	}

	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	log.Printf("[Job %s] Processing complete: pages=%d failed=%d documentType=%s time=%dms",
		req.JobID, result.PageCount, result.FailedPages, result.DocumentType, result.ProcessingTimeMs)

	return result, nil
}

// UpdateJobStatus updates job status in the store
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error {
	if p.store == nil {
		return nil
	}

	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	// Extract specific fields from metadata if present
	if metadata != nil {
		if pageCount, ok := metadata["pageCount"].(int); ok {
			update.PageCount = pageCount
		}
		if failed, ok := metadata["failedPages"].(int); ok {
			update.FailedPages = failed
		}
		if processingTime, ok := metadata["processingTime"].(int64); ok {
			update.ProcessingTimeMs = processingTime
		}
		if documentType, ok := metadata["documentType"].(string); ok {
			update.DocumentType = documentType
		}
		if errorMsg, ok := metadata["error"].(string); ok {
			update.ErrorCode = "PROCESSING_ERROR"
			if code, ok := metadata["errorCode"].(string); ok {
				update.ErrorCode = code
			}
			update.ErrorMessage = errorMsg
		}
	}

	return p.store.UpdateJobStatus(ctx, update)
}

// loadFile loads file from URL or buffer
func (p *DocumentProcessor) loadFile(ctx context.Context, req *ProcessRequest) ([]byte, error) {
	// If buffer is provided, use it directly
	if len(req.FileBuffer) > 0 {
		log.Printf("[Job %s] Using file buffer (%d bytes)", req.JobID, len(req.FileBuffer))
		return req.FileBuffer, nil
	}

	// If URL is provided, download it
	if req.FileURL != "" {
		log.Printf("[Job %s] Downloading file from URL: %s (fileSize=%d)", req.JobID, req.FileURL, req.FileSize)
		fileData, err := p.downloadFileFromURL(ctx, req.JobID, req.FileURL, req.FileSize)
		if err != nil {
			return nil, errors.NewDownloadFailedError(req.JobID, req.FileURL, err)
		}
		log.Printf("[Job %s] File downloaded successfully (%d bytes)", req.JobID, len(fileData))
		return fileData, nil
	}

	return nil, fmt.Errorf("no file source provided (buffer or URL)")
}

// stageFile writes data to TEMP_DIR with the given extension.
func (p *DocumentProcessor) stageFile(jobID string, ext string, data []byte) (string, error) {
	f, err := os.CreateTemp(p.config.TempDir, "job-"+sanitizeJobID(jobID)+"-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return f.Name(), nil
}

func sanitizeJobID(jobID string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '*' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, jobID)
}

// documentType is the first recognized document type across pages.
func documentType(pages []*PageRecord) string {
	for _, page := range pages {
		if page.DocumentType != parsing.DocumentTypeUnknown && page.DocumentType != "" {
			return page.DocumentType
		}
	}
	return parsing.DocumentTypeUnknown
}

// pageResults converts page records to storage rows carrying the full
// record as JSON.
func pageResults(pages []*PageRecord) ([]*storage.PageResult, error) {
	rows := make([]*storage.PageResult, 0, len(pages))
	for _, page := range pages {
		record, err := json.Marshal(page)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal page %d: %w", page.PageNumber, err)
		}
		row := &storage.PageResult{
			PageNumber:   page.PageNumber,
			PageType:     string(page.Type),
			DocumentType: page.DocumentType,
			Text:         page.Text,
			Record:       record,
		}
		if page.Error != nil {
			row.ErrorCode = page.Error.Code
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// extensionFromMagicBytes maps file content to the extension the pipeline
// routes on. Unknown content yields "" (unsupported).
// Essential when uploads arrive without a usable filename.
func extensionFromMagicBytes(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	switch {
	// PDF: %PDF-
	case bytes.HasPrefix(data, []byte("%PDF")):
		return ".pdf"
	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return ".png"
	// JPEG: 0xFF 0xD8 0xFF
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return ".jpg"
	// TIFF: 'I' 'I' 0x2A 0x00 (little-endian) or 'M' 'M' 0x00 0x2A (big-endian)
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return ".tiff"
	// BMP: 'B' 'M'
	case bytes.HasPrefix(data, []byte("BM")):
		return ".bmp"
	}

	return ""
}
