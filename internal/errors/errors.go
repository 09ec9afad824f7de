package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error taxonomy for the document pipeline
 *
 * UNSUPPORTED_FORMAT aborts a whole document before extraction.
 * EXTRACTION_FAILED / OCR_FAILED are caught at the page boundary and
 * recorded on the page. LANGUAGE_DETECTION_UNAVAILABLE never escapes a
 * block: the language degrades to "unknown".
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Document and page errors
	ErrorUnsupportedFormat   ErrorCode = "UNSUPPORTED_FORMAT"
	ErrorExtractionFailed    ErrorCode = "EXTRACTION_FAILED"
	ErrorOCRFailed           ErrorCode = "OCR_FAILED"
	ErrorLanguageUnavailable ErrorCode = "LANGUAGE_DETECTION_UNAVAILABLE"
	ErrorProcessingTimeout   ErrorCode = "PROCESSING_TIMEOUT"

	// Job errors
	ErrorDownloadFailed ErrorCode = "DOWNLOAD_FAILED"
	ErrorStorageFailed  ErrorCode = "STORAGE_FAILED"
)

// Sentinels matched by code through errors.Is.
var (
	ErrUnsupportedFormat   = stderrors.New("unsupported format")
	ErrLanguageUnavailable = stderrors.New("language detection unavailable")
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Page      int
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match the code sentinels.
func (e *ProcessingError) Is(target error) bool {
	switch target {
	case ErrUnsupportedFormat:
		return e.Code == ErrorUnsupportedFormat
	case ErrLanguageUnavailable:
		return e.Code == ErrorLanguageUnavailable
	}
	return false
}

// CodeOf returns the code of the first ProcessingError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}

// Factory functions for common errors

func NewUnsupportedFormatError(path string, extension string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedFormat,
		Message:   fmt.Sprintf("Unsupported file type: %q", extension),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path":      path,
			"extension": extension,
		},
	}
}

func NewLanguageUnavailableError(letters int, reason string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorLanguageUnavailable,
		Message:   fmt.Sprintf("Language detection unavailable: %s", reason),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"letters": letters,
		},
	}
}

func NewExtractionFailedError(page int, stage string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorExtractionFailed,
		Message:   fmt.Sprintf("Extraction failed at stage: %s", stage),
		Page:      page,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"stage": stage,
		},
		Cause: cause,
	}
}

func NewOCRFailedError(page int, language string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed for language: %s", language),
		Page:      page,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"stage":    "extract",
			"language": language,
		},
		Cause: cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewDownloadFailedError(jobID string, url string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDownloadFailed,
		Message:   "Failed to download input file",
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"url": url,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store processing results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// Stage returns the pipeline stage recorded in Details, if any.
func (e *ProcessingError) Stage() string {
	if s, ok := e.Details["stage"].(string); ok {
		return s
	}
	return ""
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.JobID != "" {
		result["job_id"] = e.JobID
	}
	if e.Page > 0 {
		result["page"] = e.Page
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
