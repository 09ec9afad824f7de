package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"
)

func TestUnsupportedFormatIs(t *testing.T) {
	err := fmt.Errorf("process: %w", NewUnsupportedFormatError("a.docx", ".docx"))

	if !stderrors.Is(err, ErrUnsupportedFormat) {
		t.Error("errors.Is should match ErrUnsupportedFormat")
	}
	code, ok := CodeOf(err)
	if !ok || code != ErrorUnsupportedFormat {
		t.Errorf("CodeOf = %q, %v", code, ok)
	}

	other := NewExtractionFailedError(2, "classify", stderrors.New("bad xref"))
	if stderrors.Is(other, ErrUnsupportedFormat) {
		t.Error("extraction failure must not match ErrUnsupportedFormat")
	}
}

func TestSentinelsMatchByCode(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		sentinel error
		want     bool
	}{
		{"language unavailable", NewLanguageUnavailableError(0, "too few letters"), ErrLanguageUnavailable, true},
		{"wrapped language unavailable", fmt.Errorf("block 2: %w", NewLanguageUnavailableError(3, "no language identified")), ErrLanguageUnavailable, true},
		{"language is not unsupported format", NewLanguageUnavailableError(0, "too few letters"), ErrUnsupportedFormat, false},
		{"unsupported is not language", NewUnsupportedFormatError("a.docx", ".docx"), ErrLanguageUnavailable, false},
		{"ocr failure", NewOCRFailedError(1, "hin", nil), ErrLanguageUnavailable, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stderrors.Is(tc.err, tc.sentinel); got != tc.want {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tc.err, tc.sentinel, got, tc.want)
			}
		})
	}
}

func TestExtractionFailedUnwrap(t *testing.T) {
	cause := stderrors.New("bad xref")
	err := NewExtractionFailedError(3, "extract", cause)

	if !stderrors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if err.Stage() != "extract" {
		t.Errorf("Stage() = %q", err.Stage())
	}

	m := err.ToMap()
	if m["error_code"] != "EXTRACTION_FAILED" || m["page"] != 3 || m["cause"] != "bad xref" {
		t.Errorf("unexpected map: %v", m)
	}
}

func TestTimeoutMessage(t *testing.T) {
	err := NewProcessingTimeoutError("job-1", 5*time.Second, nil)
	if err.Error() != "PROCESSING_TIMEOUT: Processing timed out after 5s" {
		t.Errorf("Error() = %q", err.Error())
	}
	if _, ok := CodeOf(stderrors.New("plain")); ok {
		t.Error("plain errors have no code")
	}
}
