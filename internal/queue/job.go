/**
 * Job payloads shared by the Redis list consumer, the Asynq consumer and
 * the producer.
 *
 * fileBuffer arrives either as a base64 string or as a serialized Node.js
 * Buffer ({"type":"Buffer","data":[...]}) from older producers.
 */

package queue

import (
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/adverant/nexus/bharatdoc-worker/internal/errors"
	"github.com/adverant/nexus/bharatdoc-worker/internal/processor"
)

// TaskTypeProcessDocument is the Asynq task type for document jobs.
const TaskTypeProcessDocument = "process-document"

// JobPayload contains the actual job data
type JobPayload struct {
	JobID      string                 `json:"jobId"`
	UserID     string                 `json:"userId,omitempty"`
	Filename   string                 `json:"filename"`
	MimeType   string                 `json:"mimeType,omitempty"`
	FileSize   int64                  `json:"fileSize,omitempty"`
	FileURL    string                 `json:"fileUrl,omitempty"`
	FileBuffer []byte                 `json:"fileBuffer,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts fileBuffer as a base64 string or a Node.js Buffer object.
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	p.FileBuffer = nil
	switch v := aux.FileBuffer.(type) {
	case nil:
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		p.FileBuffer = decoded
	case map[string]interface{}:
		buf, err := decodeNodeBuffer(v)
		if err != nil {
			return err
		}
		p.FileBuffer = buf
	default:
		return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

func decodeNodeBuffer(v map[string]interface{}) ([]byte, error) {
	if bufferType, _ := v["type"].(string); bufferType != "Buffer" {
		return nil, fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
	}
	dataArray, ok := v["data"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("Buffer object missing 'data' array")
	}

	buf := make([]byte, len(dataArray))
	for i, val := range dataArray {
		b, ok := val.(float64)
		if !ok || b < 0 || b > 255 {
			return nil, fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
		}
		buf[i] = byte(b)
	}
	return buf, nil
}

// Validate checks that the payload names a job and carries an input.
func (p *JobPayload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if len(p.FileBuffer) == 0 && p.FileURL == "" {
		return fmt.Errorf("job %s has neither fileBuffer nor fileUrl", p.JobID)
	}
	return nil
}

// Request converts the payload to a processor request.
func (p *JobPayload) Request() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:      p.JobID,
		UserID:     p.UserID,
		Filename:   p.Filename,
		MimeType:   p.MimeType,
		FileSize:   p.FileSize,
		FileURL:    p.FileURL,
		FileBuffer: p.FileBuffer,
		Metadata:   p.Metadata,
	}
}

// retryable reports whether running the job again could succeed. A format
// the pipeline cannot route fails the same way every time.
func retryable(err error) bool {
	return !stderrors.Is(err, errors.ErrUnsupportedFormat)
}

// completionMetadata is the status metadata for a finished job.
func completionMetadata(result *processor.ProcessResult) map[string]interface{} {
	return map[string]interface{}{
		"pageCount":      result.PageCount,
		"failedPages":    result.FailedPages,
		"documentType":   result.DocumentType,
		"processingTime": result.ProcessingTimeMs,
	}
}

// failureMetadata is the status metadata for a failed job.
func failureMetadata(err error, duration time.Duration) map[string]interface{} {
	metadata := map[string]interface{}{
		"error":          err.Error(),
		"processingTime": duration.Milliseconds(),
	}
	if code, ok := errors.CodeOf(err); ok {
		metadata["errorCode"] = string(code)
	}
	return metadata
}
