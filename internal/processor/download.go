package processor

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 32 * time.Second
)

// downloadFileFromURL downloads a file with exponential backoff. Client
// errors (4xx other than 429) and oversized files are not retried.
func (p *DocumentProcessor) downloadFileFromURL(ctx context.Context, jobID string, fileURL string, expectedSize int64) ([]byte, error) {
	var fileData []byte

	err := retry.Do(
		func() error {
			data, err := p.fetch(ctx, jobID, fileURL, expectedSize)
			if err != nil {
				return err
			}
			fileData = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.config.DownloadAttempts),
		retry.Delay(initialBackoff),
		retry.MaxDelay(maxBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[Job %s] Download attempt %d/%d failed: %v", jobID, n+1, p.config.DownloadAttempts, err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to download file after %d attempts: %w", p.config.DownloadAttempts, err)
	}
	return fileData, nil
}

func (p *DocumentProcessor) fetch(ctx context.Context, jobID string, fileURL string, expectedSize int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("invalid URL: %w", err))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Unrecoverable(err)
		}
		return nil, err
	}

	// Check Content-Length if available
	contentLength := resp.ContentLength
	if contentLength > 0 && expectedSize > 0 && contentLength != expectedSize {
		log.Printf("[Job %s] WARNING: Content-Length mismatch. Expected=%d, Got=%d",
			jobID, expectedSize, contentLength)
	}

	maxReadBytes := p.config.MaxFileSize
	if maxReadBytes <= 0 {
		maxReadBytes = 10 * 1024 * 1024 * 1024 // 10GB safety limit
	}
	if contentLength > maxReadBytes {
		return nil, retry.Unrecoverable(fmt.Errorf("file size exceeds maximum: %d > %d bytes", contentLength, maxReadBytes))
	}

	// Read one byte past the limit to detect oversized bodies without Content-Length
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > maxReadBytes {
		return nil, retry.Unrecoverable(fmt.Errorf("file size exceeds maximum: > %d bytes", maxReadBytes))
	}
	return data, nil
}
