/**
 * PostgreSQL Client for the BharatDoc Worker
 *
 * Handles persistence of processing jobs and their page records.
 */

package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Status           string
	PageCount        int
	FailedPages      int
	DocumentType     string
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// PageResult is one stored page record. Record holds the full JSON page.
type PageResult struct {
	JobID        string
	PageNumber   int
	PageType     string
	DocumentType string
	Text         string
	ErrorCode    string
	Record       json.RawMessage
	CreatedAt    time.Time
}

// ErrJobNotFound is returned when no job row matches.
var ErrJobNotFound = errors.New("job not found")

// undefinedTable is the PostgreSQL SQLSTATE for a missing relation.
const undefinedTable = "42P01"

const schemaSQL = `
	CREATE SCHEMA IF NOT EXISTS bharatdoc;

	CREATE TABLE IF NOT EXISTS bharatdoc.processing_jobs (
		id                 UUID PRIMARY KEY,
		user_id            TEXT NOT NULL DEFAULT 'anonymous',
		filename           TEXT NOT NULL DEFAULT 'unknown',
		status             TEXT NOT NULL,
		page_count         INTEGER,
		failed_pages       INTEGER,
		document_type      TEXT,
		processing_time_ms BIGINT,
		error_code         TEXT,
		error_message      TEXT,
		metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS bharatdoc.page_records (
		job_id        UUID NOT NULL REFERENCES bharatdoc.processing_jobs(id) ON DELETE CASCADE,
		page_number   INTEGER NOT NULL,
		page_type     TEXT NOT NULL,
		document_type TEXT NOT NULL,
		text          TEXT NOT NULL,
		error_code    TEXT,
		record        JSONB NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (job_id, page_number)
	);
`

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connect to database
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the bharatdoc schema and tables if missing.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpdateJobStatus upserts the job row, so the worker can create it on the
// first status update.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	// Convert metadata to JSONB
	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO bharatdoc.processing_jobs (
			id, user_id, filename, status, page_count, failed_pages,
			document_type, processing_time_ms, error_code, error_message,
			metadata, created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE(NULLIF($11, ''), 'anonymous'), COALESCE(NULLIF($10, ''), 'unknown'),
			$2, NULLIF($3, 0), NULLIF($4, 0),
			NULLIF($5, ''), NULLIF($6, 0), NULLIF($7, ''), NULLIF($8, ''),
			COALESCE($9::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			page_count = COALESCE(EXCLUDED.page_count, bharatdoc.processing_jobs.page_count),
			failed_pages = COALESCE(EXCLUDED.failed_pages, bharatdoc.processing_jobs.failed_pages),
			document_type = COALESCE(EXCLUDED.document_type, bharatdoc.processing_jobs.document_type),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, bharatdoc.processing_jobs.processing_time_ms),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = bharatdoc.processing_jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	// Extract additional fields from metadata if present
	var filename, userID string
	if update.Metadata != nil {
		if fn, ok := update.Metadata["filename"].(string); ok {
			filename = fn
		}
		if uid, ok := update.Metadata["userId"].(string); ok {
			userID = uid
		}
	}

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1 - job_id
		update.Status,           // $2 - status
		update.PageCount,        // $3 - page_count
		update.FailedPages,      // $4 - failed_pages
		update.DocumentType,     // $5 - document_type
		update.ProcessingTimeMs, // $6 - processing_time_ms
		update.ErrorCode,        // $7 - error_code
		update.ErrorMessage,     // $8 - error_message
		string(sanitizeJSONForPostgres(metadataJSON)), // $9 - metadata
		filename, // $10 - filename
		userID,   // $11 - user_id
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, describe(err))
	}

	return nil
}

// SavePageResults replaces the stored pages of a job in one transaction.
func (p *PostgresClient) SavePageResults(ctx context.Context, jobID string, pages []*PageResult) error {
	if jobID == "" {
		return fmt.Errorf("job ID is required")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bharatdoc.page_records (
			job_id, page_number, page_type, document_type, text, error_code, record
		) VALUES ($1::uuid, $2, $3, $4, $5, NULLIF($6, ''), $7::jsonb)
		ON CONFLICT (job_id, page_number) DO UPDATE SET
			page_type = EXCLUDED.page_type,
			document_type = EXCLUDED.document_type,
			text = EXCLUDED.text,
			error_code = EXCLUDED.error_code,
			record = EXCLUDED.record
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare page insert: %w", describe(err))
	}
	defer stmt.Close()

	for _, page := range pages {
		_, err := stmt.ExecContext(ctx,
			jobID,
			page.PageNumber,
			page.PageType,
			page.DocumentType,
			stripNulls(page.Text),
			page.ErrorCode,
			string(sanitizeJSONForPostgres(page.Record)),
		)
		if err != nil {
			return fmt.Errorf("failed to store page %d: %w", page.PageNumber, describe(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit page records: %w", err)
	}
	return nil
}

// GetPageResults returns a job's pages in page order, optionally limited to
// the given page numbers.
func (p *PostgresClient) GetPageResults(ctx context.Context, jobID string, pageNumbers ...int) ([]*PageResult, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT job_id, page_number, page_type, document_type, text,
		       COALESCE(error_code, ''), record, created_at
		FROM bharatdoc.page_records
		WHERE job_id = $1::uuid
		  AND (cardinality($2::int[]) = 0 OR page_number = ANY($2::int[]))
		ORDER BY page_number
	`

	numbers := make([]int64, len(pageNumbers))
	for i, n := range pageNumbers {
		numbers[i] = int64(n)
	}

	rows, err := p.db.QueryContext(ctx, query, jobID, pq.Array(numbers))
	if err != nil {
		return nil, fmt.Errorf("failed to query page records: %w", describe(err))
	}
	defer rows.Close()

	var pages []*PageResult
	for rows.Next() {
		var page PageResult
		var record []byte
		if err := rows.Scan(
			&page.JobID, &page.PageNumber, &page.PageType, &page.DocumentType,
			&page.Text, &page.ErrorCode, &record, &page.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan page record: %w", err)
		}
		page.Record = json.RawMessage(record)
		pages = append(pages, &page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read page records: %w", err)
	}

	return pages, nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id,
			user_id,
			filename,
			status,
			page_count,
			failed_pages,
			document_type,
			processing_time_ms,
			error_code,
			error_message,
			metadata,
			created_at,
			updated_at
		FROM bharatdoc.processing_jobs
		WHERE id = $1::uuid
	`

	var (
		id, userID, filename, status string
		pageCount, failedPages       sql.NullInt64
		documentType                 sql.NullString
		processingTimeMs             sql.NullInt64
		errorCode, errorMessage      sql.NullString
		metadataJSON                 []byte
		createdAt, updatedAt         time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &userID, &filename, &status,
		&pageCount, &failedPages, &documentType, &processingTimeMs,
		&errorCode, &errorMessage,
		&metadataJSON, &createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", describe(err))
	}

	// Parse metadata
	var metadata map[string]interface{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	// Build result map
	result := map[string]interface{}{
		"id":        id,
		"userId":    userID,
		"filename":  filename,
		"status":    status,
		"createdAt": createdAt,
		"updatedAt": updatedAt,
		"metadata":  metadata,
	}

	if pageCount.Valid {
		result["pageCount"] = pageCount.Int64
	}
	if failedPages.Valid {
		result["failedPages"] = failedPages.Int64
	}
	if documentType.Valid {
		result["documentType"] = documentType.String
	}
	if processingTimeMs.Valid {
		result["processingTimeMs"] = processingTimeMs.Int64
	}
	if errorCode.Valid {
		result["errorCode"] = errorCode.String
	}
	if errorMessage.Valid {
		result["errorMessage"] = errorMessage.String
	}

	return result, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() map[string]interface{} {
	stats := p.db.Stats()
	return map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration.String(),
	}
}

// describe adds a hint when the schema has not been created.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return fmt.Errorf("%w (run EnsureSchema to create bharatdoc tables)", err)
	}
	return err
}

// sanitizeJSONForPostgres drops \u0000 escapes, which JSONB rejects, from
// encoded JSON. Escape pairs are consumed whole so an escaped backslash
// followed by literal "u0000" is left intact.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	if !bytes.Contains(jsonBytes, []byte(`\u0000`)) {
		return jsonBytes
	}
	out := make([]byte, 0, len(jsonBytes))
	for i := 0; i < len(jsonBytes); i++ {
		c := jsonBytes[i]
		if c != '\\' || i+1 == len(jsonBytes) {
			out = append(out, c)
			continue
		}
		if bytes.HasPrefix(jsonBytes[i+1:], []byte("u0000")) {
			i += 5
			continue
		}
		out = append(out, c, jsonBytes[i+1])
		i++
	}
	return out
}

// stripNulls removes NUL bytes, which TEXT columns reject.
func stripNulls(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
